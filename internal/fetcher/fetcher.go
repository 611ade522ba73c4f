// Package fetcher reads incident spreadsheets from local files or URLs and
// writes cleaned datasets back out as XLSX or CSV.
package fetcher

import (
	"context"
	"io"
)

// Fetcher downloads remote source files.
type Fetcher interface {
	// Download fetches the URL and returns the response body.
	Download(ctx context.Context, url string) (io.ReadCloser, error)

	// DownloadToFile fetches the URL and writes it to the given path. Returns bytes written.
	DownloadToFile(ctx context.Context, url string, path string) (int64, error)
}
