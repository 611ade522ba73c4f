package fetcher

import (
	"context"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Format identifies a tabular file format.
type Format string

const (
	FormatXLSX Format = "xlsx"
	FormatCSV  Format = "csv"
)

// DetectFormat infers the format from a path or URL extension.
func DetectFormat(name string) (Format, error) {
	if u, err := url.Parse(name); err == nil && u.Scheme != "" && u.Path != "" {
		name = u.Path
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx", ".xlsm":
		return FormatXLSX, nil
	case ".csv", ".txt":
		return FormatCSV, nil
	default:
		return "", eris.Errorf("fetcher: cannot infer format of %q", name)
	}
}

// IsURL reports whether src is an http(s) URL rather than a local path.
func IsURL(src string) bool {
	u, err := url.Parse(src)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// TableOptions bundles the per-format options.
type TableOptions struct {
	XLSX XLSXOptions
	CSV  CSVOptions
}

// ReadTable loads every row from a local file or URL. Remote files are
// downloaded to a temporary file first, since XLSX needs random access.
func ReadTable(ctx context.Context, f Fetcher, src string, opts TableOptions) ([][]string, error) {
	format, err := DetectFormat(src)
	if err != nil {
		return nil, err
	}

	path := src
	if IsURL(src) {
		if f == nil {
			return nil, eris.Errorf("fetcher: no downloader configured for %s", src)
		}
		tmp, err := os.CreateTemp("", "crimemap-*."+string(format))
		if err != nil {
			return nil, eris.Wrap(err, "fetcher: create temp file")
		}
		path = tmp.Name()
		_ = tmp.Close()
		defer os.Remove(path) //nolint:errcheck

		n, err := f.DownloadToFile(ctx, src, path)
		if err != nil {
			return nil, eris.Wrapf(err, "fetcher: download %s", src)
		}
		zap.L().Info("fetcher: downloaded source", zap.String("url", src), zap.Int64("bytes", n))
	}

	switch format {
	case FormatXLSX:
		return ReadXLSX(path, opts.XLSX)
	default:
		file, err := os.Open(path)
		if err != nil {
			return nil, eris.Wrap(err, "fetcher: open csv")
		}
		defer file.Close() //nolint:errcheck
		return ReadCSV(file, opts.CSV)
	}
}

// WriteTable writes rows to path in the format its extension names.
func WriteTable(path string, rows [][]string, opts TableOptions) error {
	format, err := DetectFormat(path)
	if err != nil {
		return err
	}
	if format == FormatXLSX {
		return WriteXLSX(path, rows, opts.XLSX)
	}

	file, err := os.Create(path)
	if err != nil {
		return eris.Wrap(err, "fetcher: create csv")
	}
	if err := WriteCSV(file, rows, opts.CSV); err != nil {
		_ = file.Close()
		return err
	}
	return eris.Wrap(file.Close(), "fetcher: close csv")
}
