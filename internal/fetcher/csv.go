package fetcher

import (
	"bufio"
	"encoding/csv"
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

// Encoding names accepted by CSVOptions.Encoding.
const (
	EncodingUTF8   = "utf-8"
	EncodingLatin1 = "latin1"
	EncodingCP1252 = "windows-1252"
)

// CSVOptions configures the CSV reader and writer.
type CSVOptions struct {
	Delimiter rune   // default ','; 0 on read means detect ',' or ';' from the header
	Encoding  string // default utf-8
	TrimSpace bool
}

// ReadCSV reads every row of r. A UTF-8 byte order mark is dropped and
// Latin-1 / Windows-1252 input is decoded to UTF-8.
func ReadCSV(r io.Reader, opts CSVOptions) ([][]string, error) {
	dec, err := decoder(r, opts.Encoding)
	if err != nil {
		return nil, err
	}
	br := bufio.NewReader(dec)
	if b, err := br.Peek(3); err == nil && string(b) == "\xef\xbb\xbf" {
		_, _ = br.Discard(3)
	}

	delim := opts.Delimiter
	if delim == 0 {
		delim = sniffDelimiter(br)
	}

	reader := csv.NewReader(br)
	reader.Comma = delim
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	var rows [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "csv: read row")
		}
		if opts.TrimSpace {
			for i, field := range record {
				record[i] = strings.TrimSpace(field)
			}
		}
		rows = append(rows, record)
	}
	return rows, nil
}

// WriteCSV writes rows to w as UTF-8.
func WriteCSV(w io.Writer, rows [][]string, opts CSVOptions) error {
	cw := csv.NewWriter(w)
	if opts.Delimiter != 0 {
		cw.Comma = opts.Delimiter
	}
	if err := cw.WriteAll(rows); err != nil {
		return eris.Wrap(err, "csv: write")
	}
	return nil
}

func decoder(r io.Reader, enc string) (io.Reader, error) {
	switch strings.ToLower(enc) {
	case "", EncodingUTF8, "utf8":
		return r, nil
	case EncodingLatin1, "iso-8859-1":
		return transform.NewReader(r, charmap.ISO8859_1.NewDecoder()), nil
	case EncodingCP1252, "cp1252":
		return transform.NewReader(r, charmap.Windows1252.NewDecoder()), nil
	default:
		return nil, eris.Errorf("csv: unsupported encoding %q", enc)
	}
}

const sniffBytes = 4096

// sniffDelimiter picks ';' when the first line has more semicolons than
// commas. SSP exports use ';'.
func sniffDelimiter(br *bufio.Reader) rune {
	head, _ := br.Peek(sniffBytes)
	line := string(head)
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	if strings.Count(line, ";") > strings.Count(line, ",") {
		return ';'
	}
	return ','
}
