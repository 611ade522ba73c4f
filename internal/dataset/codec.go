package dataset

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/sells-group/crimemap-cli/internal/model"
	"github.com/sells-group/crimemap-cli/internal/period"
	"github.com/sells-group/crimemap-cli/internal/spatial"
)

// Table is a decoded dataset. Header keeps the source column order so the
// cleaned output mirrors the input layout.
type Table struct {
	Header  []string
	Records []model.Record
}

// dateLayouts are tried in order. Day-first layouts come before ISO ones.
var dateLayouts = []string{
	"02/01/2006",
	"2/1/2006",
	"02/01/2006 15:04:05",
	"02/01/2006 15:04",
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
}

// excelEpoch is day zero of the 1900 spreadsheet date system.
var excelEpoch = time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)

// ParseDate parses a day-first date, an ISO date or a spreadsheet serial
// number. Null markers and unparseable text yield nil.
func ParseDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if period.IsNullMarker(s) {
		return nil
	}
	for _, layout := range dateLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			d := time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC)
			return &d
		}
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 && f < 2958466 {
		d := excelEpoch.AddDate(0, 0, int(math.Floor(f)))
		return &d
	}
	return nil
}

// Decode turns rows (header first) into records. A missing required column
// fails the whole decode; unparseable cells become absent values.
func Decode(rows [][]string, cols Columns) (*Table, error) {
	if len(rows) == 0 {
		return nil, ErrNoHeader
	}
	cols = cols.withDefaults()
	header := rows[0]
	if err := Validate(header, cols); err != nil {
		return nil, err
	}
	idx := newIndex(header)

	cell := func(row []string, name string) string {
		i, ok := idx.pos(name)
		if !ok || i >= len(row) {
			return ""
		}
		return row[i]
	}

	t := &Table{Header: append([]string(nil), header...), Records: make([]model.Record, 0, len(rows)-1)}
	for n, row := range rows[1:] {
		if blank(row) {
			continue
		}
		r := model.Record{
			Row:          n + 1,
			Category:     strings.TrimSpace(cell(row, cols.Category)),
			PeriodTag:    model.Period(cell(row, cols.Period)),
			Date:         ParseDate(cell(row, cols.Date)),
			Street:       cell(row, cols.Street),
			StreetNumber: spatial.ParseNumber(cell(row, cols.Number)),
			Latitude:     spatial.ParseNumber(cell(row, cols.Latitude)),
			Longitude:    spatial.ParseNumber(cell(row, cols.Longitude)),
		}
		if tod, ok := period.ParseTimeOfDay(cell(row, cols.Time)); ok {
			r.Time = model.Clock(tod)
		}

		for i, h := range header {
			if cols.known(h) || strings.TrimSpace(h) == "" || i >= len(row) {
				continue
			}
			if r.Extra == nil {
				r.Extra = make(map[string]string)
			}
			r.Extra[h] = row[i]
		}
		t.Records = append(t.Records, r)
	}
	return t, nil
}

// Encode renders t back to rows, header first. Columns follow t.Header;
// mapped columns absent from it are appended in a fixed order.
func Encode(t *Table, cols Columns) [][]string {
	cols = cols.withDefaults()
	header := append([]string(nil), t.Header...)
	idx := newIndex(header)
	for _, name := range append(cols.required(), cols.Date) {
		if _, ok := idx.pos(name); !ok {
			header = append(header, name)
		}
	}

	out := make([][]string, 0, len(t.Records)+1)
	out = append(out, header)
	for _, r := range t.Records {
		row := make([]string, len(header))
		for i, h := range header {
			row[i] = field(r, cols, h)
		}
		out = append(out, row)
	}
	return out
}

func field(r model.Record, cols Columns, h string) string {
	switch {
	case strings.EqualFold(h, cols.Category):
		return r.Category
	case strings.EqualFold(h, cols.Period):
		return string(r.PeriodTag)
	case strings.EqualFold(h, cols.Time):
		if r.Time == nil {
			return ""
		}
		return r.Time.String()
	case strings.EqualFold(h, cols.Date):
		if r.Date == nil {
			return ""
		}
		return r.Date.Format("02/01/2006")
	case strings.EqualFold(h, cols.Street):
		return r.Street
	case strings.EqualFold(h, cols.Number):
		return spatial.FormatNumber(r.StreetNumber)
	case strings.EqualFold(h, cols.Latitude):
		return spatial.FormatNumber(r.Latitude)
	case strings.EqualFold(h, cols.Longitude):
		return spatial.FormatNumber(r.Longitude)
	default:
		return r.Extra[h]
	}
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
