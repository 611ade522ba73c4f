// Package dataset maps spreadsheet rows to incident records and back.
package dataset

import (
	"strings"

	"github.com/rotisserie/eris"
)

// ErrMissingColumn is returned when the header lacks a required column.
var ErrMissingColumn = eris.New("dataset: missing required column")

// ErrNoHeader is returned when the input has no header row.
var ErrNoHeader = eris.New("dataset: input has no header row")

// Columns names the source columns for each record field.
type Columns struct {
	Category  string `mapstructure:"category"`
	Period    string `mapstructure:"period"`
	Time      string `mapstructure:"time"`
	Date      string `mapstructure:"date"`
	Street    string `mapstructure:"street"`
	Number    string `mapstructure:"number"`
	Latitude  string `mapstructure:"latitude"`
	Longitude string `mapstructure:"longitude"`
}

// DefaultColumns returns the column names used by SSP-SP bulletin exports.
func DefaultColumns() Columns {
	return Columns{
		Category:  "NATUREZA_APURADA",
		Period:    "DESCR_PERIODO",
		Time:      "HORA_OCORRENCIA_BO",
		Date:      "DATA_OCORRENCIA_BO",
		Street:    "LOGRADOURO",
		Number:    "NUMERO_LOGRADOURO",
		Latitude:  "LATITUDE",
		Longitude: "LONGITUDE",
	}
}

// withDefaults fills empty names from DefaultColumns.
func (c Columns) withDefaults() Columns {
	d := DefaultColumns()
	for _, p := range []struct {
		dst *string
		def string
	}{
		{&c.Category, d.Category},
		{&c.Period, d.Period},
		{&c.Time, d.Time},
		{&c.Date, d.Date},
		{&c.Street, d.Street},
		{&c.Number, d.Number},
		{&c.Latitude, d.Latitude},
		{&c.Longitude, d.Longitude},
	} {
		if *p.dst == "" {
			*p.dst = p.def
		}
	}
	return c
}

// required lists the columns a dataset must carry. The date column is
// optional.
func (c Columns) required() []string {
	return []string{c.Category, c.Period, c.Time, c.Street, c.Number, c.Latitude, c.Longitude}
}

// known reports whether name is one of the mapped columns.
func (c Columns) known(name string) bool {
	for _, k := range append(c.required(), c.Date) {
		if strings.EqualFold(k, name) {
			return true
		}
	}
	return false
}

// index maps each header to its position. Header names are trimmed and
// compared case-insensitively; the first occurrence wins.
type index map[string]int

func newIndex(header []string) index {
	idx := make(index, len(header))
	for i, h := range header {
		key := strings.ToUpper(strings.TrimSpace(h))
		if _, dup := idx[key]; !dup {
			idx[key] = i
		}
	}
	return idx
}

func (idx index) pos(name string) (int, bool) {
	i, ok := idx[strings.ToUpper(strings.TrimSpace(name))]
	return i, ok
}

// Validate checks that header holds every required column.
func Validate(header []string, cols Columns) error {
	cols = cols.withDefaults()
	idx := newIndex(header)
	var missing []string
	for _, name := range cols.required() {
		if _, ok := idx.pos(name); !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return eris.Wrapf(ErrMissingColumn, "%s", strings.Join(missing, ", "))
	}
	return nil
}
