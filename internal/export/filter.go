// Package export turns cleaned incidents into map layers: GeoJSON for the
// dashboard heatmap and ESRI shapefiles for GIS tools. Only rows with a valid
// coordinate pair are exported.
package export

import (
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/crimemap-cli/internal/model"
	"github.com/sells-group/crimemap-cli/internal/period"
)

// DefaultCenter is the map centre used by the dashboard (Itapevi, SP).
var DefaultCenter = [2]float64{-23.5506508472123, -46.93916987719007}

// Weekday numbering follows Monday=0 ... Sunday=6.
var weekdayNames = []string{"Segunda", "Terça", "Quarta", "Quinta", "Sexta", "Sábado", "Domingo"}

// WeekdayName returns the Portuguese name for a Monday-based weekday, or ""
// when d is out of range.
func WeekdayName(d int) string {
	if d < 0 || d >= len(weekdayNames) {
		return ""
	}
	return weekdayNames[d]
}

// Weekday returns the Monday-based weekday of the occurrence date, or -1
// when the record has no date.
func Weekday(r model.Record) int {
	if r.Date == nil {
		return -1
	}
	return (int(r.Date.Weekday()) + 6) % 7
}

// Hour returns the occurrence hour, or -1 when the record has no time.
func Hour(r model.Record) int {
	if r.Time == nil {
		return -1
	}
	return r.Time.Hour()
}

// ParseWeekday accepts a Monday-based index ("0".."6") or a Portuguese day
// name with or without accents and the "-feira" suffix.
func ParseWeekday(s string) (int, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		if n < 0 || n > 6 {
			return 0, eris.Errorf("export: weekday %d out of range", n)
		}
		return n, nil
	}
	folded := strings.TrimSuffix(period.Fold(s), "-FEIRA")
	for i, name := range weekdayNames {
		if period.Fold(name) == folded {
			return i, nil
		}
	}
	return 0, eris.Errorf("export: unknown weekday %q", s)
}

// Filter narrows the exported rows. Zero-valued fields do not filter.
type Filter struct {
	Weekdays   []int // Monday=0
	HourFrom   *int  // inclusive
	HourTo     *int  // inclusive
	DateFrom   *time.Time
	DateTo     *time.Time
	Categories []string

	// Include keeps only rows whose Extra column holds one of the values.
	Include map[string][]string
	// Exclude drops rows whose Extra column holds one of the values.
	Exclude map[string][]string
}

// Validate rejects impossible ranges.
func (f Filter) Validate() error {
	for _, d := range f.Weekdays {
		if d < 0 || d > 6 {
			return eris.Errorf("export: weekday %d out of range", d)
		}
	}
	for _, h := range []*int{f.HourFrom, f.HourTo} {
		if h != nil && (*h < 0 || *h > 23) {
			return eris.Errorf("export: hour %d out of range", *h)
		}
	}
	if f.HourFrom != nil && f.HourTo != nil && *f.HourFrom > *f.HourTo {
		return eris.Errorf("export: hour range %d-%d is empty", *f.HourFrom, *f.HourTo)
	}
	if f.DateFrom != nil && f.DateTo != nil && f.DateFrom.After(*f.DateTo) {
		return eris.New("export: date range is empty")
	}
	return nil
}

// Match reports whether r passes every active filter. A filter on a field
// the record lacks (no date, no time) rejects the record.
func (f Filter) Match(r model.Record) bool {
	if len(f.Weekdays) > 0 && !slices.Contains(f.Weekdays, Weekday(r)) {
		return false
	}
	if f.HourFrom != nil || f.HourTo != nil {
		h := Hour(r)
		if h < 0 {
			return false
		}
		if f.HourFrom != nil && h < *f.HourFrom {
			return false
		}
		if f.HourTo != nil && h > *f.HourTo {
			return false
		}
	}
	if f.DateFrom != nil || f.DateTo != nil {
		if r.Date == nil {
			return false
		}
		if f.DateFrom != nil && r.Date.Before(*f.DateFrom) {
			return false
		}
		if f.DateTo != nil && r.Date.After(*f.DateTo) {
			return false
		}
	}
	if len(f.Categories) > 0 && !slices.Contains(f.Categories, r.Category) {
		return false
	}
	for col, values := range f.Include {
		if !slices.Contains(values, r.Extra[col]) {
			return false
		}
	}
	for col, values := range f.Exclude {
		if v, ok := r.Extra[col]; ok && slices.Contains(values, v) {
			return false
		}
	}
	return true
}

// Apply returns the records that have valid coordinates and pass f, in
// input order.
func (f Filter) Apply(records []model.Record) []model.Record {
	var out []model.Record
	for _, r := range records {
		if r.HasCoordinates() && f.Match(r) {
			out = append(out, r)
		}
	}
	return out
}
