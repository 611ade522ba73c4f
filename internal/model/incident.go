package model

import (
	"fmt"
	"math"
	"time"

	"github.com/rotisserie/eris"
)

// Period is a coarse time-of-day bucket attached to every incident.
type Period string

const (
	PeriodDawn      Period = "De Madrugada"    // 00:00:00 - 05:59:59
	PeriodMorning   Period = "De Manhã"        // 06:00:00 - 11:59:59
	PeriodAfternoon Period = "De Tarde"        // 12:00:00 - 17:59:59
	PeriodNight     Period = "De Noite"        // 18:00:00 - 23:59:59
	PeriodUncertain Period = "Em Hora Incerta" // no time available or derivable
)

// Periods lists the canonical enumeration in day order, uncertain last.
var Periods = []Period{PeriodDawn, PeriodMorning, PeriodAfternoon, PeriodNight, PeriodUncertain}

// Canonical reports whether p is one of the five enumerated periods.
func (p Period) Canonical() bool {
	switch p {
	case PeriodDawn, PeriodMorning, PeriodAfternoon, PeriodNight, PeriodUncertain:
		return true
	default:
		return false
	}
}

// Timed reports whether p is one of the four buckets backed by a clock range.
func (p Period) Timed() bool {
	return p.Canonical() && p != PeriodUncertain
}

// TimeOfDay is a wall-clock time expressed as seconds since midnight.
type TimeOfDay int

// SecondsPerDay bounds TimeOfDay to [0, SecondsPerDay).
const SecondsPerDay = 24 * 60 * 60

// NewTimeOfDay builds a TimeOfDay, rejecting out-of-range components.
func NewTimeOfDay(hour, minute, second int) (TimeOfDay, error) {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 || second < 0 || second > 59 {
		return 0, eris.Errorf("time of day %02d:%02d:%02d out of range", hour, minute, second)
	}
	return TimeOfDay(hour*3600 + minute*60 + second), nil
}

// Hour returns the hour component.
func (t TimeOfDay) Hour() int { return int(t) / 3600 }

// Minute returns the minute component.
func (t TimeOfDay) Minute() int { return int(t) % 3600 / 60 }

// Second returns the second component.
func (t TimeOfDay) Second() int { return int(t) % 60 }

// String formats the time as HH:MM:SS.
func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", t.Hour(), t.Minute(), t.Second())
}

// Record is one incident row. Optional values are nil when absent.
type Record struct {
	Row          int        `json:"row"` // 1-based position in the source sheet, header excluded
	Category     string     `json:"category"`
	PeriodTag    Period     `json:"period_tag"`
	Time         *TimeOfDay `json:"occurrence_time,omitempty"`
	Date         *time.Time `json:"occurrence_date,omitempty"`
	Street       string     `json:"street"`
	StreetNumber *float64   `json:"street_number,omitempty"`
	Latitude     *float64   `json:"latitude,omitempty"`
	Longitude    *float64   `json:"longitude,omitempty"`

	// Extra carries source columns the pipeline does not interpret, keyed by header.
	Extra map[string]string `json:"extra,omitempty"`
}

// HasCoordinates reports whether both latitude and longitude are valid.
func (r Record) HasCoordinates() bool {
	return ValidCoordinate(r.Latitude) && ValidCoordinate(r.Longitude)
}

// ValidCoordinate reports whether v is present, finite and not the zero
// sentinel.
func ValidCoordinate(v *float64) bool {
	return v != nil && *v != 0 && !math.IsInf(*v, 0) && !math.IsNaN(*v)
}

// Clone returns a copy of r whose Extra map is not shared with r. Pointer
// fields are shared; stages replace them instead of writing through them.
func (r Record) Clone() Record {
	if r.Extra != nil {
		extra := make(map[string]string, len(r.Extra))
		for k, v := range r.Extra {
			extra[k] = v
		}
		r.Extra = extra
	}
	return r
}

// CloneRecords copies a record set so a stage can modify its output freely.
func CloneRecords(in []Record) []Record {
	out := make([]Record, len(in))
	for i := range in {
		out[i] = in[i].Clone()
	}
	return out
}

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }

// Clock returns a pointer to t.
func Clock(t TimeOfDay) *TimeOfDay { return &t }
