package period

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/sells-group/crimemap-cli/internal/model"
)

// bucket is an inclusive range of seconds since midnight.
type bucket struct {
	from, to model.TimeOfDay
	period   model.Period
}

var buckets = []bucket{
	{from: 0, to: 5*3600 + 59*60 + 59, period: model.PeriodDawn},
	{from: 6 * 3600, to: 11*3600 + 59*60 + 59, period: model.PeriodMorning},
	{from: 12 * 3600, to: 17*3600 + 59*60 + 59, period: model.PeriodAfternoon},
	{from: 18 * 3600, to: 23*3600 + 59*60 + 59, period: model.PeriodNight},
}

// Of classifies a time of day into one of the four timed buckets. The second
// return value is false only for values outside [00:00:00, 23:59:59].
func Of(t model.TimeOfDay) (model.Period, bool) {
	for _, b := range buckets {
		if t >= b.from && t <= b.to {
			return b.period, true
		}
	}
	return "", false
}

// Resolve derives the period for an optional time. Absent in, absent out.
func Resolve(t *model.TimeOfDay) (model.Period, bool) {
	if t == nil {
		return "", false
	}
	return Of(*t)
}

// ResolveText coerces a textual time and classifies it.
func ResolveText(s string) (model.Period, bool) {
	t, ok := ParseTimeOfDay(s)
	if !ok {
		return "", false
	}
	return Of(t)
}

// nullMarkers are spreadsheet/export spellings of a missing value.
var nullMarkers = map[string]bool{
	"":     true,
	"nan":  true,
	"nat":  true,
	"none": true,
	"null": true,
}

// IsNullMarker reports whether s is an empty or textual null value.
func IsNullMarker(s string) bool {
	return nullMarkers[strings.ToLower(strings.TrimSpace(s))]
}

// timeLayouts are tried in order; timestamp layouts keep only the clock part.
var timeLayouts = []string{
	"15:04:05",
	"15:04",
	"15:04:05.999999999",
	"3:04:05 PM",
	"3:04 PM",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04:05",
	time.RFC3339,
	time.RFC3339Nano,
	"02/01/2006 15:04:05",
	"02/01/2006 15:04",
	"1/2/06 15:04",
}

// ParseTimeOfDay coerces a full timestamp, a clock value or a spreadsheet
// day fraction to a time of day. Unparseable or null input yields false.
func ParseTimeOfDay(s string) (model.TimeOfDay, bool) {
	s = strings.TrimSpace(s)
	if IsNullMarker(s) {
		return 0, false
	}

	for _, layout := range timeLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return FromTime(ts), true
		}
	}

	// Spreadsheet serial time: fraction of a day, optionally with a date part.
	// Bare integers are rejected since they carry no clock component.
	if !strings.ContainsAny(s, ".,") {
		return 0, false
	}
	if f, err := strconv.ParseFloat(strings.Replace(s, ",", ".", 1), 64); err == nil && f >= 0 {
		_, frac := math.Modf(f)
		secs := int(math.Round(frac * model.SecondsPerDay))
		if secs >= model.SecondsPerDay {
			secs = model.SecondsPerDay - 1
		}
		return model.TimeOfDay(secs), true
	}

	return 0, false
}

// FromTime drops the date and sub-second parts of ts.
func FromTime(ts time.Time) model.TimeOfDay {
	return model.TimeOfDay(ts.Hour()*3600 + ts.Minute()*60 + ts.Second())
}
