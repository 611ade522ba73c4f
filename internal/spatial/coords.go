// Package spatial fills missing incident coordinates, first from neighbours on
// the same street and then, optionally, through a remote geocoder.
package spatial

import (
	"math"
	"strconv"
	"strings"

	"github.com/sells-group/crimemap-cli/internal/model"
)

// coordinateNullMarkers are spellings the source uses for a missing coordinate.
var coordinateNullMarkers = map[string]bool{
	"":      true,
	"NULL":  true,
	"NUL,L": true,
	"NAN":   true,
	"NONE":  true,
}

// ParseNumber parses a coordinate or street number. Null markers and
// unparseable or non-finite text yield nil. A decimal comma is accepted when
// no dot is present.
func ParseNumber(s string) *float64 {
	s = strings.TrimSpace(s)
	if coordinateNullMarkers[strings.ToUpper(s)] {
		return nil
	}
	if !strings.Contains(s, ".") {
		s = strings.Replace(s, ",", ".", 1)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(v, 0) || math.IsNaN(v) {
		return nil
	}
	return &v
}

// NormalizeCoordinates returns a copy of records where any pair with an
// absent or zero member is cleared entirely, so no record carries a partial pair.
func NormalizeCoordinates(records []model.Record) []model.Record {
	out := model.CloneRecords(records)
	for i := range out {
		if !out[i].HasCoordinates() {
			out[i].Latitude, out[i].Longitude = nil, nil
		}
	}
	return out
}

// FormatNumber renders a street number without a trailing ".0".
func FormatNumber(n *float64) string {
	if n == nil {
		return ""
	}
	return strconv.FormatFloat(*n, 'f', -1, 64)
}
