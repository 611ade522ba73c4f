package pipeline

import (
	"github.com/rotisserie/eris"

	"github.com/sells-group/crimemap-cli/internal/model"
	"github.com/sells-group/crimemap-cli/internal/period"
)

// Validate checks the invariants every cleaned record must satisfy: a
// canonical period tag that agrees with the occurrence time when one is
// present, and a coordinate pair that is either valid or absent.
func Validate(records []model.Record) error {
	for _, r := range records {
		if !r.PeriodTag.Canonical() {
			return eris.Errorf("row %d: period tag %q is not canonical", r.Row, r.PeriodTag)
		}
		if p, ok := period.Resolve(r.Time); ok && p != r.PeriodTag {
			return eris.Errorf("row %d: period tag %q disagrees with time %s", r.Row, r.PeriodTag, r.Time)
		}
		if (r.Latitude != nil || r.Longitude != nil) && !r.HasCoordinates() {
			return eris.Errorf("row %d: partial or zero coordinate pair", r.Row)
		}
	}
	return nil
}
