package timefill

import (
	"fmt"

	"github.com/sells-group/crimemap-cli/internal/model"
	"github.com/sells-group/crimemap-cli/internal/period"
)

// Reconcile re-derives the tag of every timed record from its time and forces
// untimed records without a canonical tag to model.PeriodUncertain. Running it
// on its own output changes nothing.
//
// Diagnostics are produced for every record still without a time; they
// describe the outcome and are not used by later stages.
func Reconcile(records []model.Record) ([]model.Record, []model.Diagnostic) {
	out := model.CloneRecords(records)
	var diags []model.Diagnostic

	for i := range out {
		r := &out[i]
		if p, ok := period.Resolve(r.Time); ok {
			r.PeriodTag = p
			continue
		}

		if !r.PeriodTag.Canonical() {
			if r.PeriodTag != "" {
				diags = append(diags, model.Diagnostic{
					Row:     r.Row,
					Kind:    model.DiagnosticTag,
					Message: fmt.Sprintf("unrecognised period tag %q replaced by %q", r.PeriodTag, model.PeriodUncertain),
				})
			}
			r.PeriodTag = model.PeriodUncertain
		}

		diags = append(diags, untimedNote(*r))
	}
	return out, diags
}

func untimedNote(r model.Record) model.Diagnostic {
	msg := "no time and no usable tag"
	if r.PeriodTag != model.PeriodUncertain {
		msg = fmt.Sprintf("no time available for category=%q period=%q", r.Category, r.PeriodTag)
	}
	return model.Diagnostic{Row: r.Row, Kind: model.DiagnosticTime, Message: msg}
}
