package timefill

import "github.com/sells-group/crimemap-cli/internal/model"

// Impute fills the occurrence time of every untimed record whose (category,
// period) pair has a reference entry. The table is built once from the input
// before any row is filled, so filled rows never feed back into lookups.
func Impute(records []model.Record) ([]model.Record, *ReferenceTable, int) {
	ref := Build(records)
	out := model.CloneRecords(records)
	filled := 0
	for i := range out {
		if out[i].Time != nil {
			continue
		}
		t, ok := ref.Lookup(out[i].Category, out[i].PeriodTag)
		if !ok {
			continue
		}
		out[i].Time = model.Clock(t)
		filled++
	}
	return out, ref, filled
}
