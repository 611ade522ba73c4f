package period

import "github.com/sells-group/crimemap-cli/internal/model"

// NormalizeTags returns a copy of records with every PeriodTag passed through
// NormalizeTag, plus the number of tags whose text changed.
func NormalizeTags(records []model.Record, policy TagPolicy) ([]model.Record, int) {
	out := model.CloneRecords(records)
	changed := 0
	for i := range out {
		tag := NormalizeTag(string(out[i].PeriodTag), policy)
		if tag != out[i].PeriodTag {
			changed++
		}
		out[i].PeriodTag = tag
	}
	return out, changed
}

// ApplyTimes returns a copy of records where every row holding an occurrence
// time gets the period derived from it, overriding its tag. Rows without a
// time keep their tag. The count is the number of tags that changed.
func ApplyTimes(records []model.Record) ([]model.Record, int) {
	out := model.CloneRecords(records)
	changed := 0
	for i := range out {
		p, ok := Resolve(out[i].Time)
		if !ok {
			continue
		}
		if p != out[i].PeriodTag {
			changed++
		}
		out[i].PeriodTag = p
	}
	return out, changed
}
