package address

import "github.com/sells-group/crimemap-cli/internal/model"

// RestrictedPlaceholder is the address the source authority publishes when a
// record's location falls under a disclosure restriction.
const RestrictedPlaceholder = "VEDAÇÃO DA DIVULGAÇÃO DOS DADOS RELATIVOS"

// DropRestricted returns the records whose street is not exactly placeholder.
// The comparison is case-sensitive and applies to the raw street value.
func DropRestricted(records []model.Record, placeholder string) ([]model.Record, int) {
	if placeholder == "" {
		placeholder = RestrictedPlaceholder
	}
	out := make([]model.Record, 0, len(records))
	for _, r := range records {
		if r.Street == placeholder {
			continue
		}
		out = append(out, r.Clone())
	}
	return out, len(records) - len(out)
}
