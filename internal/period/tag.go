// Package period canonicalises period-of-day tags and derives periods from
// occurrence times.
package period

import (
	"strings"
	"unicode"

	"github.com/rotisserie/eris"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/crimemap-cli/internal/model"
)

// TagPolicy decides what happens to a non-empty tag missing from the lookup table.
type TagPolicy string

const (
	// TagPolicyStrict maps unknown tags to model.PeriodUncertain.
	TagPolicyStrict TagPolicy = "strict"
	// TagPolicyPassthrough keeps unknown tags in folded form (upper case, no
	// accents) so they still group rows during time imputation.
	TagPolicyPassthrough TagPolicy = "passthrough"
)

// ParseTagPolicy validates a configured policy name. Empty means strict.
func ParseTagPolicy(s string) (TagPolicy, error) {
	switch TagPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", TagPolicyStrict:
		return TagPolicyStrict, nil
	case TagPolicyPassthrough:
		return TagPolicyPassthrough, nil
	default:
		return "", eris.Errorf("period: unknown tag policy %q", s)
	}
}

// tagTable maps folded source spellings onto the canonical enumeration.
var tagTable = map[string]model.Period{
	"A NOITE":         model.PeriodNight,
	"DE NOITE":        model.PeriodNight,
	"DE MADRUGADA":    model.PeriodDawn,
	"PELA MANHA":      model.PeriodMorning,
	"DE MANHA":        model.PeriodMorning,
	"A TARDE":         model.PeriodAfternoon,
	"DE TARDE":        model.PeriodAfternoon,
	"EM HORA INCERTA": model.PeriodUncertain,
	"":                model.PeriodUncertain,
	"NAN":             model.PeriodUncertain,
	"NAT":             model.PeriodUncertain,
	"NONE":            model.PeriodUncertain,
	"NULL":            model.PeriodUncertain,
}

// NormalizeTag canonicalises a raw period tag. It never fails: under the
// strict policy every input lands in the enumeration; under passthrough an
// unrecognised tag comes back folded and is not Canonical.
func NormalizeTag(raw string, policy TagPolicy) model.Period {
	folded := Fold(raw)
	if p, ok := tagTable[folded]; ok {
		return p
	}
	if policy == TagPolicyPassthrough {
		return model.Period(folded)
	}
	return model.PeriodUncertain
}

// Fold trims, upper-cases and strips diacritics: " pela manhã " -> "PELA MANHA".
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, strings.ToUpper(strings.TrimSpace(s)))
	if err != nil {
		return strings.ToUpper(strings.TrimSpace(s))
	}
	return out
}
