package pipeline

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sells-group/crimemap-cli/internal/model"
)

// FormatReport renders a human-readable summary of a run.
func FormatReport(source string, r model.Report) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Cleaning Report: %s\n\n", source)

	b.WriteString("## Rows\n")
	fmt.Fprintf(&b, "- Input: %d\n", r.InputRows)
	fmt.Fprintf(&b, "- Dropped (restricted disclosure): %d\n", r.RestrictedDropped)
	fmt.Fprintf(&b, "- Output: %d\n\n", r.OutputRows)

	b.WriteString("## Period of day\n")
	fmt.Fprintf(&b, "- Tags normalized: %d\n", r.TagsNormalized)
	fmt.Fprintf(&b, "- Tags derived from time: %d\n", r.TagsFromTime)
	fmt.Fprintf(&b, "- Reference entries: %d\n", r.ReferenceEntries)
	fmt.Fprintf(&b, "- Times imputed: %d\n", r.TimesImputed)
	fmt.Fprintf(&b, "- Still untimed: %d\n\n", r.Untimed)

	b.WriteString("## Coordinates\n")
	fmt.Fprintf(&b, "- Imputed from street neighbours: %d\n", r.CoordsImputedLocal)
	fmt.Fprintf(&b, "- Imputed by geocoder: %d\n", r.CoordsImputedRemote)
	fmt.Fprintf(&b, "- Unresolved: %d\n\n", r.CoordsUnresolved)

	b.WriteString("## Stages\n")
	for _, s := range r.Stages {
		fmt.Fprintf(&b, "- %s (%dms)\n", s.Name, s.Duration.Milliseconds())
	}
	b.WriteString("\n")

	b.WriteString("## Diagnostics\n")
	if len(r.Diagnostics) == 0 {
		b.WriteString("None.\n")
		return b.String()
	}
	counts := countByKind(r.Diagnostics)
	kinds := make([]string, 0, len(counts))
	for k := range counts {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		fmt.Fprintf(&b, "- %s: %d\n", k, counts[model.DiagnosticKind(k)])
	}
	return b.String()
}
