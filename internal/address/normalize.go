// Package address cleans the street field of incident records.
package address

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sells-group/crimemap-cli/internal/model"
)

var multiSpaceRe = regexp.MustCompile(`\s+`)

// NormalizeStreet trims the street name, collapses inner whitespace and
// title-cases it with Brazilian Portuguese rules: "  RUA  SÃO JOÃO " -> "Rua São João".
// NormalizeStreet(NormalizeStreet(s)) == NormalizeStreet(s) for every s.
func NormalizeStreet(s string) string {
	s = multiSpaceRe.ReplaceAllString(strings.TrimSpace(s), " ")
	if s == "" {
		return ""
	}
	return cases.Title(language.BrazilianPortuguese).String(s)
}

// NormalizeStreets returns a copy of records with every street normalised.
func NormalizeStreets(records []model.Record) []model.Record {
	out := model.CloneRecords(records)
	for i := range out {
		out[i].Street = NormalizeStreet(out[i].Street)
	}
	return out
}
