package query

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"operadoras/internal/core"
)

// Matcher implements the company search policy: case-insensitive substring
// match on the company name. With FoldDiacritics, combining marks are removed
// on both sides so "saude" matches "Saúde".
type Matcher struct {
	FoldDiacritics bool
}

// Normalize maps s into the form compared by Filter. Stores that filter in SQL
// persist this form next to the name.
func (m Matcher) Normalize(s string) string {
	s = strings.TrimSpace(s)
	if m.FoldDiacritics {
		// transformers carry state, build one per call
		t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
		if folded, _, err := transform.String(t, s); err == nil {
			s = folded
		}
	}
	return cases.Fold().String(s)
}

// Filter returns the companies matching term, preserving order.
func (m Matcher) Filter(companies []core.Company, term string) []core.Company {
	needle := m.Normalize(term)
	if needle == "" {
		return companies
	}
	out := make([]core.Company, 0, len(companies))
	for _, c := range companies {
		if strings.Contains(m.Normalize(c.Name), needle) {
			out = append(out, c)
		}
	}
	return out
}
