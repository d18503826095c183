package http

import (
	"net/http"
	"strings"

	"operadoras/internal/query"
)

// ParseListingParams extracts page, size and search from the query string and
// checks them against maxSize.
func ParseListingParams(r *http.Request, maxSize int) (query.Params, error) {
	p, err := query.FromValues(r.URL.Query())
	if err != nil {
		return query.Params{}, err
	}
	p.Search = sanitizeInput(p.Search)
	if err := p.Validate(maxSize); err != nil {
		return query.Params{}, err
	}
	return p, nil
}

// PathValue returns a trimmed, sanitized path wildcard.
func PathValue(r *http.Request, name string) string {
	return sanitizeInput(r.PathValue(name))
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
