// Package query builds and validates listing requests and computes the
// pagination bookkeeping returned alongside every page.
package query

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"unicode/utf8"

	"operadoras/internal/core"
)

// Recognised listing options and their defaults.
const (
	DefaultPage        = 1
	DefaultSize        = 10
	DefaultMaxPageSize = 100
	MaxSearchLength    = 100
)

// Params is a listing request. Zero values mean "use the default".
type Params struct {
	Page   int
	Size   int
	Search string
}

// DefaultParams returns {page: 1, size: 10, search: ""}.
func DefaultParams() Params {
	return Params{Page: DefaultPage, Size: DefaultSize}
}

// Normalize fills unspecified fields with their defaults and trims the search term.
func (p Params) Normalize() Params {
	if p.Page == 0 {
		p.Page = DefaultPage
	}
	if p.Size == 0 {
		p.Size = DefaultSize
	}
	p.Search = strings.TrimSpace(p.Search)
	return p
}

// Validate rejects out-of-domain values. maxSize <= 0 disables the upper bound.
func (p Params) Validate(maxSize int) error {
	const op = "validate params"
	if p.Page < 1 {
		return core.E(core.KindValidation, op, fmt.Sprintf("page must be >= 1, got %d", p.Page))
	}
	if p.Size < 1 {
		return core.E(core.KindValidation, op, fmt.Sprintf("size must be >= 1, got %d", p.Size))
	}
	if maxSize > 0 && p.Size > maxSize {
		return core.E(core.KindValidation, op, fmt.Sprintf("size must be <= %d, got %d", maxSize, p.Size))
	}
	if utf8.RuneCountInString(p.Search) > MaxSearchLength {
		return core.E(core.KindValidation, op, fmt.Sprintf("search term longer than %d characters", MaxSearchLength))
	}
	return nil
}

// Offset is the number of filtered records preceding the requested page.
func (p Params) Offset() int {
	return (p.Page - 1) * p.Size
}

// FromValues reads page, size and search from URL query values. Missing keys
// keep their defaults; non-numeric page or size is a validation error.
func FromValues(v url.Values) (Params, error) {
	p := DefaultParams()
	if raw := strings.TrimSpace(v.Get("page")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return p, core.E(core.KindValidation, "parse params", fmt.Sprintf("page %q is not a number", raw))
		}
		p.Page = n
	}
	if raw := strings.TrimSpace(v.Get("size")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return p, core.E(core.KindValidation, "parse params", fmt.Sprintf("size %q is not a number", raw))
		}
		p.Size = n
	}
	p.Search = strings.TrimSpace(v.Get("search"))
	return p, nil
}

// Values encodes p as URL query values, omitting an empty search term.
func (p Params) Values() url.Values {
	v := url.Values{}
	v.Set("page", strconv.Itoa(p.Page))
	v.Set("size", strconv.Itoa(p.Size))
	if p.Search != "" {
		v.Set("search", p.Search)
	}
	return v
}
