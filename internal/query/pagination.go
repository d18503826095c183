package query

import "operadoras/internal/core"

// NewPageMetadata computes the metadata for a page of a filtered universe
// holding total records. size must be positive.
func NewPageMetadata(page, size, total int) core.PageMetadata {
	pages := 0
	if total > 0 {
		pages = (total + size - 1) / size
	}
	return core.PageMetadata{
		Page:         page,
		Size:         size,
		TotalRecords: total,
		TotalPages:   pages,
	}
}

// Page slices an already filtered universe. A page beyond the last one yields
// an empty, non-nil slice and still-valid metadata.
func Page[T any](items []T, p Params) ([]T, core.PageMetadata) {
	meta := NewPageMetadata(p.Page, p.Size, len(items))
	start := p.Offset()
	if start >= len(items) {
		return []T{}, meta
	}
	end := start + p.Size
	if end > len(items) {
		end = len(items)
	}
	out := make([]T, end-start)
	copy(out, items[start:end])
	return out, meta
}
