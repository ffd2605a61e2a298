package table

import "slices"

// DefaultPageSizes are the page-size options offered when none are
// configured.
var DefaultPageSizes = []int{10, 25, 50, 100}

// PageState is the current 1-based page and the page size.
type PageState struct {
	Page int
	Size int
}

// Clamp returns p with Page forced into [1, TotalPages(filtered, Size)].
func (p PageState) Clamp(filtered int) PageState {
	p.Page = min(max(p.Page, 1), TotalPages(filtered, p.Size))
	return p
}

// validSize reports whether size is one of the offered options.
func validSize(options []int, size int) bool {
	return size > 0 && slices.Contains(options, size)
}
