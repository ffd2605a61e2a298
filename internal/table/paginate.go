package table

import "strconv"

// Page is one slice of the filtered and sorted records. StartIndex and
// EndIndex are zero-based and half-open over the full filtered set.
type Page struct {
	Records    []Record
	Number     int
	Size       int
	TotalPages int
	StartIndex int
	EndIndex   int
	Total      int
}

// TotalPages returns max(1, ceil(n/size)).
func TotalPages(n, size int) int {
	if size <= 0 || n <= 0 {
		return 1
	}
	return (n + size - 1) / size
}

// Paginate slices records for the 1-based page. Pages outside
// [1, TotalPages] yield an empty, non-nil slice; rejecting them is the
// caller's job. A non-positive size puts every record on one page.
func Paginate(records []Record, page, size int) Page {
	n := len(records)
	if size <= 0 {
		size = max(n, 1)
	}
	p := Page{
		Number:     page,
		Size:       size,
		TotalPages: TotalPages(n, size),
		Total:      n,
		Records:    []Record{},
	}

	start := (page - 1) * size
	if page < 1 || start >= n {
		start = min(max(start, 0), n)
		p.StartIndex, p.EndIndex = start, start
		return p
	}
	end := min(start+size, n)
	p.StartIndex, p.EndIndex = start, end
	p.Records = append(p.Records, records[start:end]...)
	return p
}

// PagerItem is one control in the pagination bar.
type PagerItem struct {
	Label    string
	Page     int
	Active   bool
	Disabled bool
	Ellipsis bool
	Prev     bool
	Next     bool
}

// pagerWindow is how many pages either side of the current one are shown.
const pagerWindow = 2

// Pager builds the pagination controls for current of total pages: prev,
// first page shortcut, a window of current±2, last page shortcut, next.
// Ellipses mark gaps between the shortcuts and the window. A single page
// yields no controls.
func Pager(current, total int) []PagerItem {
	if total <= 1 {
		return nil
	}
	current = min(max(current, 1), total)

	items := []PagerItem{{Label: "‹", Page: current - 1, Prev: true, Disabled: current == 1}}

	start := max(1, current-pagerWindow)
	end := min(total, current+pagerWindow)
	if start > 1 {
		items = append(items, PagerItem{Label: "1", Page: 1})
		if start > 2 {
			items = append(items, PagerItem{Label: "…", Ellipsis: true, Disabled: true})
		}
	}
	for i := start; i <= end; i++ {
		items = append(items, PagerItem{Label: strconv.Itoa(i), Page: i, Active: i == current})
	}
	if end < total {
		if end < total-1 {
			items = append(items, PagerItem{Label: "…", Ellipsis: true, Disabled: true})
		}
		items = append(items, PagerItem{Label: strconv.Itoa(total), Page: total})
	}

	return append(items, PagerItem{Label: "›", Page: current + 1, Next: true, Disabled: current == total})
}
