package table

import (
	"sync"
)

// Action is a per-row button. Visible and Disabled are evaluated per record;
// nil predicates mean always visible and never disabled. Target is the
// selector whose content the response replaces; empty means the table
// itself.
type Action struct {
	Name     string
	Label    string
	Icon     string
	Class    string
	Confirm  string
	Target   string
	Visible  func(Record) bool
	Disabled func(Record) bool
}

// Options configure a Table.
type Options struct {
	ID           string
	KeyField     string
	Columns      []Column
	SearchFields []string
	PageSizes    []int
	PageSize     int
	Actions      []Action
	Formats      *Formats
	EmptyMessage string

	// ActionPath prefixes the gesture endpoints in rendered controls.
	ActionPath string
}

// Table owns a record store and its filter, sort and page state. It is safe
// for concurrent use; every method holds the lock only while it runs.
type Table struct {
	mu      sync.RWMutex
	opts    Options
	records []Record
	filter  FilterState
	sort    SortState
	page    PageState
}

// New creates an empty Table.
func New(opts Options) *Table {
	if len(opts.PageSizes) == 0 {
		opts.PageSizes = DefaultPageSizes
	}
	if !validSize(opts.PageSizes, opts.PageSize) {
		opts.PageSize = opts.PageSizes[0]
	}
	if opts.Formats == nil {
		opts.Formats = DefaultFormats()
	}
	if opts.ActionPath == "" {
		opts.ActionPath = "/actions"
	}
	if opts.EmptyMessage == "" {
		opts.EmptyMessage = "No data available"
	}
	return &Table{
		opts: opts,
		page: PageState{Page: 1, Size: opts.PageSize},
	}
}

// Options returns the table's configuration.
func (t *Table) Options() Options {
	return t.opts
}

// SetData replaces the record store. On duplicate keys the last record wins
// and keeps the position of the first. Filter and sort state survive; the
// sort is dropped only when no new record carries the sort field. The page
// is clamped.
func (t *Table) SetData(records []Record) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.records = make([]Record, 0, len(records))
	seen := make(map[string]int, len(records))
	for _, r := range records {
		key := t.keyOf(r)
		if i, ok := seen[key]; ok {
			t.records[i] = r
			continue
		}
		seen[key] = len(t.records)
		t.records = append(t.records, r)
	}
	if t.sort.Active() && len(t.records) > 0 && !t.hasFieldLocked(t.sort.Field) {
		t.sort = SortState{}
	}
	t.clampLocked()
}

func (t *Table) hasFieldLocked(field string) bool {
	for _, r := range t.records {
		if valueOf(r, field, t.opts.Columns) != nil {
			return true
		}
	}
	return false
}

// Upsert inserts r, replacing any record with the same key. It lets callers
// patch a single row without reloading the whole store.
func (t *Table) Upsert(r Record) {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := t.keyOf(r)
	if i := t.indexLocked(key); i >= 0 {
		t.records[i] = r
	} else {
		t.records = append(t.records, r)
	}
	t.clampLocked()
}

// UpdateRow merges patch into the record with key. It reports whether the
// record existed.
func (t *Table) UpdateRow(key string, patch Record) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	i := t.indexLocked(key)
	if i < 0 {
		return false
	}
	merged := t.records[i].Clone()
	for k, v := range patch {
		merged[k] = v
	}
	t.records[i] = merged
	t.clampLocked()
	return true
}

// RemoveRow deletes the record with key. It reports whether it existed.
func (t *Table) RemoveRow(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	i := t.indexLocked(key)
	if i < 0 {
		return false
	}
	t.records = append(t.records[:i:i], t.records[i+1:]...)
	t.clampLocked()
	return true
}

// Row returns the record with key.
func (t *Table) Row(key string) (Record, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if i := t.indexLocked(key); i >= 0 {
		return t.records[i], true
	}
	return nil, false
}

// Rows returns a copy of the full record store in insertion order.
func (t *Table) Rows() []Record {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]Record(nil), t.records...)
}

// Len returns the number of stored records.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.records)
}

// Search sets the free-text term and returns to page 1.
func (t *Table) Search(term string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.filter.Term = term
	t.page.Page = 1
}

// SetEquals sets an exact-match filter on field; an empty value clears it.
func (t *Table) SetEquals(field, value string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if value == "" {
		delete(t.filter.Equals, field)
	} else {
		if t.filter.Equals == nil {
			t.filter.Equals = make(map[string]string)
		}
		t.filter.Equals[field] = value
	}
	t.page.Page = 1
}

// SetMinimum sets a numeric threshold on field.
func (t *Table) SetMinimum(field string, threshold float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.filter.Minimums == nil {
		t.filter.Minimums = make(map[string]float64)
	}
	t.filter.Minimums[field] = threshold
	t.page.Page = 1
}

// ClearMinimum removes the threshold on field.
func (t *Table) ClearMinimum(field string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.filter.Minimums, field)
	t.page.Page = 1
}

// ClearFilters resets the filter state and returns to page 1.
func (t *Table) ClearFilters() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.filter = FilterState{}
	t.page.Page = 1
}

// ToggleSort applies a header click on field. Unknown or unsortable fields
// are ignored and reported as false.
func (t *Table) ToggleSort(field string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.sortableLocked(field) {
		return false
	}
	t.sort = t.sort.Toggle(field)
	return true
}

// SortBy sets the sort explicitly.
func (t *Table) SortBy(field string, dir Direction) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.sortableLocked(field) {
		return false
	}
	if dir != Desc {
		dir = Asc
	}
	t.sort = SortState{Field: field, Direction: dir}
	return true
}

// GoToPage moves to page n. Pages outside [1, TotalPages] are rejected and
// leave the state unchanged.
func (t *Table) GoToPage(n int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	filtered := len(Filter(t.records, t.filter, t.opts.Columns, t.opts.SearchFields))
	if n < 1 || n > TotalPages(filtered, t.page.Size) {
		return false
	}
	t.page.Page = n
	return true
}

// SetPageSize changes the page size to one of the configured options and
// returns to page 1.
func (t *Table) SetPageSize(size int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !validSize(t.opts.PageSizes, size) {
		return false
	}
	t.page = PageState{Page: 1, Size: size}
	return true
}

// State returns copies of the filter, sort and page state.
func (t *Table) State() (FilterState, SortState, PageState) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.filter.Clone(), t.sort, t.page
}

// Filtered returns the filtered and sorted records across all pages.
func (t *Table) Filtered() []Record {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.filteredLocked()
}

// Action returns the row action called name.
func (t *Table) Action(name string) (Action, bool) {
	for _, a := range t.opts.Actions {
		if a.Name == name {
			return a, true
		}
	}
	return Action{}, false
}

// View runs the pipeline and returns everything a renderer needs.
func (t *Table) View() View {
	t.mu.Lock()
	defer t.mu.Unlock()

	rows := t.filteredLocked()
	t.page = t.page.Clamp(len(rows))
	page := Paginate(rows, t.page.Page, t.page.Size)

	cols := make([]Column, 0, len(t.opts.Columns))
	for _, c := range t.opts.Columns {
		if !c.Hidden {
			cols = append(cols, c)
		}
	}

	return View{
		ID:           t.opts.ID,
		KeyField:     t.opts.KeyField,
		Columns:      cols,
		Actions:      t.opts.Actions,
		Page:         page,
		Filter:       t.filter.Clone(),
		Sort:         t.sort,
		PageSizes:    t.opts.PageSizes,
		Total:        len(t.records),
		Pager:        Pager(page.Number, page.TotalPages),
		Formats:      t.opts.Formats,
		EmptyMessage: t.opts.EmptyMessage,
		ActionPath:   t.opts.ActionPath,
	}
}

func (t *Table) filteredLocked() []Record {
	filtered := Filter(t.records, t.filter, t.opts.Columns, t.opts.SearchFields)
	return Sort(filtered, t.sort, t.opts.Columns)
}

func (t *Table) clampLocked() {
	filtered := len(Filter(t.records, t.filter, t.opts.Columns, t.opts.SearchFields))
	t.page = t.page.Clamp(filtered)
}

func (t *Table) sortableLocked(field string) bool {
	c, ok := findColumn(t.opts.Columns, field)
	return ok && c.Sortable
}

func (t *Table) keyOf(r Record) string {
	return toString(Lookup(r, t.opts.KeyField))
}

func (t *Table) indexLocked(key string) int {
	for i, r := range t.records {
		if t.keyOf(r) == key {
			return i
		}
	}
	return -1
}
