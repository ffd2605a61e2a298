package table

import (
	"strings"
)

// FilterState is the free-text term plus the discrete constraints. An empty
// Equals value means "any".
type FilterState struct {
	Term     string
	Equals   map[string]string
	Minimums map[string]float64
}

// IsEmpty reports whether the state selects every record.
func (f FilterState) IsEmpty() bool {
	if strings.TrimSpace(f.Term) != "" {
		return false
	}
	for _, v := range f.Equals {
		if v != "" {
			return false
		}
	}
	return len(f.Minimums) == 0
}

// Clone returns a deep copy of f.
func (f FilterState) Clone() FilterState {
	out := FilterState{Term: f.Term}
	if len(f.Equals) > 0 {
		out.Equals = make(map[string]string, len(f.Equals))
		for k, v := range f.Equals {
			out.Equals[k] = v
		}
	}
	if len(f.Minimums) > 0 {
		out.Minimums = make(map[string]float64, len(f.Minimums))
		for k, v := range f.Minimums {
			out.Minimums[k] = v
		}
	}
	return out
}

// Filter returns the records matching state. The term matches when any
// search field contains it case-insensitively; with no search fields every
// column key is searched. Equality filters are exact and case-sensitive,
// minimum filters compare the coerced number. All constraints are ANDed.
// The result is always a fresh slice.
func Filter(records []Record, state FilterState, columns []Column, searchFields []string) []Record {
	out := make([]Record, 0, len(records))
	if state.IsEmpty() {
		return append(out, records...)
	}

	term := strings.ToLower(strings.TrimSpace(state.Term))
	fields := searchFields
	if len(fields) == 0 {
		fields = make([]string, 0, len(columns))
		for _, c := range columns {
			fields = append(fields, c.Key)
		}
	}

	for _, r := range records {
		if term != "" && !matchesTerm(r, term, fields, columns) {
			continue
		}
		if !matchesEquals(r, state.Equals, columns) {
			continue
		}
		if !matchesMinimums(r, state.Minimums, columns) {
			continue
		}
		out = append(out, r)
	}
	return out
}

func matchesTerm(r Record, term string, fields []string, columns []Column) bool {
	for _, f := range fields {
		if strings.Contains(strings.ToLower(toString(valueOf(r, f, columns))), term) {
			return true
		}
	}
	return false
}

func matchesEquals(r Record, equals map[string]string, columns []Column) bool {
	for field, want := range equals {
		if want == "" {
			continue
		}
		if toString(valueOf(r, field, columns)) != want {
			return false
		}
	}
	return true
}

func matchesMinimums(r Record, minimums map[string]float64, columns []Column) bool {
	for field, threshold := range minimums {
		if toNumber(valueOf(r, field, columns)) < threshold {
			return false
		}
	}
	return true
}
