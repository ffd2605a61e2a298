package table

import (
	"cmp"
	"sort"
	"strings"
)

// Direction is the order of the active sort.
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// SortState is at most one active (field, direction) pair. The zero value
// leaves records in insertion order.
type SortState struct {
	Field     string
	Direction Direction
}

// Active reports whether a sort field is set.
func (s SortState) Active() bool {
	return s.Field != ""
}

// Toggle returns the state after a header click on field: the same field
// flips direction, a different field starts ascending.
func (s SortState) Toggle(field string) SortState {
	if s.Field == field {
		return SortState{Field: field, Direction: s.Direction.flip()}
	}
	return SortState{Field: field, Direction: Asc}
}

func (d Direction) flip() Direction {
	if d == Desc {
		return Asc
	}
	return Desc
}

// Sort returns a copy of records ordered by state. Values compare by the
// column's type; desc negates each comparison. The sort is stable, so equal
// keys keep insertion order.
func Sort(records []Record, state SortState, columns []Column) []Record {
	out := make([]Record, len(records))
	copy(out, records)
	if !state.Active() {
		return out
	}

	col, ok := findColumn(columns, state.Field)
	if !ok {
		col = Column{Key: state.Field, Type: TypeString}
	}
	sort.SliceStable(out, func(i, j int) bool {
		c := Compare(col.Value(out[i]), col.Value(out[j]), col.Type)
		if state.Direction == Desc {
			c = -c
		}
		return c < 0
	})
	return out
}

// Compare orders a and b as values of type typ: dates by timestamp,
// numbers as floats, everything else as lowercase strings.
func Compare(a, b any, typ ValueType) int {
	switch typ {
	case TypeDate:
		return toTime(a).Compare(toTime(b))
	case TypeNumber:
		return cmp.Compare(toNumber(a), toNumber(b))
	case TypeBoolean:
		return cmp.Compare(boolRank(toBool(a)), boolRank(toBool(b)))
	default:
		return strings.Compare(strings.ToLower(toString(a)), strings.ToLower(toString(b)))
	}
}

func boolRank(b bool) int {
	if b {
		return 1
	}
	return 0
}
