// Package table implements the generic table engine behind every list in
// the dashboard. A Table owns its records and its filter, sort and page
// state; each View runs Filter → Sort → Paginate over the full record set
// and the result is projected to HTML (Render), plain text (RenderText) or
// an export file.
package table

import (
	"html/template"
	"strings"
)

// Record is one row: a mapping from field key to a string, number, time,
// bool or nil value. Nested maps are addressable with dotted keys.
type Record map[string]any

// Clone returns a shallow copy of r.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// ValueType tags how a column's values compare.
type ValueType string

const (
	TypeString  ValueType = "string"
	TypeNumber  ValueType = "number"
	TypeDate    ValueType = "date"
	TypeBoolean ValueType = "boolean"
)

// Built-in formatter tags.
const (
	FormatCurrency   = "currency"
	FormatNumber     = "number"
	FormatPercentage = "percentage"
	FormatDate       = "date"
	FormatDateTime   = "datetime"
	FormatBoolean    = "boolean"
)

// Column describes how to read, sort and format one field.
type Column struct {
	Key      string
	Title    string
	Accessor func(Record) any
	Type     ValueType
	Sortable bool

	// Format names a built-in formatter. Formatter, when set, wins.
	Format    string
	Formatter func(any) template.HTML

	Hidden    bool
	Width     string
	ClassName string
}

// Value extracts the column's value from r.
func (c Column) Value(r Record) any {
	if c.Accessor != nil {
		return c.Accessor(r)
	}
	return Lookup(r, c.Key)
}

// Lookup returns the value stored under key. A key that is not present
// verbatim is split on dots and walked through nested maps. Missing values
// are nil.
func Lookup(r Record, key string) any {
	if v, ok := r[key]; ok {
		return v
	}
	if !strings.Contains(key, ".") {
		return nil
	}
	var cur any = map[string]any(r)
	for _, part := range strings.Split(key, ".") {
		switch m := cur.(type) {
		case map[string]any:
			cur = m[part]
		case Record:
			cur = m[part]
		default:
			return nil
		}
	}
	return cur
}

func findColumn(columns []Column, key string) (Column, bool) {
	for _, c := range columns {
		if c.Key == key {
			return c, true
		}
	}
	return Column{}, false
}

// valueOf reads field through its column when one exists, otherwise by key.
func valueOf(r Record, field string, columns []Column) any {
	if c, ok := findColumn(columns, field); ok {
		return c.Value(r)
	}
	return Lookup(r, field)
}
