package table

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/parquet-go/parquet-go"
)

// ExportCSV writes the filtered and sorted records, every page, as CSV with
// the column titles as header and raw accessor values as cells.
func (t *Table) ExportCSV(w io.Writer) error {
	t.mu.RLock()
	rows := t.filteredLocked()
	columns := t.opts.Columns
	t.mu.RUnlock()

	cw := csv.NewWriter(w)
	header := make([]string, len(columns))
	for i, c := range columns {
		header[i] = c.Title
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, r := range rows {
		line := make([]string, len(columns))
		for i, c := range columns {
			line[i] = toString(c.Value(r))
		}
		if err := cw.Write(line); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// Cell is one exported value in long format: one row per (record, column).
type Cell struct {
	Row    int64   `parquet:"row"`
	Key    string  `parquet:"key"`
	Column string  `parquet:"column"`
	Type   string  `parquet:"type"`
	Text   string  `parquet:"text"`
	Number float64 `parquet:"number"`
}

// Cells flattens the filtered and sorted records into long format.
func (t *Table) Cells() []Cell {
	t.mu.RLock()
	defer t.mu.RUnlock()

	rows := t.filteredLocked()
	out := make([]Cell, 0, len(rows)*len(t.opts.Columns))
	for i, r := range rows {
		key := t.keyOf(r)
		for _, c := range t.opts.Columns {
			v := c.Value(r)
			typ := c.Type
			if typ == "" {
				typ = TypeString
			}
			out = append(out, Cell{
				Row:    int64(i),
				Key:    key,
				Column: c.Key,
				Type:   string(typ),
				Text:   toString(v),
				Number: toNumber(v),
			})
		}
	}
	return out
}

// ExportParquet writes Cells as a Parquet file to w.
func (t *Table) ExportParquet(w io.Writer) error {
	cells := t.Cells()
	pw := parquet.NewGenericWriter[Cell](w)
	if _, err := pw.Write(cells); err != nil {
		return fmt.Errorf("write parquet cells: %w", err)
	}
	if err := pw.Close(); err != nil {
		return fmt.Errorf("close parquet writer: %w", err)
	}
	return nil
}
