package table

import (
	"context"
	"html/template"

	"stockdash/internal/component"
)

// Widget adapts a Table to the component lifecycle.
type Widget struct {
	component.Hooks
	table *Table
}

// NewWidget wraps t.
func NewWidget(t *Table) *Widget {
	return &Widget{table: t}
}

// Render runs the pipeline and renders the current page.
func (w *Widget) Render(context.Context) (template.HTML, error) {
	return Render(w.table.View())
}
