package table

import (
	"bytes"
	"fmt"
	"html/template"
)

// View is the read-only result of one pipeline run.
type View struct {
	ID           string
	KeyField     string
	Columns      []Column
	Actions      []Action
	Page         Page
	Filter       FilterState
	Sort         SortState
	PageSizes    []int
	Total        int
	Pager        []PagerItem
	Formats      *Formats
	EmptyMessage string
	ActionPath   string
}

// Summary is the info line under the table, e.g.
// "Showing 1-25 of 30 results (filtered from 120 total)".
func (v View) Summary() string {
	n := v.Page.Total
	first := min(v.Page.StartIndex+1, n)
	s := fmt.Sprintf("Showing %d-%d of %d results", first, v.Page.EndIndex, n)
	if !v.Filter.IsEmpty() {
		s += fmt.Sprintf(" (filtered from %d total)", v.Total)
	}
	return s
}

// SortIndicator returns the arrow for column key: ▲, ▼ or "".
func (v View) SortIndicator(key string) string {
	if v.Sort.Field != key {
		return ""
	}
	if v.Sort.Direction == Desc {
		return "▼"
	}
	return "▲"
}

// Key returns the identity of r.
func (v View) Key(r Record) string {
	return toString(Lookup(r, v.KeyField))
}

// RowAction is an Action resolved against one record.
type RowAction struct {
	Action
	Disabled bool
}

// RowActions returns the actions visible for r with their disabled state
// resolved.
func (v View) RowActions(r Record) []RowAction {
	out := make([]RowAction, 0, len(v.Actions))
	for _, a := range v.Actions {
		if a.Visible != nil && !a.Visible(r) {
			continue
		}
		out = append(out, RowAction{Action: a, Disabled: a.Disabled != nil && a.Disabled(r)})
	}
	return out
}

var tableTmpl = template.Must(template.New("table").Parse(`<div class="datatable" id="{{.ID}}" data-total="{{.Total}}">
<table class="table table-hover align-middle">
<thead><tr>
{{- range .Columns}}
<th{{if .Width}} style="width: {{.Width}}"{{end}}{{if .ClassName}} class="{{.ClassName}}"{{end}}>
{{- if .Sortable}}<button type="button" class="datatable-sort" data-sort="{{.Key}}" hx-post="{{$.ActionPath}}/sort/{{.Key}}" hx-target="#{{$.ID}}" hx-swap="outerHTML">{{.Title}} <span class="sort-indicator">{{$.SortIndicator .Key}}</span></button>
{{- else}}{{.Title}}{{end -}}
</th>
{{- end}}
{{- if .Actions}}<th class="text-end">Actions</th>{{end}}
</tr></thead>
<tbody>
{{- range $r := .Page.Records}}
<tr data-row-key="{{$.Key $r}}">
{{- range $c := $.Columns}}<td{{if $c.ClassName}} class="{{$c.ClassName}}"{{end}}>{{$.Formats.Cell $c $r}}</td>{{end}}
{{- if $.Actions}}<td class="text-end">
{{- range $.RowActions $r}}<button type="button" class="btn btn-sm {{or .Class "btn-outline-secondary"}}" hx-post="{{$.ActionPath}}/row/{{.Name}}/{{$.Key $r}}" hx-target="{{if .Target}}{{.Target}}{{else}}#{{$.ID}}{{end}}" hx-swap="{{if .Target}}innerHTML{{else}}outerHTML{{end}}"{{if .Confirm}} hx-confirm="{{.Confirm}}"{{end}} data-action="{{.Name}}" data-row-key="{{$.Key $r}}"{{if .Disabled}} disabled{{end}}>{{if .Icon}}<i class="{{.Icon}}"></i> {{end}}{{.Label}}</button>{{end -}}
</td>{{end}}
</tr>
{{- else}}
<tr class="datatable-empty"><td colspan="{{.ColumnSpan}}" class="text-center text-muted">{{.EmptyMessage}}</td></tr>
{{- end}}
</tbody>
</table>
<div class="datatable-footer d-flex justify-content-between align-items-center">
<small class="datatable-info text-muted">{{.Summary}}</small>
<select class="datatable-page-size form-select form-select-sm" name="size" hx-post="{{.ActionPath}}/page-size" hx-target="#{{.ID}}" hx-swap="outerHTML">
{{- range .PageSizes}}<option value="{{.}}"{{if eq . $.Page.Size}} selected{{end}}>{{.}}</option>{{end -}}
</select>
{{- if .Pager}}
<nav><ul class="pagination pagination-sm mb-0">
{{- range .Pager}}
{{- if .Ellipsis}}<li class="page-item disabled"><span class="page-link">…</span></li>
{{- else}}<li class="page-item{{if .Active}} active{{end}}{{if .Disabled}} disabled{{end}}"><button type="button" class="page-link datatable-page" data-page="{{.Page}}" hx-post="{{$.ActionPath}}/page/{{.Page}}" hx-target="#{{$.ID}}" hx-swap="outerHTML"{{if .Disabled}} disabled{{end}}>{{.Label}}</button></li>
{{- end}}
{{- end}}
</ul></nav>
{{- end}}
</div>
</div>`))

// ColumnSpan is the number of cells in a row, counting the actions cell.
func (v View) ColumnSpan() int {
	if len(v.Actions) > 0 {
		return len(v.Columns) + 1
	}
	return len(v.Columns)
}

// Render projects v to HTML. The output replaces the table container
// wholesale.
func Render(v View) (template.HTML, error) {
	if v.Formats == nil {
		v.Formats = DefaultFormats()
	}
	var buf bytes.Buffer
	if err := tableTmpl.Execute(&buf, v); err != nil {
		return "", fmt.Errorf("render table %s: %w", v.ID, err)
	}
	return template.HTML(buf.String()), nil
}
