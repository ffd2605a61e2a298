package chart

import (
	"context"
	"fmt"
	"html/template"
	"strings"

	"stockdash/internal/component"
)

var chartTmpl = template.Must(template.New("chart").Parse(`<div class="plotly-chart-container" data-symbol="{{.Symbol}}">
<div class="plotly-toolbar" role="toolbar">
{{- range .Modes}}
<button type="button" class="btn btn-sm btn-outline-secondary{{if eq . $.Mode}} active{{end}}" data-chart-mode="{{.}}">{{.}}</button>
{{- end}}
<button type="button" class="btn btn-sm btn-outline-secondary" data-chart-action="reset">reset</button>
<button type="button" class="btn btn-sm btn-outline-secondary" data-chart-action="export">export</button>
<button type="button" class="btn btn-sm btn-outline-secondary" data-chart-action="fullscreen">fullscreen</button>
</div>
<div id="{{.ID}}" class="plotly-chart-main" style="height: {{.Height}}px"></div>
<script type="application/json" id="{{.ID}}-figure">{{.Figure}}</script>
</div>`))

// Widget renders a Chart through the component lifecycle.
type Widget struct {
	component.Hooks
	chart *Chart
	id    string
}

// NewWidget wraps c. The element id is derived from the symbol.
func NewWidget(c *Chart) *Widget {
	return &Widget{chart: c, id: "chart-" + strings.ToLower(c.Symbol())}
}

// ID is the DOM id of the plot element.
func (w *Widget) ID() string {
	return w.id
}

func (w *Widget) Render(context.Context) (template.HTML, error) {
	fig, err := w.chart.JSON()
	if err != nil {
		return "", fmt.Errorf("marshal figure: %w", err)
	}
	f := w.chart.Figure()
	var b strings.Builder
	err = chartTmpl.Execute(&b, map[string]any{
		"Symbol": w.chart.Symbol(),
		"ID":     w.id,
		"Height": f.Layout.Height,
		"Mode":   f.Layout.DragMode,
		"Modes":  []Mode{ModeZoom, ModePan, ModeSelect},
		"Figure": template.JS(fig),
	})
	if err != nil {
		return "", fmt.Errorf("render chart: %w", err)
	}
	return template.HTML(b.String()), nil
}
