package csvimport

import (
	"context"
	"fmt"
	"html/template"
	"strings"

	"stockdash/internal/component"
	"stockdash/pkg/tickerapi"
)

// maxReportedErrors is how many per-item errors a report lists.
const maxReportedErrors = 5

// Report summarises the per-item outcome of an upload.
type Report struct {
	Summary      *tickerapi.Summary
	SuccessCount int
	WarningCount int
	ErrorCount   int
	Errors       []tickerapi.Detail
}

// MoreErrors is the number of errors not listed in Errors.
func (r Report) MoreErrors() int {
	return r.ErrorCount - len(r.Errors)
}

// Summarize counts details by status and keeps the first five errors.
func Summarize(res *tickerapi.Result) Report {
	rep := Report{Summary: res.Summary}
	for _, d := range res.Details {
		switch d.Status {
		case tickerapi.StatusSuccess:
			rep.SuccessCount++
		case tickerapi.StatusWarning:
			rep.WarningCount++
		case tickerapi.StatusError:
			rep.ErrorCount++
			if len(rep.Errors) < maxReportedErrors {
				rep.Errors = append(rep.Errors, d)
			}
		}
	}
	return rep
}

// LogLine is the activity-log entry for a finished upload.
func (r Report) LogLine(message string) string {
	s := r.Summary
	if s == nil {
		return message
	}
	return fmt.Sprintf("CSV imported: %d tickers processed, %d added, %d updated, %d skipped, %d errors",
		s.TotalTickers, s.AddedTickers, s.UpdatedTickers, s.SkippedTickers, s.ErrorCount)
}

var previewTmpl = template.Must(template.New("preview").Parse(`<div id="csvPreview" class="csv-preview">
<table class="table table-sm table-striped">
<thead><tr>{{range .Headers}}<th>{{.}}</th>{{end}}</tr></thead>
<tbody>
{{- range .Rows}}
<tr>{{range .}}<td>{{.}}</td>{{end}}</tr>
{{- end}}
</tbody>
</table>
<small id="csvStats" class="text-muted">{{.Stats}}</small>
</div>`))

var reportTmpl = template.Must(template.New("report").Parse(`<div class="mt-3 upload-details">
<h6>Upload details:</h6>
<div class="mb-2">
<span class="badge bg-success me-1">{{.SuccessCount}} succeeded</span>
<span class="badge bg-warning me-1">{{.WarningCount}} warnings</span>
<span class="badge bg-danger">{{.ErrorCount}} errors</span>
</div>
{{- if .Errors}}
<div class="alert alert-danger">
<strong>Errors:</strong><br>
{{- range $i, $e := .Errors}}{{if $i}}<br>{{end}}• {{$e.Ticker}}: {{$e.Message}}{{end}}
{{- if gt .MoreErrors 0}}<br>... and {{.MoreErrors}} more errors{{end}}
</div>
{{- end}}
</div>`))

// RenderPreview renders the preview table.
func RenderPreview(p *Preview) (template.HTML, error) {
	return execute(previewTmpl, p)
}

// RenderReport renders the upload details block.
func RenderReport(r Report) (template.HTML, error) {
	return execute(reportTmpl, r)
}

func execute(t *template.Template, data any) (template.HTML, error) {
	var b strings.Builder
	if err := t.Execute(&b, data); err != nil {
		return "", fmt.Errorf("render %s: %w", t.Name(), err)
	}
	return template.HTML(b.String()), nil
}

// Widget renders the preview of an uploaded file through the component
// lifecycle. Validation runs in BeforeRender, so an invalid file never
// produces a preview.
type Widget struct {
	component.Hooks
	content string
	preview *Preview
}

// NewWidget creates a preview widget for content.
func NewWidget(content string) *Widget {
	return &Widget{content: content}
}

func (w *Widget) BeforeRender(context.Context) error {
	p, err := ParsePreview(w.content)
	if err != nil {
		return err
	}
	w.preview = p
	return nil
}

func (w *Widget) Render(context.Context) (template.HTML, error) {
	if w.preview == nil {
		return "", &ValidationError{Reason: "no preview available"}
	}
	return RenderPreview(w.preview)
}

// Preview returns the parsed preview once BeforeRender has succeeded.
func (w *Widget) Preview() *Preview {
	return w.preview
}

func (w *Widget) Destroy() {
	w.content = ""
	w.preview = nil
}
