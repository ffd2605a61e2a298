// Package csvimport validates and previews ticker CSV files before they are
// forwarded to the backend, and summarises the backend's import report.
//
// The parser is a deliberately small comma splitter: double quotes group
// commas and are dropped, fields are trimmed, and quoted fields cannot
// contain newlines.
package csvimport

import (
	"fmt"
	"strings"
)

// RequiredColumns must all appear in the header, compared
// case-insensitively.
var RequiredColumns = []string{"Ticker", "Company", "Sector", "Industry"}

// PreviewRows is how many data rows a preview keeps.
const PreviewRows = 10

// ValidationError reports a file that cannot be imported. It is handled
// locally and never retried.
type ValidationError struct {
	Reason  string
	Missing []string
}

func (e *ValidationError) Error() string {
	if len(e.Missing) > 0 {
		return "missing columns: " + strings.Join(e.Missing, ", ")
	}
	return e.Reason
}

// Preview is the parsed head of a CSV file.
type Preview struct {
	Headers   []string
	Rows      [][]string
	TotalRows int
}

// ParseLine splits one CSV line on commas outside double quotes. Quote
// characters are removed and every field is trimmed.
func ParseLine(line string) []string {
	var (
		fields  []string
		current strings.Builder
		quoted  bool
	)
	for _, r := range line {
		switch {
		case r == '"':
			quoted = !quoted
		case r == ',' && !quoted:
			fields = append(fields, strings.TrimSpace(current.String()))
			current.Reset()
		default:
			current.WriteRune(r)
		}
	}
	return append(fields, strings.TrimSpace(current.String()))
}

// Lines splits content on newlines and drops blank lines.
func Lines(content string) []string {
	var out []string
	for _, l := range strings.Split(content, "\n") {
		if strings.TrimSpace(l) != "" {
			out = append(out, strings.TrimRight(l, "\r"))
		}
	}
	return out
}

// Validate checks that content has a header plus at least one data row and
// every required column.
func Validate(content string) ([]string, error) {
	lines := Lines(content)
	if len(lines) < 2 {
		return nil, &ValidationError{Reason: "CSV file too short (fewer than 2 lines)"}
	}
	headers := ParseLine(lines[0])
	if missing := MissingColumns(headers); len(missing) > 0 {
		return nil, &ValidationError{Missing: missing}
	}
	return lines, nil
}

// MissingColumns returns the required columns absent from headers, in
// RequiredColumns order.
func MissingColumns(headers []string) []string {
	var missing []string
	for _, want := range RequiredColumns {
		found := false
		for _, h := range headers {
			if strings.EqualFold(h, want) {
				found = true
				break
			}
		}
		if !found {
			missing = append(missing, want)
		}
	}
	return missing
}

// ParsePreview validates content and returns its header, the first
// PreviewRows data rows, and the total data row count.
func ParsePreview(content string) (*Preview, error) {
	lines, err := Validate(content)
	if err != nil {
		return nil, err
	}
	p := &Preview{
		Headers:   ParseLine(lines[0]),
		TotalRows: len(lines) - 1,
	}
	for _, l := range lines[1:min(len(lines), PreviewRows+1)] {
		p.Rows = append(p.Rows, ParseLine(l))
	}
	return p, nil
}

// Column returns the index of the header matching name case-insensitively,
// or -1.
func (p *Preview) Column(name string) int {
	for i, h := range p.Headers {
		if strings.EqualFold(h, name) {
			return i
		}
	}
	return -1
}

// Symbols returns the upper-cased values of the Ticker column in the
// previewed rows.
func (p *Preview) Symbols() []string {
	idx := p.Column("Ticker")
	if idx < 0 {
		return nil
	}
	var out []string
	for _, row := range p.Rows {
		if idx < len(row) && row[idx] != "" {
			out = append(out, strings.ToUpper(row[idx]))
		}
	}
	return out
}

// Stats is the line shown under the preview.
func (p *Preview) Stats() string {
	return fmt.Sprintf("%d tickers found, showing the first %d", p.TotalRows, len(p.Rows))
}
