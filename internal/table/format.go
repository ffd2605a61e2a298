package table

import (
	"fmt"
	"html/template"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

var currencySymbols = map[string]string{
	"USD": "$",
	"EUR": "€",
	"GBP": "£",
	"JPY": "¥",
	"CHF": "CHF",
}

// Formats renders values with the built-in formatters for one locale.
type Formats struct {
	tag        language.Tag
	printer    *message.Printer
	currency   string
	symbol     string
	dateLayout string
}

// NewFormats creates formatters for the BCP 47 locale and ISO 4217
// currency code. Unknown values fall back to English and USD.
func NewFormats(locale, currencyCode string) *Formats {
	tag, err := language.Parse(locale)
	if err != nil {
		tag = language.English
	}
	unit, err := currency.ParseISO(currencyCode)
	if err != nil {
		unit = currency.USD
	}
	code := unit.String()
	symbol, ok := currencySymbols[code]
	if !ok {
		symbol = code
	}

	base, _ := tag.Base()
	layout := "2/1/2006"
	if base.String() == "en" {
		layout = "1/2/2006"
	}

	return &Formats{
		tag:        tag,
		printer:    message.NewPrinter(tag),
		currency:   code,
		symbol:     symbol,
		dateLayout: layout,
	}
}

// DefaultFormats is English with US dollars.
func DefaultFormats() *Formats {
	return NewFormats("en", "USD")
}

// Locale returns the formatter's language tag.
func (f *Formats) Locale() language.Tag {
	return f.tag
}

// Currency formats v rounded to two decimals with locale grouping and the
// currency symbol.
func (f *Formats) Currency(v float64) string {
	rounded := decimal.NewFromFloat(v).Round(2).InexactFloat64()
	amount := f.printer.Sprintf("%.2f", math.Abs(rounded))
	sign := ""
	if rounded < 0 {
		sign = "-"
	}
	if f.prefixSymbol() {
		return sign + f.symbol + amount
	}
	return sign + amount + " " + f.symbol
}

func (f *Formats) prefixSymbol() bool {
	base, _ := f.tag.Base()
	return base.String() == "en" || f.currency == "USD"
}

// Number formats v with locale grouping; integral values print without a
// fraction.
func (f *Formats) Number(v float64) string {
	if v == math.Trunc(v) && math.Abs(v) < 1e15 {
		return f.printer.Sprintf("%d", int64(v))
	}
	return f.printer.Sprint(number.Decimal(v, number.MaxFractionDigits(3)))
}

// Percentage formats a ratio: 0.1234 becomes "12.34%".
func (f *Formats) Percentage(v float64) string {
	return decimal.NewFromFloat(v).Mul(decimal.NewFromInt(100)).StringFixed(2) + "%"
}

// Date formats the calendar day of t in the locale's short form. The zero
// time formats as "".
func (f *Formats) Date(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(f.dateLayout)
}

// DateTime formats t with the locale's date layout and a 24h clock.
func (f *Formats) DateTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(f.dateLayout + " 15:04:05")
}

// ParseDate reads a string produced by Date back into a time at midnight
// UTC. ISO dates are accepted as well.
func (f *Formats) ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{f.dateLayout, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("parse date %q: unrecognised layout", s)
}

// Text formats v with the named built-in formatter as plain text.
func (f *Formats) Text(kind string, v any) string {
	if v == nil {
		return ""
	}
	switch kind {
	case FormatCurrency:
		return f.Currency(toNumber(v))
	case FormatNumber:
		return f.Number(toNumber(v))
	case FormatPercentage:
		return f.Percentage(toNumber(v))
	case FormatDate:
		return f.Date(toTime(v))
	case FormatDateTime:
		return f.DateTime(toTime(v))
	case FormatBoolean:
		if toBool(v) {
			return "✓"
		}
		return "✗"
	default:
		return toString(v)
	}
}

// HTML formats v with the named built-in formatter. Everything except the
// boolean glyph is HTML-escaped text.
func (f *Formats) HTML(kind string, v any) template.HTML {
	if kind == FormatBoolean {
		if toBool(v) {
			return `<span class="text-success" title="yes">✓</span>`
		}
		return `<span class="text-danger" title="no">✗</span>`
	}
	return template.HTML(template.HTMLEscapeString(f.Text(kind, v)))
}

// Cell renders the value of column c in record r.
func (f *Formats) Cell(c Column, r Record) template.HTML {
	v := c.Value(r)
	if c.Formatter != nil {
		return c.Formatter(v)
	}
	return f.HTML(c.Format, v)
}

// CellText is Cell without markup, for terminal output.
func (f *Formats) CellText(c Column, r Record) string {
	return f.Text(c.Format, c.Value(r))
}
