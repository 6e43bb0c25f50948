// Package ui renders CLI output: coloured status lines, money amounts in
// the configured currency and aligned tables.
package ui

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/Rhymond/go-money"
	"github.com/dvloznov/finance-ledger/internal/domain"
	"github.com/fatih/color"
	"github.com/shopspring/decimal"
)

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow, color.Bold)
	blue   = color.New(color.FgBlue)
	red    = color.New(color.FgRed)
)

// FormatMoney renders amount in the given ISO currency, e.g. "$1,234.56".
// Unknown currencies fall back to the plain decimal with the code appended.
func FormatMoney(amount decimal.Decimal, currency string) string {
	cur := money.GetCurrency(strings.ToUpper(currency))
	if cur == nil {
		return amount.StringFixed(2) + " " + currency
	}
	minor := amount.Shift(int32(cur.Fraction)).Round(0)
	return cur.Formatter().Format(minor.IntPart())
}

// Printer writes CLI output to a stream.
type Printer struct {
	out      io.Writer
	currency string
}

// NewPrinter creates a Printer. An empty currency means USD.
func NewPrinter(out io.Writer, currency string) *Printer {
	if currency == "" {
		currency = money.USD
	}
	return &Printer{out: out, currency: currency}
}

// Money formats amount in the printer's currency.
func (p *Printer) Money(amount decimal.Decimal) string {
	return FormatMoney(amount, p.currency)
}

// Delta formats a signed change, green when positive and red when negative.
func (p *Printer) Delta(amount decimal.Decimal) string {
	switch amount.Sign() {
	case 1:
		return green.Sprint("+" + p.Money(amount))
	case -1:
		return red.Sprint(p.Money(amount))
	}
	return p.Money(amount)
}

// Header prints a section header.
func (p *Printer) Header(text string) {
	line := strings.Repeat("=", 60)
	green.Fprintf(p.out, "\n%s\n%s\n%s\n\n", line, center(text, 60), line)
}

// Success prints a success message.
func (p *Printer) Success(format string, args ...any) {
	green.Fprintf(p.out, "  → %s\n", fmt.Sprintf(format, args...))
}

// Info prints an info message.
func (p *Printer) Info(format string, args ...any) {
	fmt.Fprintf(p.out, "  → %s\n", fmt.Sprintf(format, args...))
}

// Warning prints a warning.
func (p *Printer) Warning(format string, args ...any) {
	yellow.Fprintf(p.out, "  ⚠ %s\n", fmt.Sprintf(format, args...))
}

// Error prints an error message. Ledger errors are shown by their message
// alone, without the wrapping added on the way up.
func (p *Printer) Error(err error) {
	var derr *domain.Error
	if errors.As(err, &derr) {
		red.Fprintf(p.out, "Error: %s\n", derr.Message)
		return
	}
	red.Fprintf(p.out, "Error: %v\n", err)
}

// Prompt prints a question without a trailing newline.
func (p *Printer) Prompt(text string) {
	blue.Fprint(p.out, text)
}

// Table prints rows under headers with aligned columns.
func (p *Printer) Table(headers []string, rows [][]string) {
	w := tabwriter.NewWriter(p.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, strings.Join(headers, "\t"))
	for _, r := range rows {
		fmt.Fprintln(w, strings.Join(r, "\t"))
	}
	_ = w.Flush()
}

func center(text string, width int) string {
	if len(text) >= width {
		return text
	}
	return strings.Repeat(" ", (width-len(text))/2) + text
}
