package ui

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/dvloznov/finance-ledger/internal/domain"
	"github.com/fatih/color"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestMain(m *testing.M) {
	color.NoColor = true
	m.Run()
}

func TestFormatMoney(t *testing.T) {
	tests := []struct {
		amount   string
		currency string
		want     string
	}{
		{"1234.56", "USD", "$1,234.56"},
		{"-250.5", "USD", "-$250.50"},
		{"0", "usd", "$0.00"},
		{"10.005", "USD", "$10.01"},
		{"1500", "JPY", "¥1,500"},
		{"12.3", "XYZ", "12.30 XYZ"},
	}
	for _, tt := range tests {
		t.Run(tt.amount+" "+tt.currency, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatMoney(decimal.RequireFromString(tt.amount), tt.currency))
		})
	}
}

func TestPrinterDelta(t *testing.T) {
	p := NewPrinter(&bytes.Buffer{}, "")
	assert.Equal(t, "+$5.00", p.Delta(decimal.NewFromInt(5)))
	assert.Equal(t, "-$5.00", p.Delta(decimal.NewFromInt(-5)))
	assert.Equal(t, "$0.00", p.Delta(decimal.Zero))
}

func TestPrinterOutput(t *testing.T) {
	buf := &bytes.Buffer{}
	p := NewPrinter(buf, "USD")

	p.Header("Net worth")
	p.Success("saved %d transactions", 3)
	p.Warning("%d rows skipped", 2)
	p.Error(errors.New("boom"))

	out := buf.String()
	assert.Contains(t, out, "Net worth")
	assert.Contains(t, out, "→ saved 3 transactions")
	assert.Contains(t, out, "⚠ 2 rows skipped")
	assert.Contains(t, out, "Error: boom")
}

func TestPrinterErrorShowsLedgerMessage(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		want    string
		notWant string
	}{
		{
			name:    "wrapped validation error",
			err:     fmt.Errorf("pipeline step 1 failed: %w", domain.NewValidationError("row 2: store is required")),
			want:    "Error: row 2: store is required\n",
			notWant: "pipeline step",
		},
		{
			name:    "partial commit",
			err:     fmt.Errorf("Commit: %w", domain.NewPartialCommitError("sess-1", errors.New("timeout"))),
			want:    "Error: commit did not complete; upload session sess-1 needs repair\n",
			notWant: "timeout",
		},
		{
			name: "plain error",
			err:  errors.New("open ledger.db: permission denied"),
			want: "Error: open ledger.db: permission denied\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			NewPrinter(buf, "").Error(tt.err)
			assert.Equal(t, tt.want, buf.String())
			if tt.notWant != "" {
				assert.NotContains(t, buf.String(), tt.notWant)
			}
		})
	}
}

func TestPrinterTable(t *testing.T) {
	buf := &bytes.Buffer{}
	NewPrinter(buf, "USD").Table([]string{"DATE", "STORE"}, [][]string{
		{"2024-03-01", "Target"},
		{"2024-03-02", "Chipotle"},
	})

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	assert.Len(t, lines, 3)
	assert.Equal(t, strings.Index(lines[0], "STORE"), strings.Index(lines[1], "Target"))
}
