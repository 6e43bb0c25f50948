// Package parsers turns bank statement exports into candidate transactions
// with a normalised store and a suggested category attached.
package parsers

import (
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/finance-ledger/internal/domain"
	"github.com/shopspring/decimal"
)

// BankType identifies a statement format.
type BankType string

const (
	BankAuto       BankType = "auto"
	BankSoFi       BankType = "sofi"
	BankCapitalOne BankType = "capital_one"
	BankOFX        BankType = "ofx"
	bankUnknown    BankType = "unknown"
)

// ParseHint normalises a user-supplied bank hint. Empty means auto.
func ParseHint(s string) (BankType, error) {
	switch h := BankType(strings.ToLower(strings.TrimSpace(s))); h {
	case "":
		return BankAuto, nil
	case BankAuto, BankSoFi, BankCapitalOne, BankOFX:
		return h, nil
	case "capitalone", "capital-one":
		return BankCapitalOne, nil
	case "qfx":
		return BankOFX, nil
	}
	return "", domain.NewValidationError(fmt.Sprintf("unknown bank type %q (use auto, sofi, capital_one or ofx)", s))
}

// Row is one parsed statement line.
type Row struct {
	Date              civil.Date             `json:"date"`
	Store             string                 `json:"store"`
	Description       string                 `json:"description"`
	RawDescription    string                 `json:"raw_description"`
	Amount            decimal.Decimal        `json:"amount"`
	Type              domain.TransactionType `json:"type"`
	SuggestedCategory string                 `json:"suggested_category"`
	OriginalType      string                 `json:"original_type"`
	// ExternalID is the bank's own id when the format carries one (OFX FITID).
	ExternalID string `json:"external_id,omitempty"`
}

// Result is the outcome of parsing one file.
type Result struct {
	BankType     BankType `json:"bank_type"`
	Transactions []Row    `json:"transactions"`
	// Skipped counts rows dropped as pending, empty or malformed.
	Skipped int `json:"skipped"`
}

// rawRow is a statement line before categorisation.
type rawRow struct {
	date         civil.Date
	description  string
	originalType string
	amount       decimal.Decimal // signed: negative is money out
	externalID   string
	bank         BankType
}

var dateLayouts = []string{
	"1/2/2006",
	"2006-01-02",
	"1/2/06",
	"2/1/2006",
	"2006/01/02",
}

// parseDate accepts the date layouts banks export, US month-first before
// day-first.
func parseDate(s string) (civil.Date, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return civil.DateOf(t), nil
		}
	}
	return civil.Date{}, fmt.Errorf("unable to parse date %q", s)
}

// parseAmount strips currency symbols and thousands separators.
func parseAmount(s string) (decimal.Decimal, error) {
	clean := strings.NewReplacer("$", "", ",", "", " ", "").Replace(strings.TrimSpace(s))
	if clean == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(clean)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q", s)
	}
	return d, nil
}
