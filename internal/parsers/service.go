package parsers

import (
	"bytes"
	"context"
	"errors"
	"strings"

	"github.com/dvloznov/finance-ledger/internal/categorize"
	"github.com/dvloznov/finance-ledger/internal/domain"
	"github.com/rs/zerolog"
)

// ErrUnrecognizedFormat is returned when neither the hint nor detection
// yields a known format.
var ErrUnrecognizedFormat = errors.New("unrecognized statement format: use a SoFi or Capital One CSV export, or an OFX/QFX file")

// Service parses statements and attaches category suggestions.
type Service struct {
	rules     *categorize.Categorizer
	suggester categorize.Suggester
	log       zerolog.Logger
}

// NewService creates a parser service. A nil suggester uses the rules alone.
func NewService(rules *categorize.Categorizer, suggester categorize.Suggester, log zerolog.Logger) *Service {
	if suggester == nil {
		suggester = rules
	}
	return &Service{rules: rules, suggester: suggester, log: log}
}

// ParseCandidates parses a statement file. Every failure is a parse error
// whose message is safe to show verbatim.
func (s *Service) ParseCandidates(ctx context.Context, content []byte, hint string) (*Result, error) {
	bank, err := ParseHint(hint)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(content)) == 0 {
		return nil, domain.NewParseError(errors.New("uploaded file is empty"))
	}

	var raws []rawRow
	var skipped int

	if bank == BankOFX || (bank == BankAuto && looksLikeOFX(content)) {
		raws, skipped, err = parseOFX(content, s.log)
		if err != nil {
			return nil, domain.NewParseError(err)
		}
		bank = BankOFX
	} else {
		table, err := readCSV(content)
		if err != nil {
			return nil, domain.NewParseError(err)
		}
		if bank == BankAuto {
			bank = table.detect()
		}
		switch bank {
		case BankSoFi:
			raws, skipped = parseSoFi(table, s.log)
		case BankCapitalOne:
			raws, skipped = parseCapitalOne(table, s.log)
		default:
			return nil, domain.NewParseError(ErrUnrecognizedFormat)
		}
	}

	res := &Result{BankType: bank, Transactions: make([]Row, 0, len(raws)), Skipped: skipped}
	for _, raw := range raws {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res.Transactions = append(res.Transactions, s.categorise(ctx, raw))
	}

	s.log.Info().
		Str("bank_type", string(bank)).
		Int("rows", len(res.Transactions)).
		Int("skipped", skipped).
		Msg("Statement parsed")
	return res, nil
}

func (s *Service) categorise(ctx context.Context, raw rawRow) Row {
	store := s.rules.NormalizeStore(raw.description)
	category, err := s.suggester.Suggest(ctx, categorize.Input{
		Store:        store,
		Description:  raw.description,
		OriginalType: raw.originalType,
		Amount:       raw.amount.Abs(),
	})
	if err != nil || category == "" {
		category = s.rules.SuggestCategory(store, raw.description, raw.originalType)
	}

	typ := s.direction(raw, category)
	if raw.bank == BankSoFi && category == "Interest" {
		store = "SoFi"
	}
	if store == "" {
		store = "Unknown"
	}

	return Row{
		Date:              raw.date,
		Store:             store,
		RawDescription:    raw.description,
		Amount:            raw.amount.Abs(),
		Type:              typ,
		SuggestedCategory: category,
		OriginalType:      raw.originalType,
		ExternalID:        raw.externalID,
	}
}

// direction decides income or expense. The sign of the amount wins; a zero
// amount falls back to the bank's type text and then the category.
func (s *Service) direction(raw rawRow, category string) domain.TransactionType {
	switch {
	case raw.amount.IsNegative():
		return domain.Expense
	case raw.amount.IsPositive():
		return domain.Income
	}

	typ := strings.ToLower(raw.originalType)
	desc := strings.ToLower(raw.description)
	switch {
	case containsAny(typ, "deposit", "credit", "interest", "payroll"),
		containsAny(desc, "salary", "payroll", "interest"):
		return domain.Income
	case containsAny(typ, "payment", "purchase", "debit", "withdrawal"):
		return domain.Expense
	}
	return s.rules.TypeForCategory(category)
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
