package pipeline

import (
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/finance-ledger/internal/categorize"
	"github.com/dvloznov/finance-ledger/internal/domain"
)

// Validator checks committed rows and maps category spellings onto the
// vocabulary.
type Validator struct {
	rules *categorize.Categorizer
}

// NewValidator creates a validator. A nil rule set skips category
// normalisation.
func NewValidator(rules *categorize.Categorizer) *Validator {
	return &Validator{rules: rules}
}

// ValidateBatch checks every row and returns the batch date range. All rows
// are checked before returning so the message lists every bad row at once.
func (v *Validator) ValidateBatch(txs []*domain.Transaction) (civil.Date, civil.Date, error) {
	var problems []string
	dates := make([]civil.Date, 0, len(txs))

	for i, tx := range txs {
		if v.rules != nil && strings.TrimSpace(tx.Category) != "" {
			tx.Category = v.rules.NormalizeCategory(tx.Category)
		}
		tx.Store = strings.TrimSpace(tx.Store)
		if err := tx.Validate(); err != nil {
			problems = append(problems, fmt.Sprintf("row %d: %s", i+1, messageOf(err)))
			continue
		}
		dates = append(dates, tx.TransactionDate)
	}
	if len(problems) > 0 {
		return civil.Date{}, civil.Date{}, domain.NewValidationError(strings.Join(problems, "; "))
	}

	lo, hi, _ := domain.MinMaxDates(dates)
	return lo, hi, nil
}

func messageOf(err error) string {
	var e *domain.Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}
