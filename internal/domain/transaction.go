package domain

import (
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// TransactionType is either income or expense.
type TransactionType string

const (
	Income  TransactionType = "income"
	Expense TransactionType = "expense"
)

// ParseTransactionType normalizes a type string.
func ParseTransactionType(s string) (TransactionType, error) {
	switch TransactionType(strings.ToLower(strings.TrimSpace(s))) {
	case Income:
		return Income, nil
	case Expense:
		return Expense, nil
	}
	return "", NewValidationError(fmt.Sprintf("invalid transaction type %q (must be income or expense)", s))
}

// Transaction is a committed ledger entry. Amount is always non-negative;
// Type carries the direction.
type Transaction struct {
	ID              string          `json:"id"`
	UserID          string          `json:"user_id"`
	Type            TransactionType `json:"type"`
	Category        string          `json:"category"`
	Store           string          `json:"store"`
	Amount          decimal.Decimal `json:"amount"`
	Description     string          `json:"description,omitempty"`
	Tag             string          `json:"tag,omitempty"`
	TransactionDate civil.Date      `json:"transaction_date"`
	IsBulkUpload    bool            `json:"is_bulk_upload"`
	UploadSessionID string          `json:"upload_session_id"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Validate checks the fields a transaction must carry before it is persisted.
func (t Transaction) Validate() error {
	if t.Type != Income && t.Type != Expense {
		return NewValidationError(fmt.Sprintf("invalid transaction type %q", t.Type))
	}
	if strings.TrimSpace(t.Category) == "" {
		return NewValidationError("category is required")
	}
	if strings.TrimSpace(t.Store) == "" {
		return NewValidationError("store is required")
	}
	if t.Amount.IsNegative() {
		return NewValidationError("amount must not be negative")
	}
	if !t.TransactionDate.IsValid() {
		return NewValidationError("transaction date is required")
	}
	return nil
}

// TransactionPatch holds in-place edits. Nil fields are left unchanged.
type TransactionPatch struct {
	Type            *TransactionType `json:"type,omitempty"`
	Category        *string          `json:"category,omitempty"`
	Store           *string          `json:"store,omitempty"`
	Amount          *decimal.Decimal `json:"amount,omitempty"`
	Description     *string          `json:"description,omitempty"`
	Tag             *string          `json:"tag,omitempty"`
	TransactionDate *civil.Date      `json:"transaction_date,omitempty"`
}

// Apply returns a copy of t with the patch applied and validated.
func (p TransactionPatch) Apply(t Transaction) (Transaction, error) {
	if p.Type != nil {
		t.Type = *p.Type
	}
	if p.Category != nil {
		t.Category = *p.Category
	}
	if p.Store != nil {
		t.Store = *p.Store
	}
	if p.Amount != nil {
		t.Amount = *p.Amount
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Tag != nil {
		t.Tag = *p.Tag
	}
	if p.TransactionDate != nil {
		t.TransactionDate = *p.TransactionDate
	}
	if err := t.Validate(); err != nil {
		return Transaction{}, err
	}
	return t, nil
}

// ChangesDate reports whether applying the patch moves the transaction date.
func (p TransactionPatch) ChangesDate(t Transaction) bool {
	return p.TransactionDate != nil && *p.TransactionDate != t.TransactionDate
}
