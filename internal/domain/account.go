package domain

import (
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// AccountCategory groups account definitions for net worth rollups.
type AccountCategory string

const (
	AccountLiquid     AccountCategory = "liquid"
	AccountInvestment AccountCategory = "investment"
	AccountDebt       AccountCategory = "debt"
)

var validAccountCategories = map[AccountCategory]bool{
	AccountLiquid:     true,
	AccountInvestment: true,
	AccountDebt:       true,
}

// ParseAccountCategory accepts the canonical names plus the plural forms used
// in analytics payloads.
func ParseAccountCategory(s string) (AccountCategory, error) {
	c := AccountCategory(strings.ToLower(strings.TrimSpace(s)))
	switch c {
	case "investments":
		c = AccountInvestment
	case "debts":
		c = AccountDebt
	}
	if !validAccountCategories[c] {
		return "", NewValidationError(fmt.Sprintf("invalid account category %q (must be liquid, investment or debt)", s))
	}
	return c, nil
}

// AccountDefinition is a named account owned by a user.
type AccountDefinition struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	Name      string          `json:"name"`
	Category  AccountCategory `json:"category"`
	CreatedAt time.Time       `json:"created_at"`
}

// Key identifies the account in analytics payloads.
func (a AccountDefinition) Key() string {
	return a.Name + "_" + string(a.Category)
}

// Validate checks required fields.
func (a AccountDefinition) Validate() error {
	if strings.TrimSpace(a.UserID) == "" {
		return NewValidationError("user id is required")
	}
	if strings.TrimSpace(a.Name) == "" {
		return NewValidationError("account name is required")
	}
	if !validAccountCategories[a.Category] {
		return NewValidationError(fmt.Sprintf("invalid account category %q", a.Category))
	}
	return nil
}

// AccountRecord is one balance observation. Records are never mutated.
type AccountRecord struct {
	ID         string          `json:"id"`
	AccountID  string          `json:"account_id"`
	UserID     string          `json:"user_id"`
	Balance    decimal.Decimal `json:"balance"`
	RecordDate civil.Date      `json:"record_date"`
	CreatedAt  time.Time       `json:"created_at"`
}

// BalanceEntry is the input shape for bulk balance recording.
type BalanceEntry struct {
	AccountID string          `json:"account_id"`
	Balance   decimal.Decimal `json:"balance"`
}
