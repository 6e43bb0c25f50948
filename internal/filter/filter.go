// Package filter narrows and summarizes transaction collections. Everything
// here is a pure function over a slice the caller fetched fresh.
package filter

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/finance-ledger/internal/domain"
	"github.com/shopspring/decimal"
)

// Criteria is a conjunction of predicates. Zero-valued fields match
// everything.
type Criteria struct {
	Type        domain.TransactionType
	Category    string
	Store       string
	Tag         string
	Description string // case-insensitive substring
	DateFrom    *civil.Date
	DateTo      *civil.Date
	MinAmount   *decimal.Decimal
	MaxAmount   *decimal.Decimal
}

// IsEmpty reports whether the criteria match every transaction.
func (c Criteria) IsEmpty() bool {
	return c == Criteria{}
}

// Match reports whether tx satisfies every predicate.
func (c Criteria) Match(tx domain.Transaction) bool {
	if c.Type != "" && tx.Type != c.Type {
		return false
	}
	if c.Category != "" && tx.Category != c.Category {
		return false
	}
	if c.Store != "" && tx.Store != c.Store {
		return false
	}
	if c.Tag != "" && tx.Tag != c.Tag {
		return false
	}
	if c.Description != "" && !strings.Contains(strings.ToLower(tx.Description), strings.ToLower(c.Description)) {
		return false
	}
	if c.DateFrom != nil && tx.TransactionDate.Before(*c.DateFrom) {
		return false
	}
	if c.DateTo != nil && tx.TransactionDate.After(*c.DateTo) {
		return false
	}
	if c.MinAmount != nil && tx.Amount.LessThan(*c.MinAmount) {
		return false
	}
	if c.MaxAmount != nil && tx.Amount.GreaterThan(*c.MaxAmount) {
		return false
	}
	return true
}

// Apply returns the transactions matching c, preserving input order.
// Applying the same criteria to the result returns it unchanged.
func Apply(txs []domain.Transaction, c Criteria) []domain.Transaction {
	out := make([]domain.Transaction, 0, len(txs))
	for _, tx := range txs {
		if c.Match(tx) {
			out = append(out, tx)
		}
	}
	return out
}

// Summary holds plain sums over a set of transactions.
type Summary struct {
	TotalIncome  decimal.Decimal `json:"totalIncome"`
	TotalExpense decimal.Decimal `json:"totalExpense"`
	Net          decimal.Decimal `json:"net"`
	Count        int             `json:"count"`
}

// Summarize sums income and expense. Net is income minus expense.
func Summarize(txs []domain.Transaction) Summary {
	s := Summary{TotalIncome: decimal.Zero, TotalExpense: decimal.Zero}
	for _, tx := range txs {
		switch tx.Type {
		case domain.Income:
			s.TotalIncome = s.TotalIncome.Add(tx.Amount)
		case domain.Expense:
			s.TotalExpense = s.TotalExpense.Add(tx.Amount)
		}
	}
	s.Net = s.TotalIncome.Sub(s.TotalExpense)
	s.Count = len(txs)
	return s
}

// CategoryTotal is the sum of one category within one direction.
type CategoryTotal struct {
	Category string                 `json:"category"`
	Type     domain.TransactionType `json:"type"`
	Total    decimal.Decimal        `json:"total"`
	Count    int                    `json:"count"`
}

// CategoryTotals rolls transactions up by (type, category), largest total
// first, ties by category name.
func CategoryTotals(txs []domain.Transaction) []CategoryTotal {
	type key struct {
		typ domain.TransactionType
		cat string
	}
	idx := make(map[key]int)
	var out []CategoryTotal
	for _, tx := range txs {
		k := key{tx.Type, tx.Category}
		i, ok := idx[k]
		if !ok {
			i = len(out)
			idx[k] = i
			out = append(out, CategoryTotal{Category: tx.Category, Type: tx.Type, Total: decimal.Zero})
		}
		out[i].Total = out[i].Total.Add(tx.Amount)
		out[i].Count++
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Total.Equal(out[j].Total) {
			return out[i].Total.GreaterThan(out[j].Total)
		}
		return out[i].Category < out[j].Category
	})
	return out
}

// ParseCriteria reads criteria from query parameters: type, category, store,
// tag, description (or q), from, to, min_amount, max_amount.
func ParseCriteria(q url.Values) (Criteria, error) {
	var c Criteria
	if v := strings.TrimSpace(q.Get("type")); v != "" {
		t, err := domain.ParseTransactionType(v)
		if err != nil {
			return Criteria{}, err
		}
		c.Type = t
	}
	c.Category = strings.TrimSpace(q.Get("category"))
	c.Store = strings.TrimSpace(q.Get("store"))
	c.Tag = strings.TrimSpace(q.Get("tag"))
	c.Description = q.Get("description")
	if c.Description == "" {
		c.Description = q.Get("q")
	}

	var err error
	if c.DateFrom, err = parseDate(q, "from"); err != nil {
		return Criteria{}, err
	}
	if c.DateTo, err = parseDate(q, "to"); err != nil {
		return Criteria{}, err
	}
	if c.MinAmount, err = parseAmount(q, "min_amount"); err != nil {
		return Criteria{}, err
	}
	if c.MaxAmount, err = parseAmount(q, "max_amount"); err != nil {
		return Criteria{}, err
	}

	if c.DateFrom != nil && c.DateTo != nil && c.DateTo.Before(*c.DateFrom) {
		return Criteria{}, domain.NewValidationError("from must not be after to")
	}
	if c.MinAmount != nil && c.MaxAmount != nil && c.MaxAmount.LessThan(*c.MinAmount) {
		return Criteria{}, domain.NewValidationError("min_amount must not exceed max_amount")
	}
	return c, nil
}

func parseDate(q url.Values, key string) (*civil.Date, error) {
	v := strings.TrimSpace(q.Get(key))
	if v == "" {
		return nil, nil
	}
	d, err := civil.ParseDate(v)
	if err != nil {
		return nil, domain.NewValidationError(fmt.Sprintf("%s: expected YYYY-MM-DD, got %q", key, v))
	}
	return &d, nil
}

func parseAmount(q url.Values, key string) (*decimal.Decimal, error) {
	v := strings.TrimSpace(q.Get(key))
	if v == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return nil, domain.NewValidationError(fmt.Sprintf("%s: invalid amount %q", key, v))
	}
	return &d, nil
}
