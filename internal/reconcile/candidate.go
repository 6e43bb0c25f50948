package reconcile

import (
	"fmt"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/finance-ledger/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Candidate is an editable parsed row awaiting review. It is never
// persisted; committing turns the selected ones into transactions.
type Candidate struct {
	ID                string                 `json:"id"`
	Date              civil.Date             `json:"date"`
	Type              domain.TransactionType `json:"type"`
	Category          string                 `json:"category"`
	Store             string                 `json:"store"`
	Amount            decimal.Decimal        `json:"amount"`
	Description       string                 `json:"description,omitempty"`
	Tag               string                 `json:"tag,omitempty"`
	SuggestedCategory string                 `json:"suggested_category"`
	OriginalType      string                 `json:"original_type,omitempty"`
	Selected          bool                   `json:"selected"`
	Reviewed          bool                   `json:"reviewed"`
	// DuplicateOf holds the id of a committed transaction this row appears
	// to repeat.
	DuplicateOf string `json:"duplicate_of,omitempty"`
}

// Edit changes candidate fields. Nil fields are left unchanged.
type Edit struct {
	Date        *civil.Date             `json:"date,omitempty"`
	Type        *domain.TransactionType `json:"type,omitempty"`
	Category    *string                 `json:"category,omitempty"`
	Store       *string                 `json:"store,omitempty"`
	Amount      *decimal.Decimal        `json:"amount,omitempty"`
	Description *string                 `json:"description,omitempty"`
	Tag         *string                 `json:"tag,omitempty"`
}

func (e Edit) apply(c *Candidate) error {
	if e.Type != nil {
		typ, err := domain.ParseTransactionType(string(*e.Type))
		if err != nil {
			return err
		}
		c.Type = typ
	}
	if e.Amount != nil {
		if e.Amount.IsNegative() {
			return domain.NewValidationError("amount must not be negative")
		}
		c.Amount = *e.Amount
	}
	if e.Date != nil {
		if !e.Date.IsValid() {
			return domain.NewValidationError("invalid date")
		}
		c.Date = *e.Date
	}
	if e.Category != nil {
		c.Category = strings.TrimSpace(*e.Category)
	}
	if e.Store != nil {
		c.Store = strings.TrimSpace(*e.Store)
	}
	if e.Description != nil {
		c.Description = *e.Description
	}
	if e.Tag != nil {
		c.Tag = strings.TrimSpace(*e.Tag)
	}
	return nil
}

func (c *Candidate) transaction() *domain.Transaction {
	return &domain.Transaction{
		Type:            c.Type,
		Category:        c.Category,
		Store:           c.Store,
		Amount:          c.Amount,
		Description:     c.Description,
		Tag:             c.Tag,
		TransactionDate: c.Date,
	}
}

// arena holds candidates by id in upload order.
type arena struct {
	byID  map[string]*Candidate
	order []string
}

func newArena() *arena {
	return &arena{byID: make(map[string]*Candidate)}
}

func (a *arena) add(c *Candidate) {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	a.byID[c.ID] = c
	a.order = append(a.order, c.ID)
}

func (a *arena) get(id string) (*Candidate, error) {
	c, ok := a.byID[id]
	if !ok {
		return nil, domain.NewNotFoundError("candidate", id)
	}
	return c, nil
}

func (a *arena) at(i int) *Candidate {
	return a.byID[a.order[i]]
}

func (a *arena) len() int { return len(a.order) }

func (a *arena) each(fn func(i int, c *Candidate)) {
	for i, id := range a.order {
		fn(i, a.byID[id])
	}
}

func (a *arena) selected() []*Candidate {
	var out []*Candidate
	a.each(func(_ int, c *Candidate) {
		if c.Selected {
			out = append(out, c)
		}
	})
	return out
}

// checkSelected returns a single validation error naming every selected row
// that is missing a category or store.
func (a *arena) checkSelected() error {
	var problems []string
	a.each(func(i int, c *Candidate) {
		if !c.Selected {
			return
		}
		var missing []string
		if strings.TrimSpace(c.Category) == "" {
			missing = append(missing, "category")
		}
		if strings.TrimSpace(c.Store) == "" {
			missing = append(missing, "store")
		}
		if len(missing) > 0 {
			problems = append(problems, fmt.Sprintf("row %d is missing %s", i+1, strings.Join(missing, " and ")))
		}
	})
	if len(problems) > 0 {
		return domain.NewValidationError(strings.Join(problems, "; "))
	}
	return nil
}

func (a *arena) snapshot() []Candidate {
	out := make([]Candidate, 0, len(a.order))
	a.each(func(_ int, c *Candidate) { out = append(out, *c) })
	return out
}
