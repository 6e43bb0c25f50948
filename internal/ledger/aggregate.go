package ledger

import (
	"cloud.google.com/go/civil"
	"github.com/dvloznov/finance-ledger/internal/domain"
	"github.com/shopspring/decimal"
)

// Snapshot is the category rollup at one snapshot date.
type Snapshot struct {
	Date       civil.Date      `json:"date"`
	Liquid     decimal.Decimal `json:"liquid"`
	Investment decimal.Decimal `json:"investment"`
	Debt       decimal.Decimal `json:"debt"`
	NetWorth   decimal.Decimal `json:"net_worth"`
}

// Assets is liquid plus investment.
func (s Snapshot) Assets() decimal.Decimal {
	return s.Liquid.Add(s.Investment)
}

// SnapshotDates returns the distinct record dates across all records,
// ascending. Only dates with at least one observation are included.
func SnapshotDates(records []domain.AccountRecord) []civil.Date {
	return distinctDates(records)
}

// Snapshots computes one rollup per snapshot date, ascending. For each date
// every definition contributes its latest-as-of balance, or zero when it has
// no record yet. Records whose account is not in defs are ignored for the
// totals but still contribute snapshot dates.
func Snapshots(defs []domain.AccountDefinition, records []domain.AccountRecord) []Snapshot {
	r := NewResolver(records)
	dates := SnapshotDates(records)

	out := make([]Snapshot, 0, len(dates))
	for _, d := range dates {
		s := Snapshot{Date: d, Liquid: decimal.Zero, Investment: decimal.Zero, Debt: decimal.Zero}
		for _, def := range defs {
			bal := r.BalanceAt(def.ID, d)
			switch def.Category {
			case domain.AccountLiquid:
				s.Liquid = s.Liquid.Add(bal)
			case domain.AccountInvestment:
				s.Investment = s.Investment.Add(bal)
			case domain.AccountDebt:
				s.Debt = s.Debt.Add(bal)
			}
		}
		s.NetWorth = s.Liquid.Add(s.Investment).Sub(s.Debt)
		out = append(out, s)
	}
	return out
}
