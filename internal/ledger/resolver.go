// Package ledger turns dated account-balance records into point-in-time
// snapshots, category rollups, net worth history and period deltas.
//
// Everything here is a pure function over the records passed in. Callers
// fetch the full record set on every read; nothing is cached.
package ledger

import (
	"sort"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/finance-ledger/internal/domain"
	"github.com/shopspring/decimal"
)

// Resolver answers latest-as-of queries over a fixed record set.
type Resolver struct {
	byAccount map[string][]domain.AccountRecord
}

// NewResolver indexes records per account, ordered by record date and then
// creation order. Records with equal CreatedAt keep their input order, so
// the later one in the input counts as the more recently created.
func NewResolver(records []domain.AccountRecord) *Resolver {
	byAccount := make(map[string][]domain.AccountRecord)
	for _, rec := range records {
		byAccount[rec.AccountID] = append(byAccount[rec.AccountID], rec)
	}
	for _, recs := range byAccount {
		sort.SliceStable(recs, func(i, j int) bool {
			if recs[i].RecordDate != recs[j].RecordDate {
				return recs[i].RecordDate.Before(recs[j].RecordDate)
			}
			return recs[i].CreatedAt.Before(recs[j].CreatedAt)
		})
	}
	return &Resolver{byAccount: byAccount}
}

// Resolve returns the record for accountID with the greatest record date not
// after cutoff. ok is false when no record qualifies.
func (r *Resolver) Resolve(accountID string, cutoff civil.Date) (rec domain.AccountRecord, ok bool) {
	recs := r.byAccount[accountID]
	i := sort.Search(len(recs), func(i int) bool {
		return recs[i].RecordDate.After(cutoff)
	})
	if i == 0 {
		return domain.AccountRecord{}, false
	}
	return recs[i-1], true
}

// BalanceAt is Resolve with a missing record treated as a zero balance.
func (r *Resolver) BalanceAt(accountID string, cutoff civil.Date) decimal.Decimal {
	if rec, ok := r.Resolve(accountID, cutoff); ok {
		return rec.Balance
	}
	return decimal.Zero
}

// RecordDates returns the distinct record dates for one account, ascending.
func (r *Resolver) RecordDates(accountID string) []civil.Date {
	return distinctDates(r.byAccount[accountID])
}

// AccountBalance pairs a definition with its latest record as of a date.
type AccountBalance struct {
	Account domain.AccountDefinition `json:"account"`
	Record  *domain.AccountRecord    `json:"record,omitempty"`
	Balance decimal.Decimal          `json:"balance"`
}

// LatestBalances resolves every definition as of asOf, in definition order.
// Definitions without a qualifying record report a zero balance and no
// record.
func LatestBalances(defs []domain.AccountDefinition, records []domain.AccountRecord, asOf civil.Date) []AccountBalance {
	r := NewResolver(records)
	out := make([]AccountBalance, 0, len(defs))
	for _, def := range defs {
		ab := AccountBalance{Account: def, Balance: decimal.Zero}
		if rec, ok := r.Resolve(def.ID, asOf); ok {
			rec := rec
			ab.Record = &rec
			ab.Balance = rec.Balance
		}
		out = append(out, ab)
	}
	return out
}

func distinctDates(records []domain.AccountRecord) []civil.Date {
	seen := make(map[civil.Date]bool, len(records))
	dates := make([]civil.Date, 0, len(records))
	for _, rec := range records {
		if seen[rec.RecordDate] {
			continue
		}
		seen[rec.RecordDate] = true
		dates = append(dates, rec.RecordDate)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates
}
