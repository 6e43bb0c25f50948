package ledger

import (
	"sort"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/finance-ledger/internal/domain"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Change is an absolute and percent difference between two values.
type Change struct {
	Absolute decimal.Decimal `json:"absolute"`
	Percent  decimal.Decimal `json:"percent"`
}

// Delta compares current against previous. Percent is zero when previous is
// zero.
func Delta(current, previous decimal.Decimal) Change {
	abs := current.Sub(previous)
	if previous.IsZero() {
		return Change{Absolute: abs, Percent: decimal.Zero}
	}
	return Change{Absolute: abs, Percent: abs.Div(previous).Mul(hundred)}
}

func zeroChange() Change {
	return Change{Absolute: decimal.Zero, Percent: decimal.Zero}
}

// AdjacentChanges returns, for each snapshot, the net worth change from the
// snapshot before it. The first entry has no predecessor and is zero.
func AdjacentChanges(snaps []Snapshot) []Change {
	out := make([]Change, len(snaps))
	for i := range snaps {
		if i == 0 {
			out[i] = zeroChange()
			continue
		}
		out[i] = Delta(snaps[i].NetWorth, snaps[i-1].NetWorth)
	}
	return out
}

// MonthOverMonth compares snaps[i] with the latest snapshot dated on or
// before one calendar month earlier. It is zero when none exists.
func MonthOverMonth(snaps []Snapshot, i int) Change {
	if i < 0 || i >= len(snaps) {
		return zeroChange()
	}
	return changeSince(snaps, i, domain.AddMonths(snaps[i].Date, -1))
}

// YearOverYear is MonthOverMonth with a one calendar year offset.
func YearOverYear(snaps []Snapshot, i int) Change {
	if i < 0 || i >= len(snaps) {
		return zeroChange()
	}
	return changeSince(snaps, i, domain.AddYears(snaps[i].Date, -1))
}

// AllTime compares snaps[i] with the earliest snapshot.
func AllTime(snaps []Snapshot, i int) Change {
	if i < 0 || i >= len(snaps) {
		return zeroChange()
	}
	return Delta(snaps[i].NetWorth, snaps[0].NetWorth)
}

func changeSince(snaps []Snapshot, i int, cutoff civil.Date) Change {
	prev, ok := latestOnOrBefore(snaps, cutoff)
	if !ok {
		return zeroChange()
	}
	return Delta(snaps[i].NetWorth, prev.NetWorth)
}

// latestOnOrBefore expects snaps in ascending date order.
func latestOnOrBefore(snaps []Snapshot, cutoff civil.Date) (Snapshot, bool) {
	j := sort.Search(len(snaps), func(k int) bool {
		return snaps[k].Date.After(cutoff)
	})
	if j == 0 {
		return Snapshot{}, false
	}
	return snaps[j-1], true
}
