package ledger

import (
	"cloud.google.com/go/civil"
	"github.com/dvloznov/finance-ledger/internal/domain"
	"github.com/shopspring/decimal"
)

// HistoryPoint is one entry of the net worth series.
type HistoryPoint struct {
	Date     civil.Date      `json:"date"`
	NetWorth decimal.Decimal `json:"netWorth"`
	Assets   decimal.Decimal `json:"assets"`
	Debts    decimal.Decimal `json:"debts"`
}

// ValuePoint is a dated value in a category or account series.
type ValuePoint struct {
	Date  civil.Date      `json:"date"`
	Value decimal.Decimal `json:"value"`
}

// CategoryHistory holds one series per account category.
type CategoryHistory struct {
	Liquid      []ValuePoint `json:"liquid"`
	Investments []ValuePoint `json:"investments"`
	Debt        []ValuePoint `json:"debt"`
}

// Analytics is the payload served to presentation.
type Analytics struct {
	CurrentNetWorth       decimal.Decimal         `json:"currentNetWorth"`
	MonthOverMonthChange  decimal.Decimal         `json:"monthOverMonthChange"`
	MonthOverMonthPercent decimal.Decimal         `json:"monthOverMonthPercent"`
	YearOverYearChange    decimal.Decimal         `json:"yearOverYearChange"`
	YearOverYearPercent   decimal.Decimal         `json:"yearOverYearPercent"`
	AllTimeChange         decimal.Decimal         `json:"allTimeChange"`
	NetWorthHistory       []HistoryPoint          `json:"netWorthHistory"`
	CategoryHistory       CategoryHistory         `json:"categoryHistory"`
	AccountHistory        map[string][]ValuePoint `json:"accountHistory"`
}

// percentPlaces is the rounding applied to percentages in the payload.
const percentPlaces = 2

// BuildAnalytics computes the full payload from the current record set. The
// current snapshot is the latest one; with no records every figure is zero
// and every series is empty.
func BuildAnalytics(defs []domain.AccountDefinition, records []domain.AccountRecord) Analytics {
	snaps := Snapshots(defs, records)

	a := Analytics{
		CurrentNetWorth:       decimal.Zero,
		MonthOverMonthChange:  decimal.Zero,
		MonthOverMonthPercent: decimal.Zero,
		YearOverYearChange:    decimal.Zero,
		YearOverYearPercent:   decimal.Zero,
		AllTimeChange:         decimal.Zero,
		NetWorthHistory:       make([]HistoryPoint, 0, len(snaps)),
		CategoryHistory: CategoryHistory{
			Liquid:      make([]ValuePoint, 0, len(snaps)),
			Investments: make([]ValuePoint, 0, len(snaps)),
			Debt:        make([]ValuePoint, 0, len(snaps)),
		},
		AccountHistory: accountHistory(defs, records),
	}

	for _, s := range snaps {
		a.NetWorthHistory = append(a.NetWorthHistory, HistoryPoint{
			Date:     s.Date,
			NetWorth: s.NetWorth,
			Assets:   s.Assets(),
			Debts:    s.Debt,
		})
		a.CategoryHistory.Liquid = append(a.CategoryHistory.Liquid, ValuePoint{Date: s.Date, Value: s.Liquid})
		a.CategoryHistory.Investments = append(a.CategoryHistory.Investments, ValuePoint{Date: s.Date, Value: s.Investment})
		a.CategoryHistory.Debt = append(a.CategoryHistory.Debt, ValuePoint{Date: s.Date, Value: s.Debt})
	}

	if len(snaps) == 0 {
		return a
	}
	last := len(snaps) - 1
	mom := MonthOverMonth(snaps, last)
	yoy := YearOverYear(snaps, last)

	a.CurrentNetWorth = snaps[last].NetWorth
	a.MonthOverMonthChange = mom.Absolute
	a.MonthOverMonthPercent = mom.Percent.Round(percentPlaces)
	a.YearOverYearChange = yoy.Absolute
	a.YearOverYearPercent = yoy.Percent.Round(percentPlaces)
	a.AllTimeChange = AllTime(snaps, last).Absolute
	return a
}

// accountHistory gives each account its own balance series at the dates it
// was observed. Same-day duplicates resolve to the latest created record.
func accountHistory(defs []domain.AccountDefinition, records []domain.AccountRecord) map[string][]ValuePoint {
	r := NewResolver(records)
	out := make(map[string][]ValuePoint, len(defs))
	for _, def := range defs {
		key := def.Key()
		if _, taken := out[key]; taken {
			key = key + "#" + def.ID
		}
		dates := r.RecordDates(def.ID)
		series := make([]ValuePoint, 0, len(dates))
		for _, d := range dates {
			series = append(series, ValuePoint{Date: d, Value: r.BalanceAt(def.ID, d)})
		}
		out[key] = series
	}
	return out
}
