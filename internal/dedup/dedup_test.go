package dedup

import (
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/finance-ledger/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func d(y, m, day int) civil.Date {
	return civil.Date{Year: y, Month: time.Month(m), Day: day}
}

func TestNormalizeStore(t *testing.T) {
	assert.Equal(t, "cafe de flore", NormalizeStore("  Café de FLORE!! "))
	assert.Equal(t, "trader joe s", NormalizeStore("Trader Joe's"))
	assert.Equal(t, "", NormalizeStore(""))
}

func TestFingerprintIgnoresCosmeticDifferences(t *testing.T) {
	a := Fingerprint(d(2024, 1, 5), domain.Expense, decimal.RequireFromString("12.5"), "Chipotle")
	b := Fingerprint(d(2024, 1, 5), domain.Expense, decimal.RequireFromString("12.50"), "CHIPOTLE")
	c := Fingerprint(d(2024, 1, 6), domain.Expense, decimal.RequireFromString("12.50"), "Chipotle")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}

func TestSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, Similarity("Target", "TARGET"), 1e-9)
	assert.InDelta(t, 1.0, Similarity("", ""), 1e-9)
	assert.Less(t, Similarity("Target", "Walmart"), DefaultThreshold)
	assert.GreaterOrEqual(t, Similarity("Starbucks", "Starbuck"), DefaultThreshold)
}

func TestDetector(t *testing.T) {
	existing := []domain.Transaction{
		{ID: "t1", Type: domain.Expense, Store: "Starbucks", Amount: decimal.RequireFromString("5.10"), TransactionDate: d(2024, 1, 7)},
		{ID: "t2", Type: domain.Income, Store: "Acme Corp Payroll", Amount: decimal.NewFromInt(3000), TransactionDate: d(2024, 1, 6)},
	}
	det := NewDetector(existing)

	tests := []struct {
		name   string
		date   civil.Date
		typ    domain.TransactionType
		amount string
		store  string
		wantID string
	}{
		{name: "exact", date: d(2024, 1, 7), typ: domain.Expense, amount: "5.10", store: "STARBUCKS", wantID: "t1"},
		{name: "fuzzy within window", date: d(2024, 1, 9), typ: domain.Expense, amount: "5.1", store: "Starbuck", wantID: "t1"},
		{name: "outside window", date: d(2024, 1, 11), typ: domain.Expense, amount: "5.10", store: "Starbucks"},
		{name: "different store", date: d(2024, 1, 7), typ: domain.Expense, amount: "5.10", store: "Dunkin'"},
		{name: "different direction", date: d(2024, 1, 7), typ: domain.Income, amount: "5.10", store: "Starbucks"},
		{name: "different amount", date: d(2024, 1, 6), typ: domain.Income, amount: "3000.01", store: "Acme Corp Payroll"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, ok := det.Match(tt.date, tt.typ, decimal.RequireFromString(tt.amount), tt.store)
			assert.Equal(t, tt.wantID != "", ok)
			assert.Equal(t, tt.wantID, id)
		})
	}
}
