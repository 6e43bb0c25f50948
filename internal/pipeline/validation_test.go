package pipeline

import (
	"strings"
	"testing"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/finance-ledger/internal/domain"
)

func TestValidator_ValidateBatch(t *testing.T) {
	v := validator(t)

	tests := []struct {
		name         string
		rows         func() []*domain.Transaction
		wantErr      string
		wantCategory string
	}{
		{
			name:         "alias is normalised",
			rows:         func() []*domain.Transaction { return []*domain.Transaction{row("Chipotle", "dining out", "2024-01-05")} },
			wantCategory: "Dining Out",
		},
		{
			name:    "missing store",
			rows:    func() []*domain.Transaction { return []*domain.Transaction{row(" ", "Groceries", "2024-01-05")} },
			wantErr: "row 1: store is required",
		},
		{
			name: "missing date",
			rows: func() []*domain.Transaction {
				tx := row("Target", "Groceries", "2024-01-05")
				tx.TransactionDate = civil.Date{}
				return []*domain.Transaction{tx}
			},
			wantErr: "row 1: transaction date is required",
		},
		{
			name: "negative amount",
			rows: func() []*domain.Transaction {
				tx := row("Target", "Groceries", "2024-01-05")
				tx.Amount = tx.Amount.Neg()
				return []*domain.Transaction{tx}
			},
			wantErr: "row 1: amount must not be negative",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows := tt.rows()
			_, _, err := v.ValidateBatch(rows)
			if tt.wantErr != "" {
				if !domain.IsKind(err, domain.KindValidation) {
					t.Fatalf("Expected validation error, got %v", err)
				}
				if !strings.Contains(err.Error(), tt.wantErr) {
					t.Errorf("Expected error containing %q, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if rows[0].Category != tt.wantCategory {
				t.Errorf("Expected category %q, got %q", tt.wantCategory, rows[0].Category)
			}
		})
	}
}

func TestValidator_DateRange(t *testing.T) {
	lo, hi, err := validator(t).ValidateBatch(batch())
	if err != nil {
		t.Fatalf("ValidateBatch failed: %v", err)
	}
	if lo != (civil.Date{Year: 2024, Month: 2, Day: 27}) {
		t.Errorf("Expected low 2024-02-27, got %s", lo)
	}
	if hi != (civil.Date{Year: 2024, Month: 3, Day: 10}) {
		t.Errorf("Expected high 2024-03-10, got %s", hi)
	}
}
