package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/finance-ledger/internal/domain"
	"github.com/google/uuid"
)

const accountColumns = `id, user_id, name, category, created_at`

func scanAccount(row scanner) (domain.AccountDefinition, error) {
	var a domain.AccountDefinition
	var category, createdAt string
	if err := row.Scan(&a.ID, &a.UserID, &a.Name, &category, &createdAt); err != nil {
		return a, err
	}
	a.Category = domain.AccountCategory(category)
	t, err := parseTime(createdAt)
	if err != nil {
		return a, fmt.Errorf("account %s: created_at: %w", a.ID, err)
	}
	a.CreatedAt = t
	return a, nil
}

// ListAccountDefinitions implements store.AccountRepository.
func (s *Store) ListAccountDefinitions(ctx context.Context, userID string) ([]domain.AccountDefinition, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+accountColumns+` FROM account_definitions WHERE user_id = ? ORDER BY rowid`, userID)
	if err != nil {
		return nil, fmt.Errorf("ListAccountDefinitions: querying: %w", err)
	}
	defer rows.Close()

	var out []domain.AccountDefinition
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("ListAccountDefinitions: scanning: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// GetAccountDefinition implements store.AccountRepository.
func (s *Store) GetAccountDefinition(ctx context.Context, id string) (*domain.AccountDefinition, error) {
	a, err := scanAccount(s.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM account_definitions WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewNotFoundError("account", id)
	}
	if err != nil {
		return nil, fmt.Errorf("GetAccountDefinition: %w", err)
	}
	return &a, nil
}

// CreateAccountDefinition implements store.AccountRepository.
func (s *Store) CreateAccountDefinition(ctx context.Context, def *domain.AccountDefinition) error {
	if err := def.Validate(); err != nil {
		return err
	}
	if def.ID == "" {
		def.ID = uuid.New().String()
	}
	created := s.stamp()
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO account_definitions (`+accountColumns+`) VALUES (?, ?, ?, ?, ?)`,
		def.ID, def.UserID, def.Name, string(def.Category), created); err != nil {
		return fmt.Errorf("CreateAccountDefinition: inserting: %w", err)
	}
	def.CreatedAt, _ = parseTime(created)
	return nil
}

// DeleteAccountDefinition implements store.AccountRepository. Records go
// first so a failure never leaves records without their definition.
func (s *Store) DeleteAccountDefinition(ctx context.Context, id string) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM account_records WHERE account_definition_id = ?`, id); err != nil {
			return fmt.Errorf("deleting records: %w", err)
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM account_definitions WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("deleting definition: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return domain.NewNotFoundError("account", id)
		}
		return nil
	})
	if err != nil {
		if domain.IsKind(err, domain.KindNotFound) {
			return err
		}
		return domain.NewCascadeError("account", id, fmt.Errorf("DeleteAccountDefinition: %w", err))
	}
	return nil
}

// ListAccountRecords implements store.AccountRepository.
func (s *Store) ListAccountRecords(ctx context.Context, userID string) ([]domain.AccountRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, account_definition_id, user_id, balance, record_date, created_at
		FROM account_records WHERE user_id = ? ORDER BY rowid`, userID)
	if err != nil {
		return nil, fmt.Errorf("ListAccountRecords: querying: %w", err)
	}
	defer rows.Close()

	var out []domain.AccountRecord
	for rows.Next() {
		var r domain.AccountRecord
		var balance, recordDate, createdAt string
		if err := rows.Scan(&r.ID, &r.AccountID, &r.UserID, &balance, &recordDate, &createdAt); err != nil {
			return nil, fmt.Errorf("ListAccountRecords: scanning: %w", err)
		}
		if r.Balance, err = parseDecimal(balance); err != nil {
			return nil, fmt.Errorf("ListAccountRecords: record %s balance: %w", r.ID, err)
		}
		if r.RecordDate, err = parseDate(recordDate); err != nil {
			return nil, fmt.Errorf("ListAccountRecords: record %s date: %w", r.ID, err)
		}
		if r.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("ListAccountRecords: record %s created_at: %w", r.ID, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// BulkCreateAccountRecords implements store.AccountRepository.
func (s *Store) BulkCreateAccountRecords(ctx context.Context, userID string, date civil.Date, entries []domain.BalanceEntry) ([]domain.AccountRecord, error) {
	if !date.IsValid() {
		return nil, domain.NewValidationError("record date is required")
	}
	out := make([]domain.AccountRecord, 0, len(entries))
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for _, e := range entries {
			var owner string
			err := tx.QueryRowContext(ctx, `SELECT user_id FROM account_definitions WHERE id = ?`, e.AccountID).Scan(&owner)
			if errors.Is(err, sql.ErrNoRows) || (err == nil && owner != userID) {
				return domain.NewNotFoundError("account", e.AccountID)
			}
			if err != nil {
				return fmt.Errorf("checking account %s: %w", e.AccountID, err)
			}

			created := s.stamp()
			r := domain.AccountRecord{
				ID:         uuid.New().String(),
				AccountID:  e.AccountID,
				UserID:     userID,
				Balance:    e.Balance,
				RecordDate: date,
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO account_records (id, account_definition_id, user_id, balance, record_date, created_at)
				VALUES (?, ?, ?, ?, ?, ?)`,
				r.ID, r.AccountID, userID, r.Balance.String(), date.String(), created); err != nil {
				return fmt.Errorf("inserting record: %w", err)
			}
			r.CreatedAt, _ = parseTime(created)
			out = append(out, r)
		}
		return nil
	})
	if err != nil {
		if domain.IsKind(err, domain.KindNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("BulkCreateAccountRecords: %w", err)
	}
	return out, nil
}
