package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dvloznov/finance-ledger/internal/domain"
	"github.com/google/uuid"
)

const transactionColumns = `id, user_id, type, category, store, amount, description, tag,
	transaction_date, is_bulk_upload, upload_session_id, created_at, updated_at`

func scanTransaction(row scanner) (domain.Transaction, error) {
	var t domain.Transaction
	var typ, amount, date, createdAt, updatedAt string
	var sessionID sql.NullString
	if err := row.Scan(&t.ID, &t.UserID, &typ, &t.Category, &t.Store, &amount, &t.Description, &t.Tag,
		&date, &t.IsBulkUpload, &sessionID, &createdAt, &updatedAt); err != nil {
		return t, err
	}
	t.Type = domain.TransactionType(typ)
	t.UploadSessionID = sessionID.String
	var err error
	if t.Amount, err = parseDecimal(amount); err != nil {
		return t, fmt.Errorf("transaction %s amount: %w", t.ID, err)
	}
	if t.TransactionDate, err = parseDate(date); err != nil {
		return t, fmt.Errorf("transaction %s date: %w", t.ID, err)
	}
	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return t, fmt.Errorf("transaction %s created_at: %w", t.ID, err)
	}
	if t.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return t, fmt.Errorf("transaction %s updated_at: %w", t.ID, err)
	}
	return t, nil
}

func (s *Store) insertTransaction(ctx context.Context, tx *sql.Tx, userID string, t *domain.Transaction) error {
	if err := t.Validate(); err != nil {
		return err
	}
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	t.UserID = userID
	now := s.stamp()
	_, err := tx.ExecContext(ctx,
		`INSERT INTO transactions (`+transactionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, userID, string(t.Type), t.Category, t.Store, t.Amount.String(), t.Description, t.Tag,
		t.TransactionDate.String(), t.IsBulkUpload, nullString(t.UploadSessionID), now, now)
	if err != nil {
		return err
	}
	t.CreatedAt, _ = parseTime(now)
	t.UpdatedAt = t.CreatedAt
	return nil
}

// CreateTransaction implements store.TransactionRepository.
func (s *Store) CreateTransaction(ctx context.Context, t *domain.Transaction) error {
	return s.BulkCreateTransactions(ctx, t.UserID, []*domain.Transaction{t})
}

// BulkCreateTransactions implements store.TransactionRepository.
func (s *Store) BulkCreateTransactions(ctx context.Context, userID string, txs []*domain.Transaction) error {
	for _, t := range txs {
		if err := t.Validate(); err != nil {
			return err
		}
	}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for _, t := range txs {
			if t.UploadSessionID != "" {
				if _, err := getSession(ctx, tx, t.UploadSessionID); err != nil {
					return err
				}
			}
			if err := s.insertTransaction(ctx, tx, userID, t); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		var derr *domain.Error
		if errors.As(err, &derr) {
			return err
		}
		return fmt.Errorf("BulkCreateTransactions: %w", err)
	}
	return nil
}

// GetTransaction implements store.TransactionRepository.
func (s *Store) GetTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	t, err := scanTransaction(s.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewNotFoundError("transaction", id)
	}
	if err != nil {
		return nil, fmt.Errorf("GetTransaction: %w", err)
	}
	return &t, nil
}

// PatchTransaction implements store.TransactionRepository.
func (s *Store) PatchTransaction(ctx context.Context, id string, patch domain.TransactionPatch) (*domain.Transaction, error) {
	cur, err := s.GetTransaction(ctx, id)
	if err != nil {
		return nil, err
	}
	updated, err := patch.Apply(*cur)
	if err != nil {
		return nil, err
	}
	now := s.stamp()
	if _, err := s.db.ExecContext(ctx, `
		UPDATE transactions
		SET type = ?, category = ?, store = ?, amount = ?, description = ?, tag = ?,
		    transaction_date = ?, updated_at = ?
		WHERE id = ?`,
		string(updated.Type), updated.Category, updated.Store, updated.Amount.String(),
		updated.Description, updated.Tag, updated.TransactionDate.String(), now, id); err != nil {
		return nil, fmt.Errorf("PatchTransaction: updating: %w", err)
	}
	updated.UpdatedAt, _ = parseTime(now)
	return &updated, nil
}

// DeleteTransaction implements store.TransactionRepository.
func (s *Store) DeleteTransaction(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("DeleteTransaction: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NewNotFoundError("transaction", id)
	}
	return nil
}

// ListTransactions implements store.TransactionRepository.
func (s *Store) ListTransactions(ctx context.Context, userID string) ([]domain.Transaction, error) {
	out, err := s.listTransactions(ctx, `user_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("ListTransactions: %w", err)
	}
	return out, nil
}

// ListSessionTransactions implements store.TransactionRepository.
func (s *Store) ListSessionTransactions(ctx context.Context, sessionID string) ([]domain.Transaction, error) {
	out, err := s.listTransactions(ctx, `upload_session_id = ?`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("ListSessionTransactions: %w", err)
	}
	return out, nil
}

func (s *Store) listTransactions(ctx context.Context, where string, arg any) ([]domain.Transaction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE `+where+` ORDER BY transaction_date DESC, rowid`, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
