package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dvloznov/finance-ledger/internal/domain"
	"github.com/google/uuid"
)

const sessionColumns = `id, user_id, upload_type, transaction_count, min_transaction_date, max_transaction_date, upload_date`

func scanSession(row scanner) (domain.UploadSession, error) {
	var sess domain.UploadSession
	var uploadType, uploadDate string
	var lo, hi sql.NullString
	if err := row.Scan(&sess.ID, &sess.UserID, &uploadType, &sess.TransactionCount, &lo, &hi, &uploadDate); err != nil {
		return sess, err
	}
	sess.UploadType = domain.UploadType(uploadType)
	var err error
	if sess.MinTransactionDate, err = parseNullDate(lo); err != nil {
		return sess, fmt.Errorf("session %s min date: %w", sess.ID, err)
	}
	if sess.MaxTransactionDate, err = parseNullDate(hi); err != nil {
		return sess, fmt.Errorf("session %s max date: %w", sess.ID, err)
	}
	if sess.UploadDate, err = parseTime(uploadDate); err != nil {
		return sess, fmt.Errorf("session %s upload date: %w", sess.ID, err)
	}
	return sess, nil
}

func getSession(ctx context.Context, q interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}, id string) (*domain.UploadSession, error) {
	sess, err := scanSession(q.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM upload_sessions WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewNotFoundError("upload session", id)
	}
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

// CreateUploadSession implements store.SessionRepository.
func (s *Store) CreateUploadSession(ctx context.Context, sess *domain.UploadSession) error {
	if sess.ID == "" {
		sess.ID = uuid.New().String()
	}
	created := s.stamp()
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO upload_sessions (`+sessionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.UserID, string(sess.UploadType), sess.TransactionCount,
		nullDate(sess.MinTransactionDate), nullDate(sess.MaxTransactionDate), created); err != nil {
		return fmt.Errorf("CreateUploadSession: inserting: %w", err)
	}
	sess.UploadDate, _ = parseTime(created)
	return nil
}

// GetUploadSession implements store.SessionRepository.
func (s *Store) GetUploadSession(ctx context.Context, id string) (*domain.UploadSession, error) {
	sess, err := getSession(ctx, s.db, id)
	if err != nil && !domain.IsKind(err, domain.KindNotFound) {
		return nil, fmt.Errorf("GetUploadSession: %w", err)
	}
	return sess, err
}

// PatchUploadSession implements store.SessionRepository.
func (s *Store) PatchUploadSession(ctx context.Context, id string, patch domain.SessionPatch) (*domain.UploadSession, error) {
	var updated domain.UploadSession
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		cur, err := getSession(ctx, tx, id)
		if err != nil {
			return err
		}
		if updated, err = patch.Apply(*cur); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE upload_sessions
			SET transaction_count = ?, min_transaction_date = ?, max_transaction_date = ?
			WHERE id = ?`,
			updated.TransactionCount, nullDate(updated.MinTransactionDate), nullDate(updated.MaxTransactionDate), id)
		return err
	})
	if err != nil {
		var derr *domain.Error
		if errors.As(err, &derr) {
			return nil, err
		}
		return nil, fmt.Errorf("PatchUploadSession: %w", err)
	}
	return &updated, nil
}

// DeleteUploadSession implements store.SessionRepository. Transactions are
// deleted before the session, in one database transaction.
func (s *Store) DeleteUploadSession(ctx context.Context, id string) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM transactions WHERE upload_session_id = ?`, id); err != nil {
			return fmt.Errorf("deleting transactions: %w", err)
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM upload_sessions WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("deleting session: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return domain.NewNotFoundError("upload session", id)
		}
		return nil
	})
	if err != nil {
		if domain.IsKind(err, domain.KindNotFound) {
			return err
		}
		return domain.NewCascadeError("upload session", id, fmt.Errorf("DeleteUploadSession: %w", err))
	}
	return nil
}

// ListUploadSessions implements store.SessionRepository.
func (s *Store) ListUploadSessions(ctx context.Context, userID string) ([]domain.UploadSession, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM upload_sessions WHERE user_id = ? ORDER BY rowid DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("ListUploadSessions: querying: %w", err)
	}
	defer rows.Close()

	var out []domain.UploadSession
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("ListUploadSessions: scanning: %w", err)
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}
