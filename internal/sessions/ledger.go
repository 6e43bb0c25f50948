// Package sessions maintains upload-session provenance for committed
// transactions: counts, date ranges, cascading deletes and repair of
// sessions left inconsistent by an interrupted commit.
package sessions

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/finance-ledger/internal/domain"
	"github.com/dvloznov/finance-ledger/internal/store"
	"github.com/rs/zerolog"
)

// Repository is the persistence the ledger needs.
type Repository interface {
	store.SessionRepository
	store.TransactionRepository
}

// Ledger creates and maintains upload sessions. It assumes a single writer
// per session.
type Ledger struct {
	repo Repository
	log  zerolog.Logger

	emptyGrace time.Duration
	now        func() time.Time
}

// DefaultEmptySessionGrace is how old an empty session must be before a
// sweep deletes it.
const DefaultEmptySessionGrace = 15 * time.Minute

// Option configures a Ledger.
type Option func(*Ledger)

// WithEmptySessionGrace sets the minimum age of an empty session a sweep
// may delete. Non-positive values keep the default.
func WithEmptySessionGrace(d time.Duration) Option {
	return func(l *Ledger) {
		if d > 0 {
			l.emptyGrace = d
		}
	}
}

// WithClock replaces time.Now for age checks.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// NewLedger creates a session ledger.
func NewLedger(repo Repository, log zerolog.Logger, opts ...Option) *Ledger {
	l := &Ledger{repo: repo, log: log, emptyGrace: DefaultEmptySessionGrace, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Create opens an empty session: count 0, no date range.
func (l *Ledger) Create(ctx context.Context, userID string, typ domain.UploadType) (*domain.UploadSession, error) {
	if _, err := domain.ParseUploadType(string(typ)); err != nil {
		return nil, err
	}
	if userID == "" {
		return nil, domain.NewValidationError("user id is required")
	}
	sess := &domain.UploadSession{UserID: userID, UploadType: typ}
	if err := l.repo.CreateUploadSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("Create: creating session: %w", err)
	}
	l.log.Debug().Str("session_id", sess.ID).Str("user_id", userID).Str("upload_type", string(typ)).Msg("Upload session created")
	return sess, nil
}

// RecordCommit accounts for one committed transaction dated date.
func (l *Ledger) RecordCommit(ctx context.Context, sessionID string, date civil.Date) (*domain.UploadSession, error) {
	return l.RecordBatch(ctx, sessionID, 1, date, date)
}

// RecordBatch accounts for n committed transactions whose dates span
// [lo, hi]. It converges on the same state as n RecordCommit calls.
func (l *Ledger) RecordBatch(ctx context.Context, sessionID string, n int, lo, hi civil.Date) (*domain.UploadSession, error) {
	if n <= 0 {
		return nil, domain.NewValidationError("batch must contain at least one transaction")
	}
	if hi.Before(lo) {
		return nil, domain.NewValidationError(fmt.Sprintf("batch range %s..%s is inverted", lo, hi))
	}
	sess, err := l.repo.GetUploadSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("RecordBatch: loading session: %w", err)
	}
	widened := sess.Widen(n, lo, hi)
	updated, err := l.repo.PatchUploadSession(ctx, sessionID, domain.SessionPatch{
		TransactionCount:   &widened.TransactionCount,
		MinTransactionDate: widened.MinTransactionDate,
		MaxTransactionDate: widened.MaxTransactionDate,
	})
	if err != nil {
		return nil, fmt.Errorf("RecordBatch: patching session: %w", err)
	}
	return updated, nil
}

// Delete removes a session and every transaction that references it.
// Callers must re-read state afterwards.
func (l *Ledger) Delete(ctx context.Context, sessionID string) error {
	if err := l.repo.DeleteUploadSession(ctx, sessionID); err != nil {
		if domain.IsKind(err, domain.KindNotFound) || domain.IsKind(err, domain.KindCascade) {
			return err
		}
		return domain.NewCascadeError("upload session", sessionID, err)
	}
	l.log.Info().Str("session_id", sessionID).Msg("Upload session deleted")
	return nil
}

// List returns the user's sessions, newest first.
func (l *Ledger) List(ctx context.Context, userID string) ([]domain.UploadSession, error) {
	return l.repo.ListUploadSessions(ctx, userID)
}

// AddManual persists a manually entered transaction. With an empty
// sessionID a new manual session is opened; if the insert then fails the
// empty session is removed again.
func (l *Ledger) AddManual(ctx context.Context, userID, sessionID string, tx *domain.Transaction) (*domain.Transaction, *domain.UploadSession, error) {
	if err := tx.Validate(); err != nil {
		return nil, nil, err
	}

	opened := false
	if sessionID == "" {
		sess, err := l.Create(ctx, userID, domain.UploadManual)
		if err != nil {
			return nil, nil, err
		}
		sessionID = sess.ID
		opened = true
	} else {
		sess, err := l.repo.GetUploadSession(ctx, sessionID)
		if err != nil {
			return nil, nil, err
		}
		if sess.UserID != userID {
			return nil, nil, domain.NewNotFoundError("upload session", sessionID)
		}
		if sess.UploadType != domain.UploadManual {
			return nil, nil, domain.NewValidationError("manual transactions can only be added to a manual session")
		}
	}

	tx.UserID = userID
	tx.UploadSessionID = sessionID
	tx.IsBulkUpload = false
	if err := l.repo.CreateTransaction(ctx, tx); err != nil {
		if opened {
			l.discardEmpty(ctx, sessionID)
		}
		return nil, nil, fmt.Errorf("AddManual: creating transaction: %w", err)
	}

	sess, err := l.RecordCommit(ctx, sessionID, tx.TransactionDate)
	if err != nil {
		return tx, nil, domain.NewPartialCommitError(sessionID, err)
	}
	return tx, sess, nil
}

// UpdateTransaction edits a transaction in place. A date change triggers a
// full recomputation of the owning session's range.
func (l *Ledger) UpdateTransaction(ctx context.Context, id string, patch domain.TransactionPatch) (*domain.Transaction, error) {
	current, err := l.repo.GetTransaction(ctx, id)
	if err != nil {
		return nil, err
	}
	updated, err := l.repo.PatchTransaction(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	if patch.ChangesDate(*current) && current.UploadSessionID != "" {
		if _, err := l.Repair(ctx, current.UploadSessionID); err != nil {
			return updated, domain.NewPartialCommitError(current.UploadSessionID, err)
		}
	}
	return updated, nil
}

// RemoveTransaction deletes one transaction and recomputes its session,
// deleting the session when it becomes empty.
func (l *Ledger) RemoveTransaction(ctx context.Context, id string) error {
	tx, err := l.repo.GetTransaction(ctx, id)
	if err != nil {
		return err
	}
	if err := l.repo.DeleteTransaction(ctx, id); err != nil {
		return fmt.Errorf("RemoveTransaction: deleting transaction: %w", err)
	}
	if tx.UploadSessionID == "" {
		return nil
	}
	if _, err := l.Repair(ctx, tx.UploadSessionID); err != nil {
		return domain.NewPartialCommitError(tx.UploadSessionID, err)
	}
	return nil
}

func (l *Ledger) discardEmpty(ctx context.Context, sessionID string) {
	if err := l.repo.DeleteUploadSession(ctx, sessionID); err != nil {
		l.log.Warn().Err(err).Str("session_id", sessionID).Msg("Failed to discard empty upload session")
	}
}
