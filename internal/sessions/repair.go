package sessions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/finance-ledger/internal/domain"
)

// RepairAction describes what Repair did to a session.
type RepairAction string

const (
	RepairUnchanged RepairAction = "unchanged"
	RepairPatched   RepairAction = "patched"
	RepairDeleted   RepairAction = "deleted"
	// RepairKept is an empty session a sweep left alone because it is
	// younger than the grace period and may belong to a running commit.
	RepairKept RepairAction = "kept"
	// RepairMissing is a swept session that no longer exists.
	RepairMissing RepairAction = "missing"
)

// RepairResult reports the outcome for one session.
type RepairResult struct {
	SessionID string                `json:"session_id"`
	Action    RepairAction          `json:"action"`
	Session   *domain.UploadSession `json:"session,omitempty"`
}

// Repair recomputes a session from the transactions that actually reference
// it. A session with no transactions is deleted; otherwise count and range
// are overwritten when they disagree. Running it twice is a no-op the second
// time.
//
// Repair is for callers that know no commit into the session is still
// running, such as the committer that just failed. Background passes use
// Sweep.
func (l *Ledger) Repair(ctx context.Context, sessionID string) (RepairResult, error) {
	return l.repair(ctx, sessionID, 0)
}

// Sweep is Repair for background passes: an empty session is deleted only
// once it is older than the grace period, and a session that is already
// gone is reported as missing rather than as an error.
func (l *Ledger) Sweep(ctx context.Context, sessionID string) (RepairResult, error) {
	res, err := l.repair(ctx, sessionID, l.emptyGrace)
	if domain.IsKind(err, domain.KindNotFound) {
		return RepairResult{SessionID: sessionID, Action: RepairMissing}, nil
	}
	return res, err
}

func (l *Ledger) repair(ctx context.Context, sessionID string, grace time.Duration) (RepairResult, error) {
	sess, err := l.repo.GetUploadSession(ctx, sessionID)
	if err != nil {
		return RepairResult{}, fmt.Errorf("Repair: loading session: %w", err)
	}
	txs, err := l.repo.ListSessionTransactions(ctx, sessionID)
	if err != nil {
		return RepairResult{}, fmt.Errorf("Repair: listing transactions: %w", err)
	}

	if len(txs) == 0 {
		if age := l.now().Sub(sess.UploadDate); grace > 0 && age < grace {
			l.log.Debug().Str("session_id", sessionID).Dur("age", age).Msg("Keeping recent empty upload session")
			return RepairResult{SessionID: sessionID, Action: RepairKept, Session: sess}, nil
		}
		if err := l.repo.DeleteUploadSession(ctx, sessionID); err != nil {
			return RepairResult{}, fmt.Errorf("Repair: deleting empty session: %w", err)
		}
		l.log.Info().Str("session_id", sessionID).Msg("Deleted empty upload session")
		return RepairResult{SessionID: sessionID, Action: RepairDeleted}, nil
	}

	dates := make([]civil.Date, len(txs))
	for i, tx := range txs {
		dates[i] = tx.TransactionDate
	}
	lo, hi, _ := domain.MinMaxDates(dates)
	count := len(txs)

	if sess.Matches(count, &lo, &hi) {
		return RepairResult{SessionID: sessionID, Action: RepairUnchanged, Session: sess}, nil
	}

	updated, err := l.repo.PatchUploadSession(ctx, sessionID, domain.SessionPatch{
		TransactionCount:   &count,
		MinTransactionDate: &lo,
		MaxTransactionDate: &hi,
	})
	if err != nil {
		return RepairResult{}, fmt.Errorf("Repair: patching session: %w", err)
	}
	l.log.Info().
		Str("session_id", sessionID).
		Int("previous_count", sess.TransactionCount).
		Int("count", count).
		Msg("Repaired upload session")
	return RepairResult{SessionID: sessionID, Action: RepairPatched, Session: updated}, nil
}

// RepairAll sweeps every session of the user. Empty sessions past the grace
// period are garbage collected. It keeps going past individual failures and
// returns them joined.
func (l *Ledger) RepairAll(ctx context.Context, userID string) ([]RepairResult, error) {
	list, err := l.repo.ListUploadSessions(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("RepairAll: listing sessions: %w", err)
	}

	var results []RepairResult
	var errs []error
	for _, sess := range list {
		res, err := l.Sweep(ctx, sess.ID)
		if err != nil {
			errs = append(errs, fmt.Errorf("session %s: %w", sess.ID, err))
			continue
		}
		results = append(results, res)
	}
	return results, errors.Join(errs...)
}
