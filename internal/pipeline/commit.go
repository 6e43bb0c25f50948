package pipeline

import (
	"context"
	"fmt"

	"github.com/dvloznov/finance-ledger/internal/domain"
	"github.com/dvloznov/finance-ledger/internal/sessions"
	"github.com/rs/zerolog"
)

// CommitResult reports a finished bulk commit.
type CommitResult struct {
	Session   *domain.UploadSession `json:"session"`
	Committed int                   `json:"committed"`
	// Repaired is set when the session had to be recomputed after a failed
	// patch.
	Repaired bool `json:"repaired,omitempty"`
	// PendingRepair is set when the rows were saved but the session could
	// not be brought up to date; a queued job finishes it.
	PendingRepair bool `json:"pending_repair,omitempty"`
}

// Committer runs the bulk commit pipeline and cleans up after it.
type Committer struct {
	pipeline  *Pipeline
	repairer  Repairer
	publisher RepairPublisher
	log       zerolog.Logger
}

// NewCommitter wires the standard pipeline around a session ledger. A nil
// publisher disables the background repair fallback.
func NewCommitter(ledger *sessions.Ledger, txs TransactionInserter, validator *Validator, publisher RepairPublisher, log zerolog.Logger) *Committer {
	return &Committer{
		pipeline:  NewBulkCommitPipeline(validator, ledger, txs),
		repairer:  ledger,
		publisher: publisher,
		log:       log,
	}
}

// Commit persists txs as one bulk upload session.
//
// Failures before the session exists are returned as they are. After that
// the session is repaired from the rows that landed:
//   - an empty or vanished session means nothing was saved and the original
//     error is returned;
//   - a repair that finds the rows in place completes the commit;
//   - if the repair fails after the rows were inserted, the commit is still
//     complete: a repair job is queued and the result is marked
//     PendingRepair, so the rows are never submitted twice;
//   - if the repair fails and no rows are known to have landed, a repair job
//     is queued and a partial_commit error carrying the session id is
//     returned.
func (c *Committer) Commit(ctx context.Context, userID string, txs []*domain.Transaction) (*CommitResult, error) {
	state := &CommitState{UserID: userID, Transactions: txs}
	err := c.pipeline.Execute(ctx, state)
	if err == nil {
		c.log.Info().
			Str("user_id", userID).
			Str("session_id", state.Session.ID).
			Int("committed", state.Inserted).
			Msg("Bulk commit complete")
		return &CommitResult{Session: state.Session, Committed: state.Inserted}, nil
	}
	if state.Session == nil {
		return nil, err
	}

	sessionID := state.Session.ID
	log := c.log.With().Str("user_id", userID).Str("session_id", sessionID).Logger()
	log.Warn().Err(err).Msg("Bulk commit interrupted, repairing session")

	res, rerr := c.repairer.Repair(ctx, sessionID)
	if rerr != nil {
		if state.Inserted == 0 && domain.IsKind(rerr, domain.KindNotFound) {
			return nil, fmt.Errorf("Commit: nothing was saved: %w", err)
		}
		log.Error().Err(rerr).Int("inserted", state.Inserted).Msg("Session repair failed")
		if c.publisher != nil {
			if perr := c.publisher.PublishRepair(ctx, userID, sessionID); perr != nil {
				log.Error().Err(perr).Msg("Failed to queue session repair")
			}
		}
		if state.Inserted > 0 {
			return &CommitResult{Session: state.Session, Committed: state.Inserted, PendingRepair: true}, nil
		}
		return nil, domain.NewPartialCommitError(sessionID, err)
	}

	switch res.Action {
	case sessions.RepairDeleted:
		return nil, fmt.Errorf("Commit: nothing was saved: %w", err)
	default:
		// The rows landed; only the session bookkeeping was behind.
		log.Info().Str("action", string(res.Action)).Msg("Session repaired after interrupted commit")
		return &CommitResult{Session: res.Session, Committed: res.Session.TransactionCount, Repaired: true}, nil
	}
}
