package jobs

import (
	"context"
	"fmt"

	"github.com/dvloznov/finance-ledger/internal/sessions"
	"github.com/rs/zerolog"
)

// Repairer recomputes one upload session.
type Repairer interface {
	Repair(ctx context.Context, sessionID string) (sessions.RepairResult, error)
	Sweep(ctx context.Context, sessionID string) (sessions.RepairResult, error)
}

// RepairHandler returns the handler that runs repair jobs.
func RepairHandler(repairer Repairer, log zerolog.Logger) JobHandler {
	return func(ctx context.Context, job Job) error {
		j, ok := job.(*RepairSessionJob)
		if !ok {
			return fmt.Errorf("RepairHandler: unsupported job type %s", job.GetType())
		}
		run := repairer.Repair
		if j.Sweep {
			run = repairer.Sweep
		}
		res, err := run(ctx, j.SessionID)
		if err != nil {
			log.Warn().Err(err).
				Str("job_id", j.JobID).
				Str("session_id", j.SessionID).
				Bool("sweep", j.Sweep).
				Int("retry_count", j.RetryCount).
				Msg("Session repair job failed")
			return fmt.Errorf("RepairHandler: %w", err)
		}
		j.Outcome = string(res.Action)
		log.Info().
			Str("job_id", j.JobID).
			Str("user_id", j.UserID).
			Str("session_id", j.SessionID).
			Str("outcome", j.Outcome).
			Msg("Session repair job completed")
		return nil
	}
}

// RepairPublisher turns a repair request into a queued job.
type RepairPublisher struct {
	publisher  Publisher
	maxRetries int
}

// NewRepairPublisher wraps p. maxRetries of zero keeps the queue default.
func NewRepairPublisher(p Publisher, maxRetries int) *RepairPublisher {
	return &RepairPublisher{publisher: p, maxRetries: maxRetries}
}

// PublishRepair queues a repair of sessionID. The job deletes the session
// outright if it holds no transactions.
func (r *RepairPublisher) PublishRepair(ctx context.Context, userID, sessionID string) error {
	return r.publish(ctx, &RepairSessionJob{UserID: userID, SessionID: sessionID})
}

// PublishSweep queues a background repair of sessionID that leaves recent
// empty sessions alone.
func (r *RepairPublisher) PublishSweep(ctx context.Context, userID, sessionID string) error {
	return r.publish(ctx, &RepairSessionJob{UserID: userID, SessionID: sessionID, Sweep: true})
}

func (r *RepairPublisher) publish(ctx context.Context, job *RepairSessionJob) error {
	job.MaxRetries = r.maxRetries
	if err := r.publisher.PublishRepairSession(ctx, job); err != nil {
		return fmt.Errorf("PublishRepair: %w", err)
	}
	return nil
}
