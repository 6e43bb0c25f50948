// Package pipeline runs the bulk commit of reviewed import rows as a
// sequence of steps: validate, create the upload session, insert the rows,
// and record the batch on the session.
//
// The steps are separate writes with no transaction spanning them. When a
// step after session creation fails, Committer repairs the session from the
// rows that actually landed and, if that fails too, queues a repair job.
package pipeline

import (
	"context"
	"fmt"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/finance-ledger/internal/domain"
)

// PipelineStep represents a single step in the commit pipeline.
type PipelineStep interface {
	Execute(ctx context.Context, state *CommitState) error
}

// CommitState holds the shared state across all pipeline steps.
type CommitState struct {
	UserID       string
	Transactions []*domain.Transaction

	// Set by ValidateStep.
	MinDate civil.Date
	MaxDate civil.Date

	// Set by CreateSessionStep; non-nil means something was persisted.
	Session *domain.UploadSession

	// Set by InsertTransactionsStep.
	Inserted int
}

// Pipeline executes a sequence of steps in order.
type Pipeline struct {
	steps []PipelineStep
}

// NewPipeline creates a new pipeline with the given steps.
func NewPipeline(steps ...PipelineStep) *Pipeline {
	return &Pipeline{steps: steps}
}

// Execute runs all steps sequentially and stops at the first failure.
func (p *Pipeline) Execute(ctx context.Context, state *CommitState) error {
	for i, step := range p.steps {
		if err := step.Execute(ctx, state); err != nil {
			return fmt.Errorf("pipeline step %d failed: %w", i+1, err)
		}
	}
	return nil
}

// NewBulkCommitPipeline creates the standard four-step commit pipeline.
func NewBulkCommitPipeline(validator *Validator, sessions SessionLedger, txs TransactionInserter) *Pipeline {
	return NewPipeline(
		&ValidateStep{validator: validator},
		&CreateSessionStep{sessions: sessions},
		&InsertTransactionsStep{txs: txs},
		&PatchSessionStep{sessions: sessions},
	)
}
