package pipeline

import (
	"context"
	"fmt"

	"github.com/dvloznov/finance-ledger/internal/domain"
)

// Step 1: ValidateStep checks every row and computes the batch date range.
// Nothing is persisted if it fails.
type ValidateStep struct {
	validator *Validator
}

func (s *ValidateStep) Execute(ctx context.Context, state *CommitState) error {
	if len(state.Transactions) == 0 {
		return domain.NewValidationError("select at least one transaction to commit")
	}
	lo, hi, err := s.validator.ValidateBatch(state.Transactions)
	if err != nil {
		return err
	}
	state.MinDate, state.MaxDate = lo, hi
	return nil
}

// Step 2: CreateSessionStep opens an empty bulk session.
type CreateSessionStep struct {
	sessions SessionLedger
}

func (s *CreateSessionStep) Execute(ctx context.Context, state *CommitState) error {
	sess, err := s.sessions.Create(ctx, state.UserID, domain.UploadBulk)
	if err != nil {
		return fmt.Errorf("CreateSessionStep: %w", err)
	}
	state.Session = sess
	return nil
}

// Step 3: InsertTransactionsStep writes all rows referencing the session.
type InsertTransactionsStep struct {
	txs TransactionInserter
}

func (s *InsertTransactionsStep) Execute(ctx context.Context, state *CommitState) error {
	for _, tx := range state.Transactions {
		tx.UserID = state.UserID
		tx.UploadSessionID = state.Session.ID
		tx.IsBulkUpload = true
	}
	if err := s.txs.BulkCreateTransactions(ctx, state.UserID, state.Transactions); err != nil {
		return fmt.Errorf("InsertTransactionsStep: %w", err)
	}
	state.Inserted = len(state.Transactions)
	return nil
}

// Step 4: PatchSessionStep records the batch count and range on the session.
type PatchSessionStep struct {
	sessions SessionLedger
}

func (s *PatchSessionStep) Execute(ctx context.Context, state *CommitState) error {
	sess, err := s.sessions.RecordBatch(ctx, state.Session.ID, state.Inserted, state.MinDate, state.MaxDate)
	if err != nil {
		return fmt.Errorf("PatchSessionStep: %w", err)
	}
	state.Session = sess
	return nil
}
