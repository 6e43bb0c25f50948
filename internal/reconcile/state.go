// Package reconcile drives a parsed bank statement through review to a
// committed batch of transactions.
package reconcile

import (
	"context"

	"github.com/dvloznov/finance-ledger/internal/domain"
	"github.com/dvloznov/finance-ledger/internal/parsers"
	"github.com/dvloznov/finance-ledger/internal/pipeline"
	"github.com/shopspring/decimal"
)

// State is the workflow step.
type State string

const (
	StateUpload   State = "upload"
	StateReview   State = "review"
	StateOneByOne State = "one_by_one"
	StateComplete State = "complete"
)

// Parser turns statement bytes into candidate rows.
type Parser interface {
	ParseCandidates(ctx context.Context, content []byte, hint string) (*parsers.Result, error)
}

// Committer persists the selected rows as one bulk session.
type Committer interface {
	Commit(ctx context.Context, userID string, txs []*domain.Transaction) (*pipeline.CommitResult, error)
}

// TransactionLister supplies the user's committed transactions for
// duplicate flagging.
type TransactionLister interface {
	ListTransactions(ctx context.Context, userID string) ([]domain.Transaction, error)
}

// Archiver keeps a copy of an uploaded statement and returns where it went.
type Archiver interface {
	ArchiveStatement(ctx context.Context, userID, importID, filename string, content []byte) (string, error)
}

// Tagger proposes automatic tags for a candidate.
type Tagger interface {
	AutomaticTags(store, category string, amount decimal.Decimal, description string) []string
}
