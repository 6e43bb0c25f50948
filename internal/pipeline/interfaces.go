package pipeline

import (
	"context"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/finance-ledger/internal/domain"
	"github.com/dvloznov/finance-ledger/internal/sessions"
)

// SessionLedger is the part of *sessions.Ledger the commit steps use.
type SessionLedger interface {
	Create(ctx context.Context, userID string, typ domain.UploadType) (*domain.UploadSession, error)
	RecordBatch(ctx context.Context, sessionID string, n int, lo, hi civil.Date) (*domain.UploadSession, error)
}

// Repairer recomputes a session from the rows that reference it.
type Repairer interface {
	Repair(ctx context.Context, sessionID string) (sessions.RepairResult, error)
}

// TransactionInserter persists a batch of transactions, all or none.
type TransactionInserter interface {
	BulkCreateTransactions(ctx context.Context, userID string, txs []*domain.Transaction) error
}

// RepairPublisher queues a background repair of a session.
type RepairPublisher interface {
	PublishRepair(ctx context.Context, userID, sessionID string) error
}
