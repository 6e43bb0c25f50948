// Package store defines the persistence contract shared by the memory,
// SQLite and BigQuery backends.
package store

import (
	"context"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/finance-ledger/internal/domain"
)

// AccountRepository persists account definitions and their balance records.
type AccountRepository interface {
	// ListAccountDefinitions returns the user's definitions, oldest first.
	ListAccountDefinitions(ctx context.Context, userID string) ([]domain.AccountDefinition, error)

	// GetAccountDefinition returns a definition or a not_found error.
	GetAccountDefinition(ctx context.Context, id string) (*domain.AccountDefinition, error)

	// CreateAccountDefinition assigns ID and CreatedAt when empty.
	CreateAccountDefinition(ctx context.Context, def *domain.AccountDefinition) error

	// DeleteAccountDefinition removes the definition and all its records.
	DeleteAccountDefinition(ctx context.Context, id string) error

	// ListAccountRecords returns every record of the user in creation order.
	ListAccountRecords(ctx context.Context, userID string) ([]domain.AccountRecord, error)

	// BulkCreateAccountRecords records one balance per entry, all dated date.
	BulkCreateAccountRecords(ctx context.Context, userID string, date civil.Date, entries []domain.BalanceEntry) ([]domain.AccountRecord, error)
}

// SessionRepository persists upload sessions.
type SessionRepository interface {
	CreateUploadSession(ctx context.Context, s *domain.UploadSession) error
	GetUploadSession(ctx context.Context, id string) (*domain.UploadSession, error)
	PatchUploadSession(ctx context.Context, id string, patch domain.SessionPatch) (*domain.UploadSession, error)

	// DeleteUploadSession removes the session and every transaction that
	// references it, children first.
	DeleteUploadSession(ctx context.Context, id string) error

	// ListUploadSessions returns the user's sessions, newest first.
	ListUploadSessions(ctx context.Context, userID string) ([]domain.UploadSession, error)
}

// TransactionRepository persists committed transactions.
type TransactionRepository interface {
	CreateTransaction(ctx context.Context, tx *domain.Transaction) error

	// BulkCreateTransactions inserts all rows or none.
	BulkCreateTransactions(ctx context.Context, userID string, txs []*domain.Transaction) error

	GetTransaction(ctx context.Context, id string) (*domain.Transaction, error)
	PatchTransaction(ctx context.Context, id string, patch domain.TransactionPatch) (*domain.Transaction, error)
	DeleteTransaction(ctx context.Context, id string) error

	// ListTransactions returns the user's transactions, newest date first.
	ListTransactions(ctx context.Context, userID string) ([]domain.Transaction, error)

	// ListSessionTransactions returns the transactions referencing a session.
	ListSessionTransactions(ctx context.Context, sessionID string) ([]domain.Transaction, error)
}

// Store is the full persistence surface.
type Store interface {
	AccountRepository
	SessionRepository
	TransactionRepository
	Close() error
}
