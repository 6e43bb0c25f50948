package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/finance-ledger/internal/store"
)

// Dataset names the project and dataset holding the ledger tables.
type Dataset struct {
	ProjectID string
	DatasetID string
}

// table returns the fully qualified, backquoted table name.
func (d Dataset) table(name string) string {
	return fmt.Sprintf("`%s.%s.%s`", d.ProjectID, d.DatasetID, name)
}

// Store implements store.Store on BigQuery. It holds a shared client so
// that operations do not open a connection each.
type Store struct {
	client *bigquery.Client
	ds     Dataset
	now    func() time.Time
}

var _ store.Store = (*Store)(nil)

// NewStore creates a Store with its own BigQuery client.
func NewStore(ctx context.Context, ds Dataset) (*Store, error) {
	if ds.ProjectID == "" || ds.DatasetID == "" {
		return nil, fmt.Errorf("NewStore: project and dataset are required")
	}
	client, err := bigquery.NewClient(ctx, ds.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("NewStore: creating client: %w", err)
	}
	return NewStoreWithClient(client, ds), nil
}

// NewStoreWithClient wraps an existing client.
func NewStoreWithClient(client *bigquery.Client, ds Dataset) *Store {
	return &Store{client: client, ds: ds, now: time.Now}
}

// Close closes the BigQuery client connection.
func (s *Store) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// runDML runs a statement or script and waits for it to finish.
func runDML(ctx context.Context, q *bigquery.Query) error {
	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("run query: %w", err)
	}

	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("wait for job: %w", err)
	}

	if err := status.Err(); err != nil {
		return fmt.Errorf("job error: %w", err)
	}

	return nil
}
