package bigquery

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/finance-ledger/internal/domain"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
)

const transactionColumns = `transaction_id, user_id, type, category, store, amount,
			description, tag, transaction_date, is_bulk_upload, upload_session_id,
			created_ts, updated_ts`

// InsertTransactionsWithClient inserts a batch of transactions in one
// multi-statement transaction. Every row that names a session is checked
// against upload_sessions inside the script; a missing session aborts the
// whole batch.
func InsertTransactionsWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, rows []*domain.Transaction, created time.Time) error {
	if len(rows) == 0 {
		return nil
	}

	var b strings.Builder
	var params []bigquery.QueryParameter
	b.WriteString("BEGIN TRANSACTION;\n")
	for i, t := range rows {
		n := strconv.Itoa(i)
		if t.UploadSessionID != "" {
			fmt.Fprintf(&b, `IF NOT EXISTS (SELECT 1 FROM %s WHERE session_id = @upload_session_id_%s) THEN
				RAISE USING MESSAGE = 'upload session not found';
			END IF;
`, ds.table("upload_sessions"), n)
		}
		fmt.Fprintf(&b, `INSERT INTO %s (transaction_id, user_id, type, category, store, amount,
				description, tag, transaction_date, is_bulk_upload, upload_session_id, created_ts)
			VALUES (@transaction_id_%[2]s, @user_id_%[2]s, @type_%[2]s, @category_%[2]s, @store_%[2]s, @amount_%[2]s,
				NULLIF(@description_%[2]s, ''), NULLIF(@tag_%[2]s, ''), @transaction_date_%[2]s,
				@is_bulk_upload_%[2]s, NULLIF(@upload_session_id_%[2]s, ''), @created_ts_%[2]s);
`, ds.table("transactions"), n)
		params = append(params, transactionParams(i, t, created)...)
	}
	b.WriteString("COMMIT TRANSACTION;\n")

	q := client.Query(b.String())
	q.Parameters = params
	if err := runDML(ctx, q); err != nil {
		return fmt.Errorf("InsertTransactionsWithClient: %w", err)
	}
	return nil
}

// FindTransactionWithClient returns the transaction with the given ID, or
// nil when there is none.
func FindTransactionWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, transactionID string) (*TransactionRow, error) {
	rows, err := queryTransactions(ctx, client, ds, "transaction_id = @id", transactionID)
	if err != nil {
		return nil, fmt.Errorf("FindTransactionWithClient: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// QueryTransactionsByUserWithClient returns the user's transactions, newest date first.
func QueryTransactionsByUserWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, userID string) ([]*TransactionRow, error) {
	rows, err := queryTransactions(ctx, client, ds, "user_id = @id", userID)
	if err != nil {
		return nil, fmt.Errorf("QueryTransactionsByUserWithClient: %w", err)
	}
	return rows, nil
}

// QueryTransactionsBySessionWithClient returns the transactions of one upload session.
func QueryTransactionsBySessionWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, sessionID string) ([]*TransactionRow, error) {
	rows, err := queryTransactions(ctx, client, ds, "upload_session_id = @id", sessionID)
	if err != nil {
		return nil, fmt.Errorf("QueryTransactionsBySessionWithClient: %w", err)
	}
	return rows, nil
}

func queryTransactions(ctx context.Context, client *bigquery.Client, ds Dataset, where, id string) ([]*TransactionRow, error) {
	q := client.Query(`
		SELECT ` + transactionColumns + `
		FROM ` + ds.table("transactions") + `
		WHERE ` + where + `
		ORDER BY transaction_date DESC, created_ts, transaction_id
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "id", Value: id},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("query read: %w", err)
	}

	var rows []*TransactionRow
	for {
		var r TransactionRow
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iter next: %w", err)
		}
		rows = append(rows, &r)
	}
	return rows, nil
}

// UpdateTransactionWithClient overwrites the editable fields of a transaction.
func UpdateTransactionWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, t domain.Transaction) error {
	q := client.Query(`
		UPDATE ` + ds.table("transactions") + `
		SET type = @type,
		    category = @category,
		    store = @store,
		    amount = @amount,
		    description = NULLIF(@description, ''),
		    tag = NULLIF(@tag, ''),
		    transaction_date = @transaction_date,
		    updated_ts = @updated_ts
		WHERE transaction_id = @transaction_id
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "type", Value: string(t.Type)},
		{Name: "category", Value: t.Category},
		{Name: "store", Value: t.Store},
		{Name: "amount", Value: t.Amount.Rat()},
		{Name: "description", Value: t.Description},
		{Name: "tag", Value: t.Tag},
		{Name: "transaction_date", Value: t.TransactionDate},
		{Name: "updated_ts", Value: t.UpdatedAt},
		{Name: "transaction_id", Value: t.ID},
	}

	if err := runDML(ctx, q); err != nil {
		return fmt.Errorf("UpdateTransactionWithClient: %w", err)
	}
	return nil
}

// CreateTransaction implements store.TransactionRepository.
func (s *Store) CreateTransaction(ctx context.Context, t *domain.Transaction) error {
	return s.BulkCreateTransactions(ctx, t.UserID, []*domain.Transaction{t})
}

// BulkCreateTransactions implements store.TransactionRepository.
func (s *Store) BulkCreateTransactions(ctx context.Context, userID string, txs []*domain.Transaction) error {
	for _, t := range txs {
		if err := t.Validate(); err != nil {
			return err
		}
	}

	seen := make(map[string]bool)
	for _, t := range txs {
		if t.UploadSessionID == "" || seen[t.UploadSessionID] {
			continue
		}
		if _, err := s.GetUploadSession(ctx, t.UploadSessionID); err != nil {
			return err
		}
		seen[t.UploadSessionID] = true
	}

	created := s.now().UTC()
	for _, t := range txs {
		if t.ID == "" {
			t.ID = uuid.NewString()
		}
		t.UserID = userID
	}
	if err := InsertTransactionsWithClient(ctx, s.client, s.ds, txs, created); err != nil {
		return fmt.Errorf("BulkCreateTransactions: %w", err)
	}
	for _, t := range txs {
		t.CreatedAt = created
		t.UpdatedAt = created
	}
	return nil
}

// GetTransaction implements store.TransactionRepository.
func (s *Store) GetTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	row, err := FindTransactionWithClient(ctx, s.client, s.ds, id)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, domain.NewNotFoundError("transaction", id)
	}
	t := row.toDomain()
	return &t, nil
}

// PatchTransaction implements store.TransactionRepository.
func (s *Store) PatchTransaction(ctx context.Context, id string, patch domain.TransactionPatch) (*domain.Transaction, error) {
	cur, err := s.GetTransaction(ctx, id)
	if err != nil {
		return nil, err
	}
	updated, err := patch.Apply(*cur)
	if err != nil {
		return nil, err
	}
	updated.UpdatedAt = s.now().UTC()
	if err := UpdateTransactionWithClient(ctx, s.client, s.ds, updated); err != nil {
		return nil, fmt.Errorf("PatchTransaction: %w", err)
	}
	return &updated, nil
}

// ListTransactions implements store.TransactionRepository.
func (s *Store) ListTransactions(ctx context.Context, userID string) ([]domain.Transaction, error) {
	rows, err := QueryTransactionsByUserWithClient(ctx, s.client, s.ds, userID)
	if err != nil {
		return nil, err
	}
	return transactionsToDomain(rows), nil
}

// ListSessionTransactions implements store.TransactionRepository.
func (s *Store) ListSessionTransactions(ctx context.Context, sessionID string) ([]domain.Transaction, error) {
	rows, err := QueryTransactionsBySessionWithClient(ctx, s.client, s.ds, sessionID)
	if err != nil {
		return nil, err
	}
	return transactionsToDomain(rows), nil
}

func transactionsToDomain(rows []*TransactionRow) []domain.Transaction {
	out := make([]domain.Transaction, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out
}
