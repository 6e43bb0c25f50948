package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/finance-ledger/internal/domain"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
)

const sessionColumns = `session_id, user_id, upload_type, transaction_count,
			min_transaction_date, max_transaction_date, upload_ts`

// InsertUploadSessionWithClient inserts one session row.
func InsertUploadSessionWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, row *UploadSessionRow) error {
	if row.SessionID == "" {
		row.SessionID = uuid.NewString()
	}

	q := client.Query(`
		INSERT INTO ` + ds.table("upload_sessions") + ` (` + sessionColumns + `)
		VALUES (
			@session_id, @user_id, @upload_type, @transaction_count,
			SAFE_CAST(NULLIF(@min_date, '') AS DATE),
			SAFE_CAST(NULLIF(@max_date, '') AS DATE),
			@upload_ts
		)
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "session_id", Value: row.SessionID},
		{Name: "user_id", Value: row.UserID},
		{Name: "upload_type", Value: row.UploadType},
		{Name: "transaction_count", Value: row.TransactionCount},
		{Name: "min_date", Value: dateParam(nullDatePtr(row.MinTransactionDate))},
		{Name: "max_date", Value: dateParam(nullDatePtr(row.MaxTransactionDate))},
		{Name: "upload_ts", Value: row.UploadTS},
	}

	if err := runDML(ctx, q); err != nil {
		return fmt.Errorf("InsertUploadSessionWithClient: %w", err)
	}
	return nil
}

// FindUploadSessionWithClient returns the session with the given ID, or nil
// when there is none.
func FindUploadSessionWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, sessionID string) (*UploadSessionRow, error) {
	q := client.Query(`
		SELECT ` + sessionColumns + `
		FROM ` + ds.table("upload_sessions") + `
		WHERE session_id = @session_id
		LIMIT 1
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "session_id", Value: sessionID},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("FindUploadSessionWithClient: reading query: %w", err)
	}

	var row UploadSessionRow
	err = it.Next(&row)
	if err == iterator.Done {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("FindUploadSessionWithClient: iterating: %w", err)
	}
	return &row, nil
}

// ListUploadSessionsWithClient retrieves the user's sessions, newest first.
func ListUploadSessionsWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, userID string) ([]*UploadSessionRow, error) {
	q := client.Query(`
		SELECT ` + sessionColumns + `
		FROM ` + ds.table("upload_sessions") + `
		WHERE user_id = @user_id
		ORDER BY upload_ts DESC
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "user_id", Value: userID},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListUploadSessionsWithClient: reading query: %w", err)
	}

	var rows []*UploadSessionRow
	for {
		var row UploadSessionRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListUploadSessionsWithClient: iterating: %w", err)
		}
		rows = append(rows, &row)
	}
	return rows, nil
}

// UpdateUploadSessionWithClient overwrites the count and date range of a session.
func UpdateUploadSessionWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, s domain.UploadSession) error {
	q := client.Query(`
		UPDATE ` + ds.table("upload_sessions") + `
		SET transaction_count = @transaction_count,
		    min_transaction_date = SAFE_CAST(NULLIF(@min_date, '') AS DATE),
		    max_transaction_date = SAFE_CAST(NULLIF(@max_date, '') AS DATE)
		WHERE session_id = @session_id
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "transaction_count", Value: s.TransactionCount},
		{Name: "min_date", Value: dateParam(s.MinTransactionDate)},
		{Name: "max_date", Value: dateParam(s.MaxTransactionDate)},
		{Name: "session_id", Value: s.ID},
	}

	if err := runDML(ctx, q); err != nil {
		return fmt.Errorf("UpdateUploadSessionWithClient: %w", err)
	}
	return nil
}

// CreateUploadSession implements store.SessionRepository.
func (s *Store) CreateUploadSession(ctx context.Context, sess *domain.UploadSession) error {
	row := &UploadSessionRow{
		SessionID:        sess.ID,
		UserID:           sess.UserID,
		UploadType:       string(sess.UploadType),
		TransactionCount: int64(sess.TransactionCount),
		UploadTS:         s.now().UTC(),
	}
	if d := sess.MinTransactionDate; d != nil {
		row.MinTransactionDate = bigquery.NullDate{Date: *d, Valid: true}
	}
	if d := sess.MaxTransactionDate; d != nil {
		row.MaxTransactionDate = bigquery.NullDate{Date: *d, Valid: true}
	}
	if err := InsertUploadSessionWithClient(ctx, s.client, s.ds, row); err != nil {
		return err
	}
	sess.ID = row.SessionID
	sess.UploadDate = row.UploadTS
	return nil
}

// GetUploadSession implements store.SessionRepository.
func (s *Store) GetUploadSession(ctx context.Context, id string) (*domain.UploadSession, error) {
	row, err := FindUploadSessionWithClient(ctx, s.client, s.ds, id)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, domain.NewNotFoundError("upload session", id)
	}
	sess := row.toDomain()
	return &sess, nil
}

// PatchUploadSession implements store.SessionRepository.
func (s *Store) PatchUploadSession(ctx context.Context, id string, patch domain.SessionPatch) (*domain.UploadSession, error) {
	cur, err := s.GetUploadSession(ctx, id)
	if err != nil {
		return nil, err
	}
	updated, err := patch.Apply(*cur)
	if err != nil {
		return nil, err
	}
	if err := UpdateUploadSessionWithClient(ctx, s.client, s.ds, updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// ListUploadSessions implements store.SessionRepository.
func (s *Store) ListUploadSessions(ctx context.Context, userID string) ([]domain.UploadSession, error) {
	rows, err := ListUploadSessionsWithClient(ctx, s.client, s.ds, userID)
	if err != nil {
		return nil, err
	}
	out := make([]domain.UploadSession, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}
