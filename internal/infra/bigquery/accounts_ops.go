package bigquery

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/dvloznov/finance-ledger/internal/domain"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
)

// ListAccountDefinitionsWithClient retrieves the user's account definitions, oldest first.
func ListAccountDefinitionsWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, userID string) ([]*AccountDefinitionRow, error) {
	query := fmt.Sprintf(`
		SELECT account_id, user_id, name, category, created_ts
		FROM %s
		WHERE user_id = @user_id
		ORDER BY created_ts ASC
	`, ds.table("account_definitions"))

	q := client.Query(query)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "user_id", Value: userID},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListAccountDefinitionsWithClient: reading query: %w", err)
	}

	var rows []*AccountDefinitionRow
	for {
		var row AccountDefinitionRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListAccountDefinitionsWithClient: iterating: %w", err)
		}
		rows = append(rows, &row)
	}

	return rows, nil
}

// FindAccountDefinitionWithClient returns the definition with the given ID,
// or nil when there is none.
func FindAccountDefinitionWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, accountID string) (*AccountDefinitionRow, error) {
	query := fmt.Sprintf(`
		SELECT account_id, user_id, name, category, created_ts
		FROM %s
		WHERE account_id = @account_id
		LIMIT 1
	`, ds.table("account_definitions"))

	q := client.Query(query)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "account_id", Value: accountID},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("FindAccountDefinitionWithClient: reading query: %w", err)
	}

	var row AccountDefinitionRow
	err = it.Next(&row)
	if err == iterator.Done {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("FindAccountDefinitionWithClient: iterating: %w", err)
	}

	return &row, nil
}

// InsertAccountDefinitionWithClient inserts one definition row.
func InsertAccountDefinitionWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, row *AccountDefinitionRow) error {
	if row.AccountID == "" {
		row.AccountID = uuid.NewString()
	}

	q := client.Query(`
		INSERT INTO ` + ds.table("account_definitions") + ` (account_id, user_id, name, category, created_ts)
		VALUES (@account_id, @user_id, @name, @category, @created_ts)
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "account_id", Value: row.AccountID},
		{Name: "user_id", Value: row.UserID},
		{Name: "name", Value: row.Name},
		{Name: "category", Value: row.Category},
		{Name: "created_ts", Value: row.CreatedTS},
	}

	if err := runDML(ctx, q); err != nil {
		return fmt.Errorf("InsertAccountDefinitionWithClient: %w", err)
	}
	return nil
}

// ListAccountRecordsWithClient retrieves every balance record of the user in creation order.
func ListAccountRecordsWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, userID string) ([]*AccountRecordRow, error) {
	query := fmt.Sprintf(`
		SELECT record_id, account_id, user_id, balance, record_date, created_ts
		FROM %s
		WHERE user_id = @user_id
		ORDER BY created_ts ASC, record_id
	`, ds.table("account_records"))

	q := client.Query(query)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "user_id", Value: userID},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListAccountRecordsWithClient: reading query: %w", err)
	}

	var rows []*AccountRecordRow
	for {
		var row AccountRecordRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListAccountRecordsWithClient: iterating: %w", err)
		}
		rows = append(rows, &row)
	}

	return rows, nil
}

// InsertAccountRecordsWithClient inserts all rows in one multi-statement
// transaction so a batch is recorded completely or not at all.
func InsertAccountRecordsWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, rows []*AccountRecordRow) error {
	if len(rows) == 0 {
		return nil
	}

	var b strings.Builder
	var params []bigquery.QueryParameter
	b.WriteString("BEGIN TRANSACTION;\n")
	for i, row := range rows {
		n := strconv.Itoa(i)
		fmt.Fprintf(&b, `INSERT INTO %s (record_id, account_id, user_id, balance, record_date, created_ts)
			VALUES (@record_id_%s, @account_id_%s, @user_id_%s, @balance_%s, @record_date_%s, @created_ts_%s);
`, ds.table("account_records"), n, n, n, n, n, n)
		params = append(params,
			bigquery.QueryParameter{Name: "record_id_" + n, Value: row.RecordID},
			bigquery.QueryParameter{Name: "account_id_" + n, Value: row.AccountID},
			bigquery.QueryParameter{Name: "user_id_" + n, Value: row.UserID},
			bigquery.QueryParameter{Name: "balance_" + n, Value: row.Balance},
			bigquery.QueryParameter{Name: "record_date_" + n, Value: row.RecordDate},
			bigquery.QueryParameter{Name: "created_ts_" + n, Value: row.CreatedTS},
		)
	}
	b.WriteString("COMMIT TRANSACTION;\n")

	q := client.Query(b.String())
	q.Parameters = params
	if err := runDML(ctx, q); err != nil {
		return fmt.Errorf("InsertAccountRecordsWithClient: %w", err)
	}
	return nil
}

// ListAccountDefinitions implements store.AccountRepository.
func (s *Store) ListAccountDefinitions(ctx context.Context, userID string) ([]domain.AccountDefinition, error) {
	rows, err := ListAccountDefinitionsWithClient(ctx, s.client, s.ds, userID)
	if err != nil {
		return nil, err
	}
	out := make([]domain.AccountDefinition, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

// GetAccountDefinition implements store.AccountRepository.
func (s *Store) GetAccountDefinition(ctx context.Context, id string) (*domain.AccountDefinition, error) {
	row, err := FindAccountDefinitionWithClient(ctx, s.client, s.ds, id)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, domain.NewNotFoundError("account", id)
	}
	def := row.toDomain()
	return &def, nil
}

// CreateAccountDefinition implements store.AccountRepository.
func (s *Store) CreateAccountDefinition(ctx context.Context, def *domain.AccountDefinition) error {
	if err := def.Validate(); err != nil {
		return err
	}
	row := &AccountDefinitionRow{
		AccountID: def.ID,
		UserID:    def.UserID,
		Name:      def.Name,
		Category:  string(def.Category),
		CreatedTS: s.now().UTC(),
	}
	if err := InsertAccountDefinitionWithClient(ctx, s.client, s.ds, row); err != nil {
		return err
	}
	def.ID = row.AccountID
	def.CreatedAt = row.CreatedTS
	return nil
}

// ListAccountRecords implements store.AccountRepository.
func (s *Store) ListAccountRecords(ctx context.Context, userID string) ([]domain.AccountRecord, error) {
	rows, err := ListAccountRecordsWithClient(ctx, s.client, s.ds, userID)
	if err != nil {
		return nil, err
	}
	out := make([]domain.AccountRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

// BulkCreateAccountRecords implements store.AccountRepository.
func (s *Store) BulkCreateAccountRecords(ctx context.Context, userID string, date civil.Date, entries []domain.BalanceEntry) ([]domain.AccountRecord, error) {
	if !date.IsValid() {
		return nil, domain.NewValidationError("record date is required")
	}

	owned, err := s.ListAccountDefinitions(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("BulkCreateAccountRecords: loading accounts: %w", err)
	}
	known := make(map[string]bool, len(owned))
	for _, d := range owned {
		known[d.ID] = true
	}

	created := s.now().UTC()
	rows := make([]*AccountRecordRow, 0, len(entries))
	for _, e := range entries {
		if !known[e.AccountID] {
			return nil, domain.NewNotFoundError("account", e.AccountID)
		}
		rows = append(rows, &AccountRecordRow{
			RecordID:   uuid.NewString(),
			AccountID:  e.AccountID,
			UserID:     userID,
			Balance:    e.Balance.Rat(),
			RecordDate: date,
			CreatedTS:  created,
		})
	}

	if err := InsertAccountRecordsWithClient(ctx, s.client, s.ds, rows); err != nil {
		return nil, err
	}

	out := make([]domain.AccountRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}
