package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/finance-ledger/internal/domain"
)

// DeleteUploadSessionWithClient deletes a session and its transactions.
// Children go first, inside one multi-statement transaction.
func DeleteUploadSessionWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, sessionID string) error {
	q := client.Query(`
		BEGIN TRANSACTION;
		DELETE FROM ` + ds.table("transactions") + ` WHERE upload_session_id = @session_id;
		DELETE FROM ` + ds.table("upload_sessions") + ` WHERE session_id = @session_id;
		COMMIT TRANSACTION;
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "session_id", Value: sessionID},
	}

	if err := runDML(ctx, q); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

// DeleteAccountDefinitionWithClient deletes an account definition and its balance records.
func DeleteAccountDefinitionWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, accountID string) error {
	q := client.Query(`
		BEGIN TRANSACTION;
		DELETE FROM ` + ds.table("account_records") + ` WHERE account_id = @account_id;
		DELETE FROM ` + ds.table("account_definitions") + ` WHERE account_id = @account_id;
		COMMIT TRANSACTION;
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "account_id", Value: accountID},
	}

	if err := runDML(ctx, q); err != nil {
		return fmt.Errorf("deleting account: %w", err)
	}
	return nil
}

// DeleteTransactionWithClient deletes a single transaction.
func DeleteTransactionWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, transactionID string) error {
	q := client.Query(`
		DELETE FROM ` + ds.table("transactions") + `
		WHERE transaction_id = @transaction_id
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "transaction_id", Value: transactionID},
	}

	if err := runDML(ctx, q); err != nil {
		return fmt.Errorf("deleting transaction: %w", err)
	}
	return nil
}

// DeleteUploadSession implements store.SessionRepository.
func (s *Store) DeleteUploadSession(ctx context.Context, id string) error {
	if _, err := s.GetUploadSession(ctx, id); err != nil {
		return err
	}
	if err := DeleteUploadSessionWithClient(ctx, s.client, s.ds, id); err != nil {
		return domain.NewCascadeError("upload session", id, err)
	}
	return nil
}

// DeleteAccountDefinition implements store.AccountRepository.
func (s *Store) DeleteAccountDefinition(ctx context.Context, id string) error {
	if _, err := s.GetAccountDefinition(ctx, id); err != nil {
		return err
	}
	if err := DeleteAccountDefinitionWithClient(ctx, s.client, s.ds, id); err != nil {
		return domain.NewCascadeError("account", id, err)
	}
	return nil
}

// DeleteTransaction implements store.TransactionRepository.
func (s *Store) DeleteTransaction(ctx context.Context, id string) error {
	if _, err := s.GetTransaction(ctx, id); err != nil {
		return err
	}
	if err := DeleteTransactionWithClient(ctx, s.client, s.ds, id); err != nil {
		return fmt.Errorf("DeleteTransaction: %w", err)
	}
	return nil
}
