package memory

import (
	"context"
	"testing"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/finance-ledger/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func expense(session string, date civil.Date) *domain.Transaction {
	return &domain.Transaction{
		Type:            domain.Expense,
		Category:        "Groceries",
		Store:           "Target",
		Amount:          decimal.NewFromInt(10),
		TransactionDate: date,
		UploadSessionID: session,
	}
}

func TestDeleteUploadSessionCascadesOnlyItsTransactions(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	a := &domain.UploadSession{UserID: "u1", UploadType: domain.UploadBulk}
	b := &domain.UploadSession{UserID: "u1", UploadType: domain.UploadManual}
	require.NoError(t, s.CreateUploadSession(ctx, a))
	require.NoError(t, s.CreateUploadSession(ctx, b))

	day := civil.Date{Year: 2024, Month: 1, Day: 2}
	require.NoError(t, s.BulkCreateTransactions(ctx, "u1", []*domain.Transaction{expense(a.ID, day), expense(a.ID, day)}))
	keep := expense(b.ID, day)
	require.NoError(t, s.CreateTransaction(ctx, keep))

	require.NoError(t, s.DeleteUploadSession(ctx, a.ID))

	txs, err := s.ListTransactions(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, keep.ID, txs[0].ID)

	_, err = s.GetUploadSession(ctx, a.ID)
	assert.True(t, domain.IsKind(err, domain.KindNotFound))
}

func TestBulkCreateTransactionsIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	sess := &domain.UploadSession{UserID: "u1", UploadType: domain.UploadBulk}
	require.NoError(t, s.CreateUploadSession(ctx, sess))

	day := civil.Date{Year: 2024, Month: 1, Day: 2}
	bad := expense(sess.ID, day)
	bad.Store = ""
	err := s.BulkCreateTransactions(ctx, "u1", []*domain.Transaction{expense(sess.ID, day), bad})
	assert.True(t, domain.IsKind(err, domain.KindValidation))

	txs, _ := s.ListSessionTransactions(ctx, sess.ID)
	assert.Empty(t, txs)
}

func TestAccountRecordsAndCascade(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	checking := &domain.AccountDefinition{UserID: "u1", Name: "Checking", Category: domain.AccountLiquid}
	require.NoError(t, s.CreateAccountDefinition(ctx, checking))
	other := &domain.AccountDefinition{UserID: "u2", Name: "Other", Category: domain.AccountDebt}
	require.NoError(t, s.CreateAccountDefinition(ctx, other))

	day := civil.Date{Year: 2024, Month: 1, Day: 1}
	_, err := s.BulkCreateAccountRecords(ctx, "u1", day, []domain.BalanceEntry{{AccountID: other.ID, Balance: decimal.NewFromInt(1)}})
	assert.True(t, domain.IsKind(err, domain.KindNotFound), "cannot record against another user's account")

	recs, err := s.BulkCreateAccountRecords(ctx, "u1", day, []domain.BalanceEntry{
		{AccountID: checking.ID, Balance: decimal.NewFromInt(100)},
		{AccountID: checking.ID, Balance: decimal.NewFromInt(150)},
	})
	require.NoError(t, err)
	require.Len(t, recs, 2)

	listed, err := s.ListAccountRecords(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, recs[1].ID, listed[1].ID, "records are listed in creation order")

	require.NoError(t, s.DeleteAccountDefinition(ctx, checking.ID))
	listed, _ = s.ListAccountRecords(ctx, "u1")
	assert.Empty(t, listed)
}

func TestPatchTransaction(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	tx := expense("", civil.Date{Year: 2024, Month: 1, Day: 2})
	require.NoError(t, s.CreateTransaction(ctx, tx))

	tag := "weekly"
	got, err := s.PatchTransaction(ctx, tx.ID, domain.TransactionPatch{Tag: &tag})
	require.NoError(t, err)
	assert.Equal(t, "weekly", got.Tag)

	_, err = s.PatchTransaction(ctx, "missing", domain.TransactionPatch{Tag: &tag})
	assert.True(t, domain.IsKind(err, domain.KindNotFound))
}
