package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/finance-ledger/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ledger.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, path
}

func expense(session string, date civil.Date, amount string) *domain.Transaction {
	return &domain.Transaction{
		Type:            domain.Expense,
		Category:        "Groceries",
		Store:           "Target",
		Amount:          decimal.RequireFromString(amount),
		TransactionDate: date,
		UploadSessionID: session,
		IsBulkUpload:    session != "",
	}
}

func TestOpenIsRepeatable(t *testing.T) {
	_, path := openTemp(t)
	s2, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s2.Close())
}

func TestAccountRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, _ := openTemp(t)

	checking := &domain.AccountDefinition{UserID: "u1", Name: "Checking", Category: domain.AccountLiquid}
	loan := &domain.AccountDefinition{UserID: "u1", Name: "CarLoan", Category: domain.AccountDebt}
	require.NoError(t, s.CreateAccountDefinition(ctx, checking))
	require.NoError(t, s.CreateAccountDefinition(ctx, loan))
	assert.False(t, checking.CreatedAt.IsZero())

	defs, err := s.ListAccountDefinitions(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, defs, 2)
	assert.Equal(t, "Checking", defs[0].Name)
	assert.Equal(t, domain.AccountDebt, defs[1].Category)

	day := civil.Date{Year: 2024, Month: 2, Day: 1}
	recs, err := s.BulkCreateAccountRecords(ctx, "u1", day, []domain.BalanceEntry{
		{AccountID: checking.ID, Balance: decimal.RequireFromString("1200.50")},
		{AccountID: loan.ID, Balance: decimal.RequireFromString("3000")},
	})
	require.NoError(t, err)
	require.Len(t, recs, 2)

	listed, err := s.ListAccountRecords(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, recs[0].ID, listed[0].ID)
	assert.True(t, decimal.RequireFromString("1200.50").Equal(listed[0].Balance))
	assert.Equal(t, day, listed[0].RecordDate)

	_, err = s.BulkCreateAccountRecords(ctx, "u2", day, []domain.BalanceEntry{{AccountID: checking.ID, Balance: decimal.NewFromInt(1)}})
	assert.True(t, domain.IsKind(err, domain.KindNotFound))

	require.NoError(t, s.DeleteAccountDefinition(ctx, checking.ID))
	listed, err = s.ListAccountRecords(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, loan.ID, listed[0].AccountID)

	assert.True(t, domain.IsKind(s.DeleteAccountDefinition(ctx, checking.ID), domain.KindNotFound))
	_, err = s.GetAccountDefinition(ctx, checking.ID)
	assert.True(t, domain.IsKind(err, domain.KindNotFound))
}

func TestSessionPatchAndCascade(t *testing.T) {
	ctx := context.Background()
	s, _ := openTemp(t)

	a := &domain.UploadSession{UserID: "u1", UploadType: domain.UploadBulk}
	b := &domain.UploadSession{UserID: "u1", UploadType: domain.UploadManual}
	require.NoError(t, s.CreateUploadSession(ctx, a))
	require.NoError(t, s.CreateUploadSession(ctx, b))

	got, err := s.GetUploadSession(ctx, a.ID)
	require.NoError(t, err)
	assert.Nil(t, got.MinTransactionDate)
	assert.Equal(t, 0, got.TransactionCount)

	lo := civil.Date{Year: 2024, Month: 1, Day: 2}
	hi := civil.Date{Year: 2024, Month: 1, Day: 9}
	count := 2
	patched, err := s.PatchUploadSession(ctx, a.ID, domain.SessionPatch{TransactionCount: &count, MinTransactionDate: &lo, MaxTransactionDate: &hi})
	require.NoError(t, err)
	assert.Equal(t, 2, patched.TransactionCount)
	got, err = s.GetUploadSession(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, hi, *got.MaxTransactionDate)

	neg := -1
	_, err = s.PatchUploadSession(ctx, a.ID, domain.SessionPatch{TransactionCount: &neg})
	assert.True(t, domain.IsKind(err, domain.KindValidation))

	require.NoError(t, s.BulkCreateTransactions(ctx, "u1", []*domain.Transaction{expense(a.ID, lo, "10"), expense(a.ID, hi, "20")}))
	keep := expense(b.ID, lo, "5")
	keep.UserID = "u1"
	require.NoError(t, s.CreateTransaction(ctx, keep))

	list, err := s.ListUploadSessions(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, b.ID, list[0].ID, "newest first")

	require.NoError(t, s.DeleteUploadSession(ctx, a.ID))
	txs, err := s.ListTransactions(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, keep.ID, txs[0].ID)

	assert.True(t, domain.IsKind(s.DeleteUploadSession(ctx, a.ID), domain.KindNotFound))
}

func TestTransactions(t *testing.T) {
	ctx := context.Background()
	s, _ := openTemp(t)
	sess := &domain.UploadSession{UserID: "u1", UploadType: domain.UploadBulk}
	require.NoError(t, s.CreateUploadSession(ctx, sess))

	jan := civil.Date{Year: 2024, Month: 1, Day: 2}
	feb := civil.Date{Year: 2024, Month: 2, Day: 2}

	bad := expense(sess.ID, jan, "1")
	bad.Category = ""
	err := s.BulkCreateTransactions(ctx, "u1", []*domain.Transaction{expense(sess.ID, jan, "1"), bad})
	assert.True(t, domain.IsKind(err, domain.KindValidation))

	err = s.BulkCreateTransactions(ctx, "u1", []*domain.Transaction{expense("missing", jan, "1")})
	assert.True(t, domain.IsKind(err, domain.KindNotFound))

	txs, err := s.ListSessionTransactions(ctx, sess.ID)
	require.NoError(t, err)
	assert.Empty(t, txs, "failed batches leave nothing behind")

	first := expense(sess.ID, jan, "12.34")
	second := expense(sess.ID, feb, "56.78")
	require.NoError(t, s.BulkCreateTransactions(ctx, "u1", []*domain.Transaction{first, second}))

	txs, err = s.ListSessionTransactions(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, second.ID, txs[0].ID, "newest date first")
	assert.True(t, txs[0].IsBulkUpload)
	assert.True(t, decimal.RequireFromString("56.78").Equal(txs[0].Amount))

	manual := expense("", feb, "3")
	manual.UserID = "u1"
	require.NoError(t, s.CreateTransaction(ctx, manual))
	got, err := s.GetTransaction(ctx, manual.ID)
	require.NoError(t, err)
	assert.Empty(t, got.UploadSessionID)

	tag := "weekly"
	patched, err := s.PatchTransaction(ctx, first.ID, domain.TransactionPatch{Tag: &tag, TransactionDate: &feb})
	require.NoError(t, err)
	assert.Equal(t, "weekly", patched.Tag)
	assert.Equal(t, feb, patched.TransactionDate)

	empty := ""
	_, err = s.PatchTransaction(ctx, first.ID, domain.TransactionPatch{Store: &empty})
	assert.True(t, domain.IsKind(err, domain.KindValidation))

	require.NoError(t, s.DeleteTransaction(ctx, first.ID))
	assert.True(t, domain.IsKind(s.DeleteTransaction(ctx, first.ID), domain.KindNotFound))
	_, err = s.GetTransaction(ctx, first.ID)
	assert.True(t, domain.IsKind(err, domain.KindNotFound))
}
