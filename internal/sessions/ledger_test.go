package sessions

import (
	"context"
	"errors"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/finance-ledger/internal/domain"
	"github.com/dvloznov/finance-ledger/internal/store/memory"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(s string) civil.Date {
	d, err := civil.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func newTx(date string) *domain.Transaction {
	return &domain.Transaction{
		Type:            domain.Expense,
		Category:        "Dining Out",
		Store:           "Chipotle",
		Amount:          decimal.RequireFromString("11.40"),
		TransactionDate: day(date),
	}
}

func newLedger() (*Ledger, *memory.Store) {
	st := memory.NewStore()
	return NewLedger(st, zerolog.Nop()), st
}

func TestCreateStartsEmpty(t *testing.T) {
	l, _ := newLedger()
	sess, err := l.Create(context.Background(), "u1", domain.UploadBulk)
	require.NoError(t, err)
	assert.Equal(t, 0, sess.TransactionCount)
	assert.Nil(t, sess.MinTransactionDate)
	assert.Nil(t, sess.MaxTransactionDate)

	_, err = l.Create(context.Background(), "u1", "csv")
	assert.True(t, domain.IsKind(err, domain.KindValidation))
}

func TestManualCommitsTrackCountAndRange(t *testing.T) {
	ctx := context.Background()
	l, st := newLedger()

	dates := []string{"2024-03-05", "2024-01-20", "2024-02-11", "2024-03-01"}
	var sessionID string
	for _, d := range dates {
		_, sess, err := l.AddManual(ctx, "u1", sessionID, newTx(d))
		require.NoError(t, err)
		sessionID = sess.ID
	}

	sess, err := st.GetUploadSession(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, len(dates), sess.TransactionCount)
	assert.Equal(t, day("2024-01-20"), *sess.MinTransactionDate)
	assert.Equal(t, day("2024-03-05"), *sess.MaxTransactionDate)
	assert.Equal(t, domain.UploadManual, sess.UploadType)

	txs, _ := st.ListSessionTransactions(ctx, sessionID)
	assert.Len(t, txs, len(dates))
	for _, tx := range txs {
		assert.False(t, tx.IsBulkUpload)
	}
}

func TestPerRowAndBatchConverge(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger()

	perRow, err := l.Create(ctx, "u1", domain.UploadBulk)
	require.NoError(t, err)
	batch, err := l.Create(ctx, "u1", domain.UploadBulk)
	require.NoError(t, err)

	dates := []civil.Date{day("2024-05-02"), day("2024-04-30"), day("2024-05-09")}
	var rowState *domain.UploadSession
	for _, d := range dates {
		rowState, err = l.RecordCommit(ctx, perRow.ID, d)
		require.NoError(t, err)
	}
	lo, hi, _ := domain.MinMaxDates(dates)
	batchState, err := l.RecordBatch(ctx, batch.ID, len(dates), lo, hi)
	require.NoError(t, err)

	assert.Equal(t, rowState.TransactionCount, batchState.TransactionCount)
	assert.Equal(t, *rowState.MinTransactionDate, *batchState.MinTransactionDate)
	assert.Equal(t, *rowState.MaxTransactionDate, *batchState.MaxTransactionDate)
}

func TestRecordBatchRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger()
	sess, _ := l.Create(ctx, "u1", domain.UploadBulk)

	_, err := l.RecordBatch(ctx, sess.ID, 0, day("2024-01-01"), day("2024-01-01"))
	assert.True(t, domain.IsKind(err, domain.KindValidation))
	_, err = l.RecordBatch(ctx, sess.ID, 2, day("2024-02-01"), day("2024-01-01"))
	assert.True(t, domain.IsKind(err, domain.KindValidation))
	_, err = l.RecordBatch(ctx, "missing", 1, day("2024-01-01"), day("2024-01-01"))
	assert.True(t, domain.IsKind(err, domain.KindNotFound))
}

func TestDeleteRemovesOnlySessionTransactions(t *testing.T) {
	ctx := context.Background()
	l, st := newLedger()

	_, a, err := l.AddManual(ctx, "u1", "", newTx("2024-01-01"))
	require.NoError(t, err)
	_, _, err = l.AddManual(ctx, "u1", a.ID, newTx("2024-01-02"))
	require.NoError(t, err)
	other, b, err := l.AddManual(ctx, "u1", "", newTx("2024-01-03"))
	require.NoError(t, err)

	require.NoError(t, l.Delete(ctx, a.ID))

	txs, err := st.ListTransactions(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, other.ID, txs[0].ID)
	assert.Equal(t, b.ID, txs[0].UploadSessionID)

	assert.True(t, domain.IsKind(l.Delete(ctx, a.ID), domain.KindNotFound))
}

func TestRemoveTransactionRecomputesAndCollectsEmpty(t *testing.T) {
	ctx := context.Background()
	l, st := newLedger()

	first, sess, err := l.AddManual(ctx, "u1", "", newTx("2024-01-01"))
	require.NoError(t, err)
	second, _, err := l.AddManual(ctx, "u1", sess.ID, newTx("2024-02-01"))
	require.NoError(t, err)

	require.NoError(t, l.RemoveTransaction(ctx, second.ID))
	got, err := st.GetUploadSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.TransactionCount)
	assert.Equal(t, day("2024-01-01"), *got.MaxTransactionDate, "range shrinks only on recomputation")

	require.NoError(t, l.RemoveTransaction(ctx, first.ID))
	_, err = st.GetUploadSession(ctx, sess.ID)
	assert.True(t, domain.IsKind(err, domain.KindNotFound), "empty session is garbage collected")
}

func TestUpdateTransactionDateRecomputesRange(t *testing.T) {
	ctx := context.Background()
	l, st := newLedger()

	tx, sess, err := l.AddManual(ctx, "u1", "", newTx("2024-01-10"))
	require.NoError(t, err)

	moved := day("2023-12-31")
	_, err = l.UpdateTransaction(ctx, tx.ID, domain.TransactionPatch{TransactionDate: &moved})
	require.NoError(t, err)

	got, _ := st.GetUploadSession(ctx, sess.ID)
	assert.Equal(t, moved, *got.MinTransactionDate)
	assert.Equal(t, moved, *got.MaxTransactionDate)
}

func TestAddManualRejectsBulkSession(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger()
	bulk, _ := l.Create(ctx, "u1", domain.UploadBulk)

	_, _, err := l.AddManual(ctx, "u1", bulk.ID, newTx("2024-01-01"))
	assert.True(t, domain.IsKind(err, domain.KindValidation))

	_, _, err = l.AddManual(ctx, "u2", bulk.ID, newTx("2024-01-01"))
	assert.True(t, domain.IsKind(err, domain.KindNotFound))
}

type failingInsert struct {
	*memory.Store
}

func (f failingInsert) CreateTransaction(ctx context.Context, tx *domain.Transaction) error {
	return errors.New("disk full")
}

func TestAddManualDiscardsFreshSessionOnFailure(t *testing.T) {
	ctx := context.Background()
	st := memory.NewStore()
	l := NewLedger(failingInsert{st}, zerolog.Nop())

	_, _, err := l.AddManual(ctx, "u1", "", newTx("2024-01-01"))
	require.Error(t, err)

	list, _ := st.ListUploadSessions(ctx, "u1")
	assert.Empty(t, list)
}

func TestRepair(t *testing.T) {
	ctx := context.Background()
	st := memory.NewStore()
	now := time.Now()
	l := NewLedger(st, zerolog.Nop(), WithClock(func() time.Time { return now }))

	// A session whose patch never happened: rows exist, count and range do not.
	orphan, err := l.Create(ctx, "u1", domain.UploadBulk)
	require.NoError(t, err)
	rows := []*domain.Transaction{newTx("2024-06-01"), newTx("2024-06-09")}
	for _, r := range rows {
		r.UploadSessionID = orphan.ID
		r.IsBulkUpload = true
	}
	require.NoError(t, st.BulkCreateTransactions(ctx, "u1", rows))

	// A session whose insert failed: nothing references it.
	empty, err := l.Create(ctx, "u1", domain.UploadBulk)
	require.NoError(t, err)

	// A consistent session.
	_, healthy, err := l.AddManual(ctx, "u1", "", newTx("2024-01-01"))
	require.NoError(t, err)

	now = now.Add(DefaultEmptySessionGrace + time.Minute)
	results, err := l.RepairAll(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, results, 3)

	byID := map[string]RepairResult{}
	for _, r := range results {
		byID[r.SessionID] = r
	}
	assert.Equal(t, RepairPatched, byID[orphan.ID].Action)
	assert.Equal(t, RepairDeleted, byID[empty.ID].Action)
	assert.Equal(t, RepairUnchanged, byID[healthy.ID].Action)

	fixed, err := st.GetUploadSession(ctx, orphan.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, fixed.TransactionCount)
	assert.Equal(t, day("2024-06-01"), *fixed.MinTransactionDate)
	assert.Equal(t, day("2024-06-09"), *fixed.MaxTransactionDate)

	again, err := l.Repair(ctx, orphan.ID)
	require.NoError(t, err)
	assert.Equal(t, RepairUnchanged, again.Action)
}

func TestSweepKeepsRecentEmptySession(t *testing.T) {
	ctx := context.Background()
	st := memory.NewStore()
	now := time.Now()
	l := NewLedger(st, zerolog.Nop(),
		WithEmptySessionGrace(10*time.Minute),
		WithClock(func() time.Time { return now }),
	)

	// Created by a commit whose insert has not run yet.
	pending, err := l.Create(ctx, "u1", domain.UploadBulk)
	require.NoError(t, err)

	results, err := l.RepairAll(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, RepairKept, results[0].Action)

	// The commit carries on and lands its rows.
	rows := []*domain.Transaction{newTx("2024-05-02")}
	rows[0].UploadSessionID = pending.ID
	rows[0].IsBulkUpload = true
	require.NoError(t, st.BulkCreateTransactions(ctx, "u1", rows))
	_, err = l.RecordBatch(ctx, pending.ID, 1, day("2024-05-02"), day("2024-05-02"))
	require.NoError(t, err)

	res, err := l.Sweep(ctx, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, RepairUnchanged, res.Action)
}

func TestSweepDeletesStaleEmptySession(t *testing.T) {
	ctx := context.Background()
	st := memory.NewStore()
	now := time.Now()
	l := NewLedger(st, zerolog.Nop(),
		WithEmptySessionGrace(10*time.Minute),
		WithClock(func() time.Time { return now }),
	)

	abandoned, err := l.Create(ctx, "u1", domain.UploadBulk)
	require.NoError(t, err)

	now = now.Add(11 * time.Minute)
	res, err := l.Sweep(ctx, abandoned.ID)
	require.NoError(t, err)
	assert.Equal(t, RepairDeleted, res.Action)

	// A later job for the same session finds nothing to do.
	res, err = l.Sweep(ctx, abandoned.ID)
	require.NoError(t, err)
	assert.Equal(t, RepairMissing, res.Action)

	// Direct repair still reports the missing session.
	_, err = l.Repair(ctx, abandoned.ID)
	assert.True(t, domain.IsKind(err, domain.KindNotFound))
}

func TestRepairDeletesEmptySessionImmediately(t *testing.T) {
	ctx := context.Background()
	l, st := newLedger()

	failed, err := l.Create(ctx, "u1", domain.UploadBulk)
	require.NoError(t, err)

	res, err := l.Repair(ctx, failed.ID)
	require.NoError(t, err)
	assert.Equal(t, RepairDeleted, res.Action)

	list, _ := st.ListUploadSessions(ctx, "u1")
	assert.Empty(t, list)
}
