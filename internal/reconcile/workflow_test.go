package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/finance-ledger/internal/categorize"
	"github.com/dvloznov/finance-ledger/internal/domain"
	"github.com/dvloznov/finance-ledger/internal/parsers"
	"github.com/dvloznov/finance-ledger/internal/pipeline"
	"github.com/dvloznov/finance-ledger/internal/sessions"
	"github.com/dvloznov/finance-ledger/internal/store/memory"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type MockParser struct {
	ParseCandidatesFunc func(ctx context.Context, content []byte, hint string) (*parsers.Result, error)
}

func (m *MockParser) ParseCandidates(ctx context.Context, content []byte, hint string) (*parsers.Result, error) {
	return m.ParseCandidatesFunc(ctx, content, hint)
}

type MockCommitter struct {
	CommitFunc func(ctx context.Context, userID string, txs []*domain.Transaction) (*pipeline.CommitResult, error)
}

func (m *MockCommitter) Commit(ctx context.Context, userID string, txs []*domain.Transaction) (*pipeline.CommitResult, error) {
	return m.CommitFunc(ctx, userID, txs)
}

type fakeArchiver struct {
	calls int
}

func (a *fakeArchiver) ArchiveStatement(ctx context.Context, userID, importID, filename string, content []byte) (string, error) {
	a.calls++
	return "gs://statements/" + userID + "/" + importID + "/" + filename, nil
}

func day(s string) civil.Date {
	d, err := civil.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func parsedRow(date, store, category, amount string) parsers.Row {
	return parsers.Row{
		Date:              day(date),
		Store:             store,
		Description:       store + " purchase",
		Amount:            decimal.RequireFromString(amount),
		Type:              domain.Expense,
		SuggestedCategory: category,
		OriginalType:      "Purchase",
	}
}

func statement() *parsers.Result {
	return &parsers.Result{
		BankType: parsers.BankCapitalOne,
		Transactions: []parsers.Row{
			parsedRow("2024-03-01", "Target", "Groceries", "54.20"),
			parsedRow("2024-03-03", "Chipotle", "Dining Out", "14.75"),
			parsedRow("2024-03-07", "Shell", "Gas & Auto", "41.00"),
			parsedRow("2024-03-12", "Netflix", "Subscriptions", "15.49"),
		},
		Skipped: 1,
	}
}

func staticParser(res *parsers.Result) *MockParser {
	return &MockParser{ParseCandidatesFunc: func(ctx context.Context, content []byte, hint string) (*parsers.Result, error) {
		return res, nil
	}}
}

type fixture struct {
	store    *memory.Store
	registry *Registry
}

func newFixture(t *testing.T, parser Parser) *fixture {
	t.Helper()
	st := memory.NewStore()
	rules, err := categorize.Default()
	require.NoError(t, err)
	ledger := sessions.NewLedger(st, zerolog.Nop())
	committer := pipeline.NewCommitter(ledger, st, pipeline.NewValidator(rules), nil, zerolog.Nop())
	return &fixture{
		store: st,
		registry: NewRegistry(Deps{
			Parser:       parser,
			Committer:    committer,
			Transactions: st,
			Tagger:       rules,
			Log:          zerolog.Nop(),
		}),
	}
}

func uploaded(t *testing.T, f *fixture) *Workflow {
	t.Helper()
	w := f.registry.Start("u1")
	state, err := w.Upload(context.Background(), "march.csv", []byte("csv"), "auto")
	require.NoError(t, err)
	require.Equal(t, StateReview, state)
	return w
}

func TestUploadMaterialisesCandidates(t *testing.T) {
	f := newFixture(t, staticParser(statement()))
	w := uploaded(t, f)

	v := w.View()
	assert.Equal(t, "march.csv", v.Filename)
	assert.Equal(t, parsers.BankCapitalOne, v.BankType)
	assert.Equal(t, 1, v.Skipped)
	require.Len(t, v.Candidates, 4)
	assert.Equal(t, 4, v.SelectedCount)
	for _, c := range v.Candidates {
		assert.True(t, c.Selected)
		assert.False(t, c.Reviewed)
		assert.Equal(t, c.SuggestedCategory, c.Category)
		assert.NotEmpty(t, c.ID)
	}
	assert.Equal(t, "Target", v.Candidates[0].Store, "upload order is kept")
	assert.Equal(t, "Netflix", v.Candidates[3].Store)
	assert.Equal(t, "recurring", v.Candidates[3].Tag)
}

func TestUploadParseErrorStaysInUpload(t *testing.T) {
	parseErr := domain.NewParseError(errors.New("unrecognized statement format"))
	f := newFixture(t, &MockParser{ParseCandidatesFunc: func(ctx context.Context, content []byte, hint string) (*parsers.Result, error) {
		return nil, parseErr
	}})
	w := f.registry.Start("u1")

	state, err := w.Upload(context.Background(), "bad.txt", []byte("??"), "")
	assert.ErrorIs(t, err, parseErr)
	assert.Equal(t, StateUpload, state)
	assert.Equal(t, StateUpload, w.State())

	_, err = w.Upload(context.Background(), "empty.csv", []byte("x"), "")
	assert.True(t, domain.IsKind(err, domain.KindParse))
}

func TestUploadArchivesAndFlagsDuplicates(t *testing.T) {
	f := newFixture(t, staticParser(statement()))
	existing := &domain.Transaction{
		Type:            domain.Expense,
		Category:        "Dining Out",
		Store:           "Chipotle",
		Amount:          decimal.RequireFromString("14.75"),
		TransactionDate: day("2024-03-04"),
		UserID:          "u1",
	}
	require.NoError(t, f.store.CreateTransaction(context.Background(), existing))

	arch := &fakeArchiver{}
	f.registry.deps.Archiver = arch
	w := uploaded(t, f)

	v := w.View()
	assert.Equal(t, 1, arch.calls)
	assert.Contains(t, v.ArchiveURI, "march.csv")
	assert.Equal(t, existing.ID, v.Candidates[1].DuplicateOf)
	assert.Empty(t, v.Candidates[0].DuplicateOf)
	assert.True(t, v.Candidates[1].Selected, "duplicates are flagged, not deselected")
}

func TestOneByOneVisitsEveryCandidateOnce(t *testing.T) {
	f := newFixture(t, staticParser(statement()))
	w := uploaded(t, f)

	state, err := w.StartOneByOne()
	require.NoError(t, err)
	require.Equal(t, StateOneByOne, state)

	actions := []func() (State, error){w.Save, w.Skip, w.Save, w.Skip}
	for i, act := range actions {
		cur, err := w.Current()
		require.NoError(t, err)
		assert.Equal(t, w.View().Candidates[i].ID, cur.ID)

		state, err = act()
		require.NoError(t, err)
		if i < len(actions)-1 {
			assert.Equal(t, StateOneByOne, state)
		}
	}
	assert.Equal(t, StateReview, state)

	v := w.View()
	assert.Equal(t, 4, v.ReviewedCount)
	assert.Equal(t, 2, v.SelectedCount)
	for i, c := range v.Candidates {
		assert.True(t, c.Reviewed)
		assert.Equal(t, i%2 == 0, c.Selected)
	}
}

func TestBackReturnsToReview(t *testing.T) {
	f := newFixture(t, staticParser(statement()))
	w := uploaded(t, f)

	_, err := w.StartOneByOne()
	require.NoError(t, err)
	_, err = w.Skip()
	require.NoError(t, err)

	state, err := w.Back()
	require.NoError(t, err)
	assert.Equal(t, StateReview, state)
	assert.Equal(t, 1, w.View().ReviewedCount)
}

func TestActionsOutsideTheirState(t *testing.T) {
	f := newFixture(t, staticParser(statement()))
	w := f.registry.Start("u1")

	tests := []struct {
		name string
		run  func() error
	}{
		{"save in upload", func() error { _, err := w.Save(); return err }},
		{"toggle in upload", func() error { _, err := w.Toggle("x"); return err }},
		{"commit in upload", func() error { _, err := w.Commit(context.Background()); return err }},
		{"back in upload", func() error { _, err := w.Back(); return err }},
		{"current in upload", func() error { _, err := w.Current(); return err }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, domain.IsKind(tt.run(), domain.KindInvalidState))
		})
	}
}

func TestEditAndToggle(t *testing.T) {
	f := newFixture(t, staticParser(statement()))
	w := uploaded(t, f)
	id := w.View().Candidates[2].ID

	store := " Costco "
	amount := decimal.RequireFromString("99.99")
	c, err := w.Edit(id, Edit{Store: &store, Amount: &amount})
	require.NoError(t, err)
	assert.Equal(t, "Costco", c.Store)
	assert.True(t, amount.Equal(c.Amount))

	neg := amount.Neg()
	_, err = w.Edit(id, Edit{Amount: &neg})
	assert.True(t, domain.IsKind(err, domain.KindValidation))

	_, err = w.Edit("missing", Edit{Store: &store})
	assert.True(t, domain.IsKind(err, domain.KindNotFound))

	selected, err := w.Toggle(id)
	require.NoError(t, err)
	assert.False(t, selected)

	require.NoError(t, w.SelectAll(false))
	assert.Equal(t, 0, w.View().SelectedCount)
	require.NoError(t, w.SelectAll(true))
	assert.Equal(t, 4, w.View().SelectedCount)
}

func TestCommitSelectedSubset(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, staticParser(statement()))
	w := uploaded(t, f)

	cands := w.View().Candidates
	_, err := w.Toggle(cands[1].ID)
	require.NoError(t, err)

	v, err := w.Commit(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateComplete, v.State)
	assert.Equal(t, 3, v.Committed)

	sess, err := f.store.GetUploadSession(ctx, v.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 3, sess.TransactionCount, "count is the selected rows, not the parsed ones")
	assert.Equal(t, domain.UploadBulk, sess.UploadType)
	assert.Equal(t, day("2024-03-01"), *sess.MinTransactionDate)
	assert.Equal(t, day("2024-03-12"), *sess.MaxTransactionDate)

	txs, err := f.store.ListSessionTransactions(ctx, v.SessionID)
	require.NoError(t, err)
	assert.Len(t, txs, 3)

	assert.Equal(t, StateUpload, w.Reset())
	assert.Empty(t, w.View().Candidates)
}

func TestCommitRejectsIncompleteSelection(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, staticParser(statement()))
	w := uploaded(t, f)
	cands := w.View().Candidates

	blank := ""
	_, err := w.Edit(cands[0].ID, Edit{Category: &blank})
	require.NoError(t, err)
	_, err = w.Edit(cands[2].ID, Edit{Store: &blank})
	require.NoError(t, err)

	_, err = w.Commit(ctx)
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindValidation))
	assert.Contains(t, err.Error(), "row 1 is missing category")
	assert.Contains(t, err.Error(), "row 3 is missing store")
	assert.Equal(t, StateReview, w.State())

	list, err := f.store.ListUploadSessions(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, list)

	// Deselected rows are not checked.
	_, err = w.Toggle(cands[0].ID)
	require.NoError(t, err)
	_, err = w.Toggle(cands[2].ID)
	require.NoError(t, err)
	v, err := w.Commit(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, v.Committed)
}

func TestCommitEmptySelection(t *testing.T) {
	f := newFixture(t, staticParser(statement()))
	w := uploaded(t, f)
	require.NoError(t, w.SelectAll(false))

	_, err := w.Commit(context.Background())
	assert.True(t, domain.IsKind(err, domain.KindValidation))
	assert.Equal(t, StateReview, w.State())
}

func TestPartialCommitStaysInReview(t *testing.T) {
	f := newFixture(t, staticParser(statement()))
	f.registry.deps.Committer = &MockCommitter{CommitFunc: func(ctx context.Context, userID string, txs []*domain.Transaction) (*pipeline.CommitResult, error) {
		return nil, domain.NewPartialCommitError("sess-1", errors.New("patch failed"))
	}}
	w := uploaded(t, f)

	_, err := w.Commit(context.Background())
	assert.True(t, domain.IsKind(err, domain.KindPartialCommit))
	v := w.View()
	assert.Equal(t, StateReview, v.State)
	assert.Equal(t, "sess-1", v.FailedSessionID)
	assert.Equal(t, 4, v.SelectedCount)
}

func TestCommitWithPendingRepairCannotBeRetried(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, staticParser(statement()))
	calls := 0
	// Rows land but the session could not be patched or repaired.
	f.registry.deps.Committer = &MockCommitter{CommitFunc: func(ctx context.Context, userID string, txs []*domain.Transaction) (*pipeline.CommitResult, error) {
		calls++
		sess := &domain.UploadSession{UserID: userID, UploadType: domain.UploadBulk}
		if err := f.store.CreateUploadSession(ctx, sess); err != nil {
			return nil, err
		}
		for _, tx := range txs {
			tx.UploadSessionID = sess.ID
			tx.IsBulkUpload = true
		}
		if err := f.store.BulkCreateTransactions(ctx, userID, txs); err != nil {
			return nil, err
		}
		return &pipeline.CommitResult{Session: sess, Committed: len(txs), PendingRepair: true}, nil
	}}
	w := uploaded(t, f)

	v, err := w.Commit(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateComplete, v.State)
	assert.Equal(t, 4, v.Committed)
	assert.Equal(t, v.SessionID, v.FailedSessionID)

	_, err = w.Commit(ctx)
	assert.True(t, domain.IsKind(err, domain.KindInvalidState))
	assert.Equal(t, 1, calls)

	list, err := f.store.ListUploadSessions(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	txs, err := f.store.ListSessionTransactions(ctx, list[0].ID)
	require.NoError(t, err)
	assert.Len(t, txs, 4)
}

func TestRegistry(t *testing.T) {
	f := newFixture(t, staticParser(statement()))
	w := f.registry.Start("u1")
	other := f.registry.Start("u2")

	got, err := f.registry.Get("u1", w.ID())
	require.NoError(t, err)
	assert.Same(t, w, got)

	_, err = f.registry.Get("u1", other.ID())
	assert.True(t, domain.IsKind(err, domain.KindNotFound))

	assert.Len(t, f.registry.List("u1"), 1)

	require.NoError(t, f.registry.Discard("u1", w.ID()))
	_, err = f.registry.Get("u1", w.ID())
	assert.Error(t, err)

	assert.Equal(t, 1, f.registry.Prune(time.Now().Add(time.Minute)))
	assert.Empty(t, f.registry.List("u2"))
}
