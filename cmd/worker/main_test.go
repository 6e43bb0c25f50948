package main

import (
	"context"
	"reflect"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/finance-ledger/internal/app"
	"github.com/dvloznov/finance-ledger/internal/config"
	"github.com/dvloznov/finance-ledger/internal/domain"
	"github.com/dvloznov/finance-ledger/internal/jobs"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

func TestSplitUsers(t *testing.T) {
	if got := splitUsers(" u1, ,u2,"); !reflect.DeepEqual(got, []string{"u1", "u2"}) {
		t.Errorf("Expected [u1 u2], got %v", got)
	}
	if got := splitUsers(""); len(got) != 0 {
		t.Errorf("Expected no users, got %v", got)
	}
}

func newWorkerApp(t *testing.T, ctx context.Context) *app.App {
	t.Helper()
	cfg := config.Config{
		Storage: config.StorageConfig{Backend: config.BackendMemory},
		Jobs:    config.JobsConfig{Buffer: 8, Workers: 2},
	}
	a, err := app.New(ctx, cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("app.New failed: %v", err)
	}
	t.Cleanup(func() { _ = a.Close(context.Background()) })
	if err := a.StartWorkers(ctx); err != nil {
		t.Fatalf("StartWorkers failed: %v", err)
	}
	return a
}

func runSweep(t *testing.T, ctx context.Context, a *app.App, users []string) int {
	t.Helper()
	n, err := sweep(ctx, a, users, zerolog.Nop())
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	waitIdle(waitCtx, a)
	if !idle(ctx, a) {
		t.Fatal("Expected job queue to drain")
	}
	return n
}

func TestSweepRepairsSessions(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a := newWorkerApp(t, ctx)

	// One session whose counters were never updated and one still empty.
	stale, err := a.Ledger.Create(ctx, "u1", domain.UploadBulk)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	empty, err := a.Ledger.Create(ctx, "u1", domain.UploadBulk)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	err = a.Store.CreateTransaction(ctx, &domain.Transaction{
		UserID:          "u1",
		Type:            domain.Expense,
		Category:        "Groceries",
		Store:           "Market",
		Amount:          decimal.NewFromInt(12),
		TransactionDate: civil.Date{Year: 2024, Month: time.March, Day: 3},
		IsBulkUpload:    true,
		UploadSessionID: stale.ID,
	})
	if err != nil {
		t.Fatalf("CreateTransaction failed: %v", err)
	}

	if n := runSweep(t, ctx, a, []string{"u1", "nobody"}); n != 2 {
		t.Errorf("Expected 2 queued jobs, got %d", n)
	}

	got, err := a.Store.GetUploadSession(ctx, stale.ID)
	if err != nil {
		t.Fatalf("GetUploadSession failed: %v", err)
	}
	if got.TransactionCount != 1 {
		t.Errorf("Expected count 1, got %d", got.TransactionCount)
	}
	if got.MinTransactionDate == nil || got.MinTransactionDate.String() != "2024-03-03" {
		t.Errorf("Expected min date 2024-03-03, got %v", got.MinTransactionDate)
	}

	// The empty session is younger than the grace period, so a commit
	// may still be about to insert into it.
	if _, err := a.Store.GetUploadSession(ctx, empty.ID); err != nil {
		t.Errorf("Expected recent empty session to survive the sweep, got %v", err)
	}
	done, err := a.JobStore.ListJobs(ctx, jobs.JobFilter{Status: jobs.JobStatusCompleted})
	if err != nil {
		t.Fatalf("ListJobs failed: %v", err)
	}
	outcomes := map[string]string{}
	for _, j := range done {
		if !j.Sweep {
			t.Errorf("Expected sweep job, got %+v", j)
		}
		outcomes[j.SessionID] = j.Outcome
	}
	if outcomes[empty.ID] != "kept" {
		t.Errorf("Expected empty session outcome kept, got %q", outcomes[empty.ID])
	}
}

func TestSweepDoesNotRaceCommit(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a := newWorkerApp(t, ctx)

	// A commit has created its session but not inserted yet.
	sess, err := a.Ledger.Create(ctx, "u1", domain.UploadBulk)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	runSweep(t, ctx, a, []string{"u1"})

	rows := []*domain.Transaction{{
		UserID:          "u1",
		Type:            domain.Income,
		Category:        "Salary",
		Store:           "Employer",
		Amount:          decimal.NewFromInt(1000),
		TransactionDate: civil.Date{Year: 2024, Month: time.April, Day: 1},
		IsBulkUpload:    true,
		UploadSessionID: sess.ID,
	}}
	if err := a.Store.BulkCreateTransactions(ctx, "u1", rows); err != nil {
		t.Fatalf("BulkCreateTransactions failed: %v", err)
	}
	d := rows[0].TransactionDate
	if _, err := a.Ledger.RecordBatch(ctx, sess.ID, 1, d, d); err != nil {
		t.Fatalf("RecordBatch after sweep failed: %v", err)
	}

	got, err := a.Store.GetUploadSession(ctx, sess.ID)
	if err != nil {
		t.Fatalf("GetUploadSession failed: %v", err)
	}
	if got.TransactionCount != 1 {
		t.Errorf("Expected count 1, got %d", got.TransactionCount)
	}
}
