package inmemory

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dvloznov/finance-ledger/internal/jobs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitForStatus(t *testing.T, store *Store, jobID string, want jobs.JobStatus) *jobs.RepairSessionJob {
	t.Helper()
	var got *jobs.RepairSessionJob
	require.Eventually(t, func() bool {
		j, err := store.GetJob(context.Background(), jobID)
		if err != nil {
			return false
		}
		got = j
		return j.Status == want
	}, 2*time.Second, 5*time.Millisecond)
	return got
}

func TestQueueCompletesJob(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := NewStore()
	q := NewQueue(10, store, WithWorkers(1))
	require.NoError(t, q.Start(ctx, func(ctx context.Context, job jobs.Job) error {
		job.(*jobs.RepairSessionJob).Outcome = "patched"
		return nil
	}))
	defer q.Close()

	job := &jobs.RepairSessionJob{UserID: "u1", SessionID: "s1"}
	require.NoError(t, q.PublishRepairSession(ctx, job))
	assert.NotEmpty(t, job.JobID)
	assert.Equal(t, DefaultMaxRetries, job.MaxRetries)

	got := waitForStatus(t, store, job.JobID, jobs.JobStatusCompleted)
	assert.Equal(t, "patched", got.Outcome)
	assert.NotNil(t, got.CompletedAt)
	assert.Equal(t, 0, got.RetryCount)
}

func TestQueueRetriesThenSucceeds(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := NewStore()
	q := NewQueue(10, store, WithBackoff(time.Millisecond))
	var calls atomic.Int32
	require.NoError(t, q.Start(ctx, func(ctx context.Context, job jobs.Job) error {
		if calls.Add(1) == 1 {
			return errors.New("store unavailable")
		}
		return nil
	}))
	defer q.Close()

	job := &jobs.RepairSessionJob{UserID: "u1", SessionID: "s1"}
	require.NoError(t, q.PublishRepairSession(ctx, job))

	got := waitForStatus(t, store, job.JobID, jobs.JobStatusCompleted)
	assert.Equal(t, 1, got.RetryCount)
	assert.Empty(t, got.Error)
	assert.Equal(t, int32(2), calls.Load())
}

func TestQueueGivesUpAfterMaxRetries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := NewStore()
	q := NewQueue(10, store, WithBackoff(time.Millisecond), WithMaxRetries(2))
	require.NoError(t, q.Start(ctx, func(ctx context.Context, job jobs.Job) error {
		return errors.New("still broken")
	}))
	defer q.Close()

	job := &jobs.RepairSessionJob{UserID: "u1", SessionID: "s1"}
	require.NoError(t, q.PublishRepairSession(ctx, job))

	got := waitForStatus(t, store, job.JobID, jobs.JobStatusFailed)
	assert.Equal(t, 2, got.RetryCount)
	assert.Equal(t, "still broken", got.Error)
}

func TestQueueRejectsAfterClose(t *testing.T) {
	q := NewQueue(1, nil)
	require.NoError(t, q.Close())
	assert.Error(t, q.PublishRepairSession(context.Background(), &jobs.RepairSessionJob{}))
	assert.Error(t, q.Start(context.Background(), nil))
}

func TestStoreListJobs(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, j := range []jobs.RepairSessionJob{
		{JobID: "a", UserID: "u1", SessionID: "s1", Status: jobs.JobStatusCompleted},
		{JobID: "b", UserID: "u1", SessionID: "s2", Status: jobs.JobStatusFailed},
		{JobID: "c", UserID: "u2", SessionID: "s3", Status: jobs.JobStatusFailed},
	} {
		j.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, store.SaveJob(ctx, &j))
	}

	tests := []struct {
		name   string
		filter jobs.JobFilter
		want   []string
	}{
		{"all newest first", jobs.JobFilter{}, []string{"c", "b", "a"}},
		{"by user", jobs.JobFilter{UserID: "u1"}, []string{"b", "a"}},
		{"by status", jobs.JobFilter{Status: jobs.JobStatusFailed}, []string{"c", "b"}},
		{"by session", jobs.JobFilter{SessionID: "s1"}, []string{"a"}},
		{"paged", jobs.JobFilter{Offset: 1, Limit: 1}, []string{"b"}},
		{"offset past end", jobs.JobFilter{Offset: 5}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.ListJobs(ctx, tt.filter)
			require.NoError(t, err)
			ids := []string{}
			for _, j := range got {
				ids = append(ids, j.JobID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}

	require.NoError(t, store.UpdateJobStatus(ctx, "a", jobs.JobStatusFailed, "boom"))
	got, err := store.GetJob(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, jobs.JobStatusFailed, got.Status)
	assert.Equal(t, "boom", got.Error)

	_, err = store.GetJob(ctx, "zzz")
	assert.Error(t, err)
}
