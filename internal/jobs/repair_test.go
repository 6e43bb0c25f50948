package jobs

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/dvloznov/finance-ledger/internal/sessions"
	"github.com/rs/zerolog"
)

// MockRepairer is a mock implementation of Repairer
type MockRepairer struct {
	RepairFunc func(ctx context.Context, sessionID string) (sessions.RepairResult, error)
	SweepFunc  func(ctx context.Context, sessionID string) (sessions.RepairResult, error)
}

func (m *MockRepairer) Repair(ctx context.Context, sessionID string) (sessions.RepairResult, error) {
	if m.RepairFunc != nil {
		return m.RepairFunc(ctx, sessionID)
	}
	return sessions.RepairResult{}, errors.New("Repair not expected")
}

func (m *MockRepairer) Sweep(ctx context.Context, sessionID string) (sessions.RepairResult, error) {
	if m.SweepFunc != nil {
		return m.SweepFunc(ctx, sessionID)
	}
	return sessions.RepairResult{}, errors.New("Sweep not expected")
}

// MockPublisher records published jobs
type MockPublisher struct {
	published []*RepairSessionJob
	err       error
}

func (m *MockPublisher) PublishRepairSession(ctx context.Context, job *RepairSessionJob) error {
	if m.err != nil {
		return m.err
	}
	m.published = append(m.published, job)
	return nil
}

func (m *MockPublisher) Close() error { return nil }

type otherJob struct{}

func (otherJob) GetID() string        { return "x" }
func (otherJob) GetType() JobType     { return "other" }
func (otherJob) GetStatus() JobStatus { return JobStatusPending }

func result(action sessions.RepairAction) func(ctx context.Context, sessionID string) (sessions.RepairResult, error) {
	return func(ctx context.Context, sessionID string) (sessions.RepairResult, error) {
		return sessions.RepairResult{SessionID: sessionID, Action: action}, nil
	}
}

func TestRepairHandler(t *testing.T) {
	tests := []struct {
		name        string
		repairer    *MockRepairer
		job         Job
		wantErr     bool
		wantOutcome string
	}{
		{
			name:        "records outcome",
			repairer:    &MockRepairer{RepairFunc: result(sessions.RepairDeleted)},
			job:         &RepairSessionJob{JobID: "j1", SessionID: "s1"},
			wantOutcome: "deleted",
		},
		{
			name:        "sweep job keeps recent empty session",
			repairer:    &MockRepairer{SweepFunc: result(sessions.RepairKept)},
			job:         &RepairSessionJob{JobID: "j1", SessionID: "s1", Sweep: true},
			wantOutcome: "kept",
		},
		{
			name: "repair failure is retried",
			repairer: &MockRepairer{
				RepairFunc: func(ctx context.Context, sessionID string) (sessions.RepairResult, error) {
					return sessions.RepairResult{}, errors.New("timeout")
				},
			},
			job:     &RepairSessionJob{JobID: "j1", SessionID: "s1"},
			wantErr: true,
		},
		{
			name:     "unknown job type",
			repairer: &MockRepairer{},
			job:      otherJob{},
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := RepairHandler(tt.repairer, zerolog.Nop())
			err := h(context.Background(), tt.job)
			if tt.wantErr {
				if err == nil {
					t.Fatal("Expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if got := tt.job.(*RepairSessionJob).Outcome; got != tt.wantOutcome {
				t.Errorf("Expected outcome %q, got %q", tt.wantOutcome, got)
			}
		})
	}
}

func TestRepairPublisher(t *testing.T) {
	pub := &MockPublisher{}
	rp := NewRepairPublisher(pub, 5)
	if err := rp.PublishRepair(context.Background(), "u1", "s1"); err != nil {
		t.Fatalf("PublishRepair failed: %v", err)
	}
	if err := rp.PublishSweep(context.Background(), "u1", "s2"); err != nil {
		t.Fatalf("PublishSweep failed: %v", err)
	}
	if len(pub.published) != 2 {
		t.Fatalf("Expected 2 published jobs, got %d", len(pub.published))
	}

	first, second := pub.published[0], pub.published[1]
	if first.UserID != "u1" || first.SessionID != "s1" || first.MaxRetries != 5 {
		t.Errorf("Unexpected repair job: %+v", first)
	}
	if first.Sweep {
		t.Error("Expected direct repair job, got sweep")
	}
	if !second.Sweep || second.SessionID != "s2" || second.MaxRetries != 5 {
		t.Errorf("Unexpected sweep job: %+v", second)
	}

	pub.err = errors.New("queue is closed")
	err := rp.PublishRepair(context.Background(), "u1", "s3")
	if err == nil || !strings.Contains(err.Error(), "queue is closed") {
		t.Errorf("Expected queue error, got %v", err)
	}
}
