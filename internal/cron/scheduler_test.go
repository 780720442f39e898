package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"payportal/internal/config"
	"payportal/internal/models"
)

// MockReconciler implements Reconciler for testing
type MockReconciler struct {
	ReconcileStaleFunc  func(ctx context.Context, olderThan time.Time, limit int) (int, int, error)
	ExpireAbandonedFunc func(ctx context.Context, olderThan time.Time, limit int) (int, error)
}

func (m *MockReconciler) ReconcileStale(ctx context.Context, olderThan time.Time, limit int) (int, int, error) {
	return m.ReconcileStaleFunc(ctx, olderThan, limit)
}

func (m *MockReconciler) ExpireAbandoned(ctx context.Context, olderThan time.Time, limit int) (int, error) {
	return m.ExpireAbandonedFunc(ctx, olderThan, limit)
}

// MockRunRecorder implements RunRecorder for testing
type MockRunRecorder struct {
	Active    bool
	ActiveErr error
	Started   []string
	Finalized []string
	LastError string
}

func (m *MockRunRecorder) HasActiveKind(_ context.Context, _ string, _ time.Time) (bool, error) {
	return m.Active, m.ActiveErr
}

func (m *MockRunRecorder) Start(_ context.Context, kind string) (*models.CronRun, error) {
	m.Started = append(m.Started, kind)
	return &models.CronRun{ID: uint(len(m.Started))}, nil
}

func (m *MockRunRecorder) Finalize(_ context.Context, _ uint, status string, _, _ int, lastError string) error {
	m.Finalized = append(m.Finalized, status)
	m.LastError = lastError
	return nil
}

var testNow = time.Date(2025, 1, 1, 3, 0, 0, 0, time.UTC)

func newTestScheduler(r Reconciler, runs RunRecorder) *Scheduler {
	s := New(config.ReconcileConfig{
		Enabled:     true,
		After:       2 * time.Minute,
		ExpireAfter: 24 * time.Hour,
		BatchSize:   50,
	}, r, runs, zap.NewNop())
	s.now = func() time.Time { return testNow }
	return s
}

func TestReconcileProcessing(t *testing.T) {
	var gotOlder time.Time
	var gotLimit int
	r := &MockReconciler{
		ReconcileStaleFunc: func(_ context.Context, olderThan time.Time, limit int) (int, int, error) {
			gotOlder, gotLimit = olderThan, limit
			return 3, 1, nil
		},
	}
	runs := &MockRunRecorder{}
	newTestScheduler(r, runs).reconcileProcessing()

	if !gotOlder.Equal(testNow.Add(-2*time.Minute)) || gotLimit != 50 {
		t.Errorf("unexpected window %s limit %d", gotOlder, gotLimit)
	}
	if len(runs.Started) != 1 || runs.Started[0] != jobReconcile {
		t.Errorf("expected one reconcile run, got %v", runs.Started)
	}
	if len(runs.Finalized) != 1 || runs.Finalized[0] != models.CronRunDone {
		t.Errorf("expected run to be finalized done, got %v", runs.Finalized)
	}
}

func TestExpireAbandonedRecordsFailure(t *testing.T) {
	r := &MockReconciler{
		ExpireAbandonedFunc: func(_ context.Context, olderThan time.Time, _ int) (int, error) {
			if !olderThan.Equal(testNow.Add(-24 * time.Hour)) {
				t.Errorf("unexpected cutoff %s", olderThan)
			}
			return 0, errors.New("db down")
		},
	}
	runs := &MockRunRecorder{}
	newTestScheduler(r, runs).expireAbandoned()

	if len(runs.Finalized) != 1 || runs.Finalized[0] != models.CronRunFailed || runs.LastError != "db down" {
		t.Errorf("expected failed run with error, got %v %q", runs.Finalized, runs.LastError)
	}
}

func TestTrackSkipsWhenAnotherRunIsActive(t *testing.T) {
	called := false
	r := &MockReconciler{
		ReconcileStaleFunc: func(context.Context, time.Time, int) (int, int, error) {
			called = true
			return 0, 0, nil
		},
	}
	runs := &MockRunRecorder{Active: true}
	newTestScheduler(r, runs).reconcileProcessing()

	if called || len(runs.Started) != 0 {
		t.Error("expected the job to be skipped")
	}
}

func TestTrackRunsWithoutRecorder(t *testing.T) {
	called := false
	r := &MockReconciler{
		ReconcileStaleFunc: func(context.Context, time.Time, int) (int, int, error) {
			called = true
			return 0, 0, nil
		},
	}
	newTestScheduler(r, nil).reconcileProcessing()
	if !called {
		t.Error("expected the job to run without run bookkeeping")
	}
}

func TestTrackRunsWhenActiveCheckFails(t *testing.T) {
	called := false
	r := &MockReconciler{
		ReconcileStaleFunc: func(context.Context, time.Time, int) (int, int, error) {
			called = true
			return 0, 0, nil
		},
	}
	newTestScheduler(r, &MockRunRecorder{ActiveErr: errors.New("db down")}).reconcileProcessing()
	if !called {
		t.Error("a failed lease check must not block reconciliation")
	}
}

func TestPanicIsRecovered(t *testing.T) {
	r := &MockReconciler{
		ReconcileStaleFunc: func(context.Context, time.Time, int) (int, int, error) {
			panic("boom")
		},
	}
	// must not propagate
	newTestScheduler(r, nil).reconcileProcessing()
}

func TestStartRegistersJobs(t *testing.T) {
	s := newTestScheduler(&MockReconciler{}, nil)
	if err := s.Start(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer s.Stop()
	if n := len(s.cron.Entries()); n != 2 {
		t.Errorf("expected 2 jobs, got %d", n)
	}
}
