package cron

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"payportal/internal/config"
	"payportal/internal/models"
)

const (
	jobReconcile = "reconcile"
	jobExpire    = "expire"

	// a run still marked running after this long is assumed crashed
	runLease = 10 * time.Minute
)

// Reconciler settles processing transactions against their providers.
type Reconciler interface {
	ReconcileStale(ctx context.Context, olderThan time.Time, limit int) (checked, settled int, err error)
	ExpireAbandoned(ctx context.Context, olderThan time.Time, limit int) (int, error)
}

// RunRecorder persists job executions so overlapping instances skip a run.
type RunRecorder interface {
	HasActiveKind(ctx context.Context, kind string, since time.Time) (bool, error)
	Start(ctx context.Context, kind string) (*models.CronRun, error)
	Finalize(ctx context.Context, id uint, status string, checked, settled int, lastError string) error
}

// Scheduler manages the reconciliation cron jobs.
type Scheduler struct {
	cron       *cron.Cron
	cfg        config.ReconcileConfig
	reconciler Reconciler
	runs       RunRecorder
	logger     *zap.Logger
	now        func() time.Time
}

// New creates a new cron scheduler. runs may be nil.
func New(cfg config.ReconcileConfig, reconciler Reconciler, runs RunRecorder, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		cron:       cron.New(cron.WithSeconds()),
		cfg:        cfg,
		reconciler: reconciler,
		runs:       runs,
		logger:     logger,
		now:        time.Now,
	}
}

// Start registers and starts all cron jobs.
func (s *Scheduler) Start() error {
	s.logger.Info("Starting cron scheduler...")

	// Requery stale processing transactions - every minute
	if _, err := s.cron.AddFunc("0 * * * * *", func() {
		s.logger.Debug("Running: reconcile processing transactions")
		s.reconcileProcessing()
	}); err != nil {
		return err
	}

	// Expire abandoned transactions - every hour
	if _, err := s.cron.AddFunc("0 0 * * * *", func() {
		s.logger.Debug("Running: expire abandoned transactions")
		s.expireAbandoned()
	}); err != nil {
		return err
	}

	s.cron.Start()
	s.logger.Info("Cron scheduler started")
	return nil
}

// Stop gracefully stops the cron scheduler.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

func (s *Scheduler) reconcileProcessing() {
	defer s.recoverFromPanic(jobReconcile)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Second)
	defer cancel()

	s.track(ctx, jobReconcile, func(ctx context.Context) (int, int, error) {
		return s.reconciler.ReconcileStale(ctx, s.now().Add(-s.cfg.After), s.cfg.BatchSize)
	})
}

func (s *Scheduler) expireAbandoned() {
	defer s.recoverFromPanic(jobExpire)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	s.track(ctx, jobExpire, func(ctx context.Context) (int, int, error) {
		expired, err := s.reconciler.ExpireAbandoned(ctx, s.now().Add(-s.cfg.ExpireAfter), s.cfg.BatchSize)
		return expired, expired, err
	})
}

// track runs job once, skipping it when another instance holds the run.
func (s *Scheduler) track(ctx context.Context, kind string, job func(context.Context) (int, int, error)) {
	var run *models.CronRun
	if s.runs != nil {
		active, err := s.runs.HasActiveKind(ctx, kind, s.now().Add(-runLease))
		if err != nil {
			s.logger.Warn("Failed to check active cron runs", zap.String("job", kind), zap.Error(err))
		} else if active {
			s.logger.Debug("Skipping cron job, another run is active", zap.String("job", kind))
			return
		}
		if run, err = s.runs.Start(ctx, kind); err != nil {
			s.logger.Warn("Failed to record cron run", zap.String("job", kind), zap.Error(err))
		}
	}

	checked, settled, err := job(ctx)

	status, lastError := models.CronRunDone, ""
	if err != nil {
		status, lastError = models.CronRunFailed, err.Error()
		s.logger.Error("Cron job failed", zap.String("job", kind), zap.Error(err))
	} else if checked > 0 {
		s.logger.Info("Cron job finished",
			zap.String("job", kind),
			zap.Int("checked", checked),
			zap.Int("settled", settled),
		)
	}

	if run != nil {
		// the job context may be spent; the bookkeeping gets its own
		fctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if ferr := s.runs.Finalize(fctx, run.ID, status, checked, settled, lastError); ferr != nil {
			s.logger.Warn("Failed to finalize cron run", zap.String("job", kind), zap.Error(ferr))
		}
	}
}

func (s *Scheduler) recoverFromPanic(jobName string) {
	if r := recover(); r != nil {
		s.logger.Error("Cron job panicked", zap.String("job", jobName), zap.Any("error", r))
	}
}
