package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"payportal/internal/models"
)

// CronRunRepository records scheduled job executions.
type CronRunRepository struct {
	db *gorm.DB
}

func NewCronRunRepository(db *gorm.DB) *CronRunRepository {
	return &CronRunRepository{db: db}
}

// HasActiveKind reports whether a run of kind started after since is still
// running. Runs older than since are treated as crashed.
func (r *CronRunRepository) HasActiveKind(ctx context.Context, kind string, since time.Time) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.CronRun{}).
		Where("kind = ? AND status = ? AND started_at > ?", kind, models.CronRunRunning, since).
		Count(&count).Error
	return count > 0, err
}

// Start records a new running job.
func (r *CronRunRepository) Start(ctx context.Context, kind string) (*models.CronRun, error) {
	run := &models.CronRun{
		Kind:      kind,
		Status:    models.CronRunRunning,
		StartedAt: time.Now(),
	}
	if err := r.db.WithContext(ctx).Create(run).Error; err != nil {
		return nil, err
	}
	return run, nil
}

// Finalize closes a run with its counters.
func (r *CronRunRepository) Finalize(ctx context.Context, id uint, status string, checked, settled int, lastError string) error {
	now := time.Now()
	return r.db.WithContext(ctx).Model(&models.CronRun{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":      status,
			"checked":     checked,
			"settled":     settled,
			"last_error":  lastError,
			"finished_at": &now,
		}).Error
}
