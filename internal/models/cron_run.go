package models

import "time"

// CronRun is one execution of a scheduled reconciliation job.
type CronRun struct {
	ID         uint       `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Kind       string     `gorm:"column:kind;size:50;index:idx_cron_runs_kind_status,priority:1" json:"kind"`
	Status     string     `gorm:"column:status;size:20;index:idx_cron_runs_kind_status,priority:2" json:"status"`
	Checked    int        `gorm:"column:checked" json:"checked"`
	Settled    int        `gorm:"column:settled" json:"settled"`
	LastError  string     `gorm:"column:last_error;type:text" json:"lastError"`
	StartedAt  time.Time  `gorm:"column:started_at" json:"startedAt"`
	FinishedAt *time.Time `gorm:"column:finished_at" json:"finishedAt"`
}

func (CronRun) TableName() string {
	return "cron_runs"
}

const (
	CronRunRunning = "running"
	CronRunDone    = "done"
	CronRunFailed  = "failed"
)
