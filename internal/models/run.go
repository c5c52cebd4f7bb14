package models

import "time"

// MigrationRun is one invocation of `hy run`.
type MigrationRun struct {
	ID          uint   `gorm:"primaryKey;autoIncrement"`
	Root        string `gorm:"size:512;index"`
	Status      string `gorm:"size:16;default:running;index"` // running, completed, stopped, failed
	BatchSize   int
	AutoConfirm bool
	Planned     int // files in the plan
	Batches     int // batches started
	Succeeded   int
	Failed      int
	LogPath     string `gorm:"size:512"`
	Error       string `gorm:"type:text"`
	StartedAt   time.Time
	FinishedAt  *time.Time

	Results []FileResult `gorm:"foreignKey:RunID"`
}

// FileResult is the terminal outcome of one file in a run.
type FileResult struct {
	ID         uint   `gorm:"primaryKey;autoIncrement"`
	RunID      uint   `gorm:"index"`
	Batch      int
	Path       string `gorm:"size:512;index"`
	Priority   string `gorm:"size:8"`
	Outcome    string `gorm:"size:16;index"` // success, failed
	State      string `gorm:"size:24"`
	BackupPath string `gorm:"size:512"` // set only when a backup was left behind
	Error      string `gorm:"type:text"`
	DurationMs int64
	CreatedAt  time.Time
}
