// Package history persists migration runs and per-file results.
package history

import (
	"errors"
	"fmt"
	"time"

	"github.com/zulandar/humpyard/internal/batch"
	"github.com/zulandar/humpyard/internal/models"
	"gorm.io/gorm"
)

// Run statuses.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusStopped   = "stopped"
	StatusFailed    = "failed"
)

// ErrRunNotFound is returned by GetRun for an unknown run ID.
var ErrRunNotFound = errors.New("history: run not found")

// StartOpts describes a run being started.
type StartOpts struct {
	Root        string
	BatchSize   int
	AutoConfirm bool
	Planned     int
	LogPath     string
}

// Recorder writes results for a single run. It satisfies batch.Recorder.
type Recorder struct {
	db  *gorm.DB
	Run *models.MigrationRun
	now func() time.Time
}

// Start inserts a running MigrationRun and returns a Recorder for it.
func Start(db *gorm.DB, opts StartOpts) (*Recorder, error) {
	run := &models.MigrationRun{
		Root:        opts.Root,
		Status:      StatusRunning,
		BatchSize:   opts.BatchSize,
		AutoConfirm: opts.AutoConfirm,
		Planned:     opts.Planned,
		LogPath:     opts.LogPath,
		StartedAt:   time.Now(),
	}
	if err := db.Create(run).Error; err != nil {
		return nil, fmt.Errorf("history: create run: %w", err)
	}
	return &Recorder{db: db, Run: run, now: time.Now}, nil
}

// RecordResult implements batch.Recorder.
func (r *Recorder) RecordResult(batchNumber int, res batch.Result) error {
	row := models.FileResult{
		RunID:      r.Run.ID,
		Batch:      batchNumber,
		Path:       res.Path,
		Priority:   res.Priority.String(),
		Outcome:    string(res.Outcome),
		State:      string(res.State),
		BackupPath: res.BackupPath,
		DurationMs: res.Duration.Milliseconds(),
		CreatedAt:  r.now(),
	}
	if res.Err != nil {
		row.Error = res.Err.Error()
	}
	if err := r.db.Create(&row).Error; err != nil {
		return fmt.Errorf("history: record %s: %w", res.Path, err)
	}
	return nil
}

// Finish stores the report totals and final status. runErr is the error Run
// returned, if any.
func (r *Recorder) Finish(report *batch.Report, runErr error) error {
	finished := r.now()
	updates := map[string]interface{}{
		"finished_at": &finished,
		"status":      FinalStatus(report, runErr),
	}
	if report != nil {
		updates["batches"] = report.Batches
		updates["succeeded"] = report.Succeeded
		updates["failed"] = report.Failed
	}
	if runErr != nil {
		updates["error"] = runErr.Error()
	}
	if err := r.db.Model(r.Run).Updates(updates).Error; err != nil {
		return fmt.Errorf("history: finish run %d: %w", r.Run.ID, err)
	}
	return nil
}

// FinalStatus maps a report and run error to a run status.
func FinalStatus(report *batch.Report, runErr error) string {
	switch {
	case runErr != nil && (report == nil || !report.Stopped):
		return StatusFailed
	case report != nil && report.Stopped:
		return StatusStopped
	}
	return StatusCompleted
}

// ListRuns returns the most recent runs, newest first.
func ListRuns(db *gorm.DB, limit int) ([]models.MigrationRun, error) {
	if limit <= 0 {
		limit = 20
	}
	var runs []models.MigrationRun
	if err := db.Order("id DESC").Limit(limit).Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("history: list runs: %w", err)
	}
	return runs, nil
}

// GetRun loads one run with its file results in processing order.
func GetRun(db *gorm.DB, id uint) (*models.MigrationRun, error) {
	var run models.MigrationRun
	err := db.Preload("Results", func(tx *gorm.DB) *gorm.DB {
		return tx.Order("id ASC")
	}).First(&run, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %d", ErrRunNotFound, id)
		}
		return nil, fmt.Errorf("history: get run %d: %w", id, err)
	}
	return &run, nil
}

// FileHistory returns every recorded result for path, newest first.
func FileHistory(db *gorm.DB, path string) ([]models.FileResult, error) {
	var rows []models.FileResult
	if err := db.Where("path = ?", path).Order("id DESC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("history: file history %s: %w", path, err)
	}
	return rows, nil
}
