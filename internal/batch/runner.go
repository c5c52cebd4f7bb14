// Package batch runs the migration action over prioritized files in
// fixed-size batches, backing up each file and rolling it back when the
// migrated marker does not appear.
package batch

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/zulandar/humpyard/internal/logging"
	"github.com/zulandar/humpyard/internal/scan"
)

// Action migrates a single file in place. A nil error with the migrated
// marker present afterwards counts as success.
type Action interface {
	Apply(ctx context.Context, path string) error
}

// ActionFunc adapts a function to Action.
type ActionFunc func(ctx context.Context, path string) error

// Apply implements Action.
func (f ActionFunc) Apply(ctx context.Context, path string) error { return f(ctx, path) }

// StatusUpdater refreshes external migration status between batches.
// Failures are logged and never stop the run.
type StatusUpdater interface {
	Update(ctx context.Context) error
}

// Confirmer decides whether to continue with the next batch.
type Confirmer interface {
	Confirm(ctx context.Context, next Batch, remaining int) (bool, error)
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, next Batch, remaining int) (bool, error)

// Confirm implements Confirmer.
func (f ConfirmFunc) Confirm(ctx context.Context, next Batch, remaining int) (bool, error) {
	return f(ctx, next, remaining)
}

// Verifier re-checks a file after the action ran. *scan.Classifier satisfies it.
type Verifier interface {
	HasMigratedMarker(path string) (bool, error)
	Invalidate(path string)
}

// Recorder receives every file result as soon as it is final.
type Recorder interface {
	RecordResult(batchNumber int, res Result) error
}

// Opts holds the collaborators and settings for a Runner.
type Opts struct {
	Fs            afero.Fs
	Action        Action
	Verifier      Verifier
	Status        StatusUpdater // optional
	Confirm       Confirmer     // required unless AutoConfirm
	Recorder      Recorder      // optional
	BatchSize     int
	AutoConfirm   bool
	ActionTimeout time.Duration // 0 means no limit
	Log           *logrus.Entry
	Now           func() time.Time
}

// Runner processes files strictly sequentially, one batch at a time.
type Runner struct {
	opts Opts
}

// NewRunner validates opts and returns a Runner.
func NewRunner(opts Opts) (*Runner, error) {
	if opts.Fs == nil {
		return nil, fmt.Errorf("batch: fs is required")
	}
	if opts.Action == nil {
		return nil, fmt.Errorf("batch: action is required")
	}
	if opts.Verifier == nil {
		return nil, fmt.Errorf("batch: verifier is required")
	}
	if opts.BatchSize <= 0 {
		return nil, fmt.Errorf("batch: size must be positive, got %d", opts.BatchSize)
	}
	if !opts.AutoConfirm && opts.Confirm == nil {
		return nil, fmt.Errorf("batch: confirmer is required unless auto-confirm is set")
	}
	if opts.Log == nil {
		opts.Log = logging.Discard()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Runner{opts: opts}, nil
}

// Run migrates files in order. It returns the report so far together with
// ctx.Err() when the context is cancelled; all other per-file problems are
// recorded as Failed results rather than returned.
func (r *Runner) Run(ctx context.Context, files []scan.FileRecord) (*Report, error) {
	batches, err := Partition(files, r.opts.BatchSize)
	if err != nil {
		return nil, err
	}
	log := r.opts.Log
	report := &Report{Total: len(files), Planned: len(batches)}
	log.WithFields(logrus.Fields{"files": len(files), "batches": len(batches), "batch_size": r.opts.BatchSize}).
		Info("migration plan ready")

	for i, b := range batches {
		if err := ctx.Err(); err != nil {
			report.Stopped = true
			return report, err
		}

		blog := log.WithField("batch", b.Number)
		blog.Infof("starting batch %d/%d (%d files)", b.Number, len(batches), len(b.Files))

		var ok, failed int
		for _, rec := range b.Files {
			if err := ctx.Err(); err != nil {
				report.Stopped = true
				report.Batches = b.Number
				return report, err
			}
			res := r.processFile(ctx, blog, rec)
			report.add(res)
			if res.Outcome == Success {
				ok++
			} else {
				failed++
			}
			if r.opts.Recorder != nil {
				if err := r.opts.Recorder.RecordResult(b.Number, res); err != nil {
					blog.WithError(err).WithField("file", rec.Path).Warn("record result failed")
				}
			}
		}
		report.Batches = b.Number
		blog.WithFields(logrus.Fields{"succeeded": ok, "failed": failed}).
			Infof("finished batch %d/%d", b.Number, len(batches))

		if r.opts.Status != nil {
			if err := r.opts.Status.Update(ctx); err != nil {
				blog.WithError(err).Warn("status update failed")
			}
		}

		if i == len(batches)-1 || r.opts.AutoConfirm {
			continue
		}
		next := batches[i+1]
		cont, err := r.opts.Confirm.Confirm(ctx, next, len(batches)-i-1)
		if err != nil {
			report.Stopped = true
			return report, fmt.Errorf("batch: confirm batch %d: %w", next.Number, err)
		}
		if !cont {
			report.Stopped = true
			blog.Warnf("stopped by operator before batch %d", next.Number)
			return report, nil
		}
	}
	return report, nil
}

// processFile walks one file through Pending → BackedUp → Attempted →
// {Success | FailedRolledBack}.
func (r *Runner) processFile(ctx context.Context, log *logrus.Entry, rec scan.FileRecord) (res Result) {
	flog := log.WithField("file", rec.Path)
	res = Result{Path: rec.Path, Priority: rec.Priority, State: StatePending, Outcome: Failed}
	start := r.opts.Now()
	defer func() { res.Duration = r.opts.Now().Sub(start) }()

	tx, err := Begin(r.opts.Fs, rec.Path, start)
	if err != nil {
		res.Err = err
		flog.WithError(err).Error("backup failed, skipping file")
		return res
	}
	defer func() {
		if err := tx.Close(); err != nil {
			flog.WithError(err).Error("transaction cleanup failed")
		}
	}()
	res.State = StateBackedUp
	res.BackupPath = tx.BackupPath
	flog.WithField("backup", tx.BackupPath).Debug("backup created")

	applyErr := r.apply(ctx, rec.Path)
	res.State = StateAttempted

	migrated := false
	var verifyErr error
	if applyErr == nil {
		migrated, verifyErr = r.opts.Verifier.HasMigratedMarker(rec.Path)
	}

	if applyErr == nil && verifyErr == nil && migrated {
		if err := tx.Commit(); err != nil {
			flog.WithError(err).Warn("backup cleanup failed")
			res.Err = err
		} else {
			res.BackupPath = ""
		}
		res.State = StateSuccess
		res.Outcome = Success
		logging.Success(flog, "migrated %s", rec.Path)
		return res
	}

	switch {
	case applyErr != nil:
		res.Err = fmt.Errorf("batch: migration action: %w", applyErr)
	case verifyErr != nil:
		res.Err = verifyErr
	default:
		res.Err = fmt.Errorf("batch: migrated marker not found in %s", rec.Path)
	}

	// The action may have written to disk; a failed rollback leaves that
	// content in place.
	r.opts.Verifier.Invalidate(rec.Path)
	if err := tx.Rollback(); err != nil {
		res.Err = fmt.Errorf("%v; %w", res.Err, err)
		flog.WithError(err).WithField("backup", tx.BackupPath).Error("rollback failed, backup kept")
		return res
	}
	res.BackupPath = ""
	res.State = StateFailedRolledBack
	flog.WithError(res.Err).Error("migration failed, original restored")
	return res
}

func (r *Runner) apply(ctx context.Context, path string) error {
	if r.opts.ActionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.ActionTimeout)
		defer cancel()
	}
	return r.opts.Action.Apply(ctx, path)
}
