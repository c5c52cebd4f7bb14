package batch

import (
	"time"

	"github.com/zulandar/humpyard/internal/scan"
)

// Outcome is the terminal result of one file.
type Outcome string

const (
	Success Outcome = "success"
	Failed  Outcome = "failed"
)

// State tracks a file through a migration attempt.
type State string

const (
	StatePending          State = "pending"
	StateBackedUp         State = "backed_up"
	StateAttempted        State = "attempted"
	StateSuccess          State = "success"
	StateFailedRolledBack State = "failed_rolled_back"
)

// Result is the outcome of migrating one file. BackupPath is non-empty only
// when a backup is still on disk (a failed rollback or cleanup).
type Result struct {
	Path       string
	Priority   scan.Priority
	Outcome    Outcome
	State      State
	BackupPath string
	Err        error
	Duration   time.Duration
}

// Report summarizes a run.
type Report struct {
	Total     int // files in the plan
	Planned   int // batches in the plan
	Batches   int // batches started
	Succeeded int
	Failed    int
	Stopped   bool // ended early by the operator or cancellation
	Results   []Result
}

func (r *Report) add(res Result) {
	r.Results = append(r.Results, res)
	if res.Outcome == Success {
		r.Succeeded++
	} else {
		r.Failed++
	}
}

// Remaining is the number of planned files that were never attempted.
func (r *Report) Remaining() int {
	return r.Total - len(r.Results)
}
