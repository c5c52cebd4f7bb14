package batch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/zulandar/humpyard/internal/logging"
	"github.com/zulandar/humpyard/internal/priority"
	"github.com/zulandar/humpyard/internal/scan"
)

const (
	migratedMarker  = "// @atomic"
	candidateMarker = "from 'firebase/"
)

type harness struct {
	fs         afero.Fs
	classifier *scan.Classifier
	applied    []string
	updates    int
	confirms   []int
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	fs := afero.NewMemMapFs()
	src, err := scan.NewSource(fs, 0)
	if err != nil {
		t.Fatalf("NewSource: %v", err)
	}
	c, err := scan.NewClassifier(src, scan.Options{
		Root:             "/app",
		Extensions:       []string{".js"},
		MigratedMarkers:  []string{migratedMarker},
		CandidateMarkers: []string{candidateMarker},
	}, logging.Discard())
	if err != nil {
		t.Fatalf("NewClassifier: %v", err)
	}
	return &harness{fs: fs, classifier: c}
}

// migrate rewrites the file to carry the migrated marker.
func (h *harness) migrate(ctx context.Context, path string) error {
	h.applied = append(h.applied, path)
	data, err := afero.ReadFile(h.fs, path)
	if err != nil {
		return err
	}
	out := strings.ReplaceAll(string(data), candidateMarker, "from '../atomic/")
	return afero.WriteFile(h.fs, path, []byte(migratedMarker+"\n"+out), 0644)
}

func (h *harness) Update(ctx context.Context) error {
	h.updates++
	return nil
}

func (h *harness) runner(t *testing.T, action Action, size int, auto bool) *Runner {
	t.Helper()
	r, err := NewRunner(Opts{
		Fs:          h.fs,
		Action:      action,
		Verifier:    h.classifier,
		Status:      h,
		BatchSize:   size,
		AutoConfirm: auto,
		Confirm: ConfirmFunc(func(ctx context.Context, next Batch, remaining int) (bool, error) {
			h.confirms = append(h.confirms, next.Number)
			return true, nil
		}),
	})
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	return r
}

func (h *harness) classifyAndOrder(t *testing.T) []scan.FileRecord {
	t.Helper()
	res, err := h.classifier.Classify(context.Background())
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	p := priority.New([]string{"Service"}, []string{"components/"})
	return p.Order(res.Candidates, h.classifier.Source())
}

func backups(t *testing.T, fs afero.Fs) []string {
	t.Helper()
	nested, _ := afero.Glob(fs, "/app/*/*.bak.*")
	top, _ := afero.Glob(fs, "/app/*.bak.*")
	return append(nested, top...)
}

// seedTwelve creates 3 High, 4 Medium and 5 Low candidates.
func seedTwelve(t *testing.T, fs afero.Fs) {
	t.Helper()
	for i := 0; i < 5; i++ {
		mustWrite(t, fs, fmt.Sprintf("/app/lib/l%d.js", i), "import a "+candidateMarker+"app'")
	}
	for i := 0; i < 4; i++ {
		mustWrite(t, fs, fmt.Sprintf("/app/components/m%d.js", i), "import a "+candidateMarker+"app'")
	}
	for i := 0; i < 3; i++ {
		mustWrite(t, fs, fmt.Sprintf("/app/services/h%d.js", i), "class UserService {}\nimport a "+candidateMarker+"app'")
	}
}

func TestRun_TwelveFilesInThreeBatches(t *testing.T) {
	h := newHarness(t)
	seedTwelve(t, h.fs)
	files := h.classifyAndOrder(t)
	if len(files) != 12 {
		t.Fatalf("candidates = %d, want 12", len(files))
	}

	r := h.runner(t, ActionFunc(h.migrate), 5, false)
	report, err := r.Run(context.Background(), files)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if report.Planned != 3 || report.Batches != 3 {
		t.Errorf("Planned/Batches = %d/%d, want 3/3", report.Planned, report.Batches)
	}
	if report.Succeeded != 12 || report.Failed != 0 {
		t.Errorf("Succeeded/Failed = %d/%d, want 12/0", report.Succeeded, report.Failed)
	}
	if h.updates != 3 {
		t.Errorf("status updates = %d, want 3", h.updates)
	}
	if fmt.Sprint(h.confirms) != "[2 3]" {
		t.Errorf("confirms = %v, want [2 3]", h.confirms)
	}

	// Processing order: 3 High, then 4 Medium, then 5 Low.
	for i, path := range h.applied {
		var want string
		switch {
		case i < 3:
			want = "/app/services/"
		case i < 7:
			want = "/app/components/"
		default:
			want = "/app/lib/"
		}
		if !strings.HasPrefix(path, want) {
			t.Errorf("applied[%d] = %q, want prefix %q", i, path, want)
		}
	}

	after, err := h.classifier.Classify(context.Background())
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if len(after.Migrated) != 12 || len(after.Candidates) != 0 {
		t.Errorf("after run: migrated=%d candidates=%d, want 12/0", len(after.Migrated), len(after.Candidates))
	}
	if b := backups(t, h.fs); len(b) != 0 {
		t.Errorf("backups left on disk: %v", b)
	}
}

func TestRun_NoOpActionRollsBack(t *testing.T) {
	h := newHarness(t)
	original := "import a " + candidateMarker + "app'\n"
	mustWrite(t, h.fs, "/app/a.js", original)
	files := h.classifyAndOrder(t)

	noop := ActionFunc(func(ctx context.Context, path string) error { return nil })
	report, err := h.runner(t, noop, 5, true).Run(context.Background(), files)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Failed != 1 {
		t.Fatalf("Failed = %d, want 1", report.Failed)
	}
	res := report.Results[0]
	if res.Outcome != Failed || res.State != StateFailedRolledBack {
		t.Errorf("result = %s/%s, want failed/failed_rolled_back", res.Outcome, res.State)
	}
	if !strings.Contains(res.Err.Error(), "marker not found") {
		t.Errorf("Err = %v, want marker not found", res.Err)
	}
	if got := mustRead(t, h.fs, "/app/a.js"); got != original {
		t.Errorf("content = %q, want %q", got, original)
	}
	if b := backups(t, h.fs); len(b) != 0 {
		t.Errorf("backups left on disk: %v", b)
	}

	again, _ := h.classifier.Classify(context.Background())
	if len(again.Candidates) != 1 || again.Candidates[0].Path != "/app/a.js" {
		t.Errorf("next scan candidates = %v, want [/app/a.js]", scan.Paths(again.Candidates))
	}
}

func TestRun_ActionErrorRestoresPartialWrite(t *testing.T) {
	h := newHarness(t)
	original := "import a " + candidateMarker + "app'\n"
	mustWrite(t, h.fs, "/app/a.js", original)
	mustWrite(t, h.fs, "/app/b.js", original)
	files := h.classifyAndOrder(t)

	action := ActionFunc(func(ctx context.Context, path string) error {
		if strings.HasSuffix(path, "a.js") {
			// Writes the marker but exits non-zero: still a failure.
			_ = afero.WriteFile(h.fs, path, []byte(migratedMarker), 0644)
			return errors.New("exit status 1")
		}
		return h.migrate(ctx, path)
	})
	report, err := h.runner(t, action, 1, true).Run(context.Background(), files)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Succeeded != 1 || report.Failed != 1 {
		t.Errorf("Succeeded/Failed = %d/%d, want 1/1", report.Succeeded, report.Failed)
	}
	if got := mustRead(t, h.fs, "/app/a.js"); got != original {
		t.Errorf("a.js = %q, want original", got)
	}
	if got := mustRead(t, h.fs, "/app/b.js"); !strings.HasPrefix(got, migratedMarker) {
		t.Errorf("b.js = %q, want migrated", got)
	}
	if h.updates != 2 {
		t.Errorf("status updates = %d, want 2", h.updates)
	}
	if len(h.confirms) != 0 {
		t.Errorf("auto-confirm asked for confirmation %v", h.confirms)
	}
}

func TestRun_ActionTimeoutRollsBack(t *testing.T) {
	h := newHarness(t)
	original := "import a " + candidateMarker + "app'\n"
	mustWrite(t, h.fs, "/app/slow.js", original)
	files := h.classifyAndOrder(t)

	action := ActionFunc(func(ctx context.Context, path string) error {
		_ = afero.WriteFile(h.fs, path, []byte(migratedMarker+"\nhalf written"), 0644)
		<-ctx.Done()
		return ctx.Err()
	})
	r, err := NewRunner(Opts{
		Fs:            h.fs,
		Action:        action,
		Verifier:      h.classifier,
		BatchSize:     1,
		AutoConfirm:   true,
		ActionTimeout: 50 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}

	report, err := r.Run(context.Background(), files)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(report.Results) != 1 {
		t.Fatalf("results = %d, want 1", len(report.Results))
	}
	res := report.Results[0]
	if res.Outcome != Failed {
		t.Errorf("Outcome = %s, want %s", res.Outcome, Failed)
	}
	if res.State != StateFailedRolledBack {
		t.Errorf("State = %s, want %s", res.State, StateFailedRolledBack)
	}
	if !errors.Is(res.Err, context.DeadlineExceeded) {
		t.Errorf("Err = %v, want context.DeadlineExceeded", res.Err)
	}
	if got := mustRead(t, h.fs, "/app/slow.js"); got != original {
		t.Errorf("slow.js = %q, want original", got)
	}
	if b := backups(t, h.fs); len(b) != 0 {
		t.Errorf("backups left on disk: %v", b)
	}
}

func TestRun_FailedRollbackDropsCachedContent(t *testing.T) {
	h := newHarness(t)
	mustWrite(t, h.fs, "/app/a.js", "import a "+candidateMarker+"app'\n")
	files := h.classifyAndOrder(t)

	// Writes the marker, then loses the backup so the restore cannot happen.
	action := ActionFunc(func(ctx context.Context, path string) error {
		_ = afero.WriteFile(h.fs, path, []byte(migratedMarker+"\npartial"), 0644)
		baks, _ := afero.Glob(h.fs, path+".bak.*")
		for _, b := range baks {
			_ = h.fs.Remove(b)
		}
		return errors.New("exit status 2")
	})
	report, err := h.runner(t, action, 1, true).Run(context.Background(), files)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	res := report.Results[0]
	if res.Outcome != Failed || res.State != StateAttempted {
		t.Errorf("Outcome/State = %s/%s, want failed/attempted", res.Outcome, res.State)
	}
	if res.BackupPath == "" {
		t.Error("BackupPath should be reported when rollback fails")
	}

	again, err := h.classifier.Classify(context.Background())
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if len(again.Migrated) != 1 || len(again.Candidates) != 0 {
		t.Errorf("classification after failed rollback = migrated %v, candidates %v; want the on-disk content",
			scan.Paths(again.Migrated), scan.Paths(again.Candidates))
	}
}

func TestRun_OperatorStops(t *testing.T) {
	h := newHarness(t)
	seedTwelve(t, h.fs)
	files := h.classifyAndOrder(t)

	r, err := NewRunner(Opts{
		Fs:        h.fs,
		Action:    ActionFunc(h.migrate),
		Verifier:  h.classifier,
		BatchSize: 5,
		Confirm: ConfirmFunc(func(ctx context.Context, next Batch, remaining int) (bool, error) {
			if remaining != 2 {
				t.Errorf("remaining = %d, want 2", remaining)
			}
			return false, nil
		}),
	})
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	report, err := r.Run(context.Background(), files)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !report.Stopped {
		t.Error("Stopped = false, want true")
	}
	if report.Batches != 1 || report.Succeeded != 5 || report.Remaining() != 7 {
		t.Errorf("Batches=%d Succeeded=%d Remaining=%d, want 1/5/7", report.Batches, report.Succeeded, report.Remaining())
	}
}

type failingStatus struct{ calls int }

func (f *failingStatus) Update(ctx context.Context) error {
	f.calls++
	return errors.New("status script missing")
}

func TestRun_StatusFailureDoesNotStop(t *testing.T) {
	h := newHarness(t)
	seedTwelve(t, h.fs)
	files := h.classifyAndOrder(t)
	st := &failingStatus{}

	r, _ := NewRunner(Opts{
		Fs: h.fs, Action: ActionFunc(h.migrate), Verifier: h.classifier,
		Status: st, BatchSize: 4, AutoConfirm: true,
	})
	report, err := r.Run(context.Background(), files)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if st.calls != 3 {
		t.Errorf("status calls = %d, want 3", st.calls)
	}
	if report.Succeeded != 12 {
		t.Errorf("Succeeded = %d, want 12", report.Succeeded)
	}
}

func TestRun_CancelledMidRun(t *testing.T) {
	h := newHarness(t)
	seedTwelve(t, h.fs)
	files := h.classifyAndOrder(t)

	ctx, cancel := context.WithCancel(context.Background())
	n := 0
	action := ActionFunc(func(c context.Context, path string) error {
		n++
		if n == 2 {
			cancel()
			return c.Err()
		}
		return h.migrate(c, path)
	})
	r, _ := NewRunner(Opts{Fs: h.fs, Action: action, Verifier: h.classifier, BatchSize: 5, AutoConfirm: true})
	report, err := r.Run(ctx, files)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if !report.Stopped || len(report.Results) != 2 {
		t.Errorf("Stopped=%v results=%d, want true/2", report.Stopped, len(report.Results))
	}
	if report.Results[1].State != StateFailedRolledBack {
		t.Errorf("cancelled file state = %s, want failed_rolled_back", report.Results[1].State)
	}
	if b := backups(t, h.fs); len(b) != 0 {
		t.Errorf("backups left on disk: %v", b)
	}
}

type memRecorder struct {
	mu      sync.Mutex
	batches []int
}

func (m *memRecorder) RecordResult(batchNumber int, res Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches = append(m.batches, batchNumber)
	return nil
}

func TestRun_RecordsEveryResult(t *testing.T) {
	h := newHarness(t)
	seedTwelve(t, h.fs)
	files := h.classifyAndOrder(t)
	rec := &memRecorder{}

	r, _ := NewRunner(Opts{Fs: h.fs, Action: ActionFunc(h.migrate), Verifier: h.classifier, Recorder: rec, BatchSize: 5, AutoConfirm: true})
	if _, err := r.Run(context.Background(), files); err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := "[1 1 1 1 1 2 2 2 2 2 3 3]"
	if fmt.Sprint(rec.batches) != want {
		t.Errorf("recorded batches = %v, want %s", rec.batches, want)
	}
}

func TestNewRunner_Validation(t *testing.T) {
	h := newHarness(t)
	act := ActionFunc(h.migrate)
	tests := []struct {
		name string
		opts Opts
		want string
	}{
		{"no fs", Opts{Action: act, Verifier: h.classifier, BatchSize: 1, AutoConfirm: true}, "fs is required"},
		{"no action", Opts{Fs: h.fs, Verifier: h.classifier, BatchSize: 1, AutoConfirm: true}, "action is required"},
		{"no verifier", Opts{Fs: h.fs, Action: act, BatchSize: 1, AutoConfirm: true}, "verifier is required"},
		{"zero size", Opts{Fs: h.fs, Action: act, Verifier: h.classifier, AutoConfirm: true}, "size must be positive"},
		{"no confirmer", Opts{Fs: h.fs, Action: act, Verifier: h.classifier, BatchSize: 1}, "confirmer is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRunner(tt.opts)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want to contain %q", err, tt.want)
			}
		})
	}
}
