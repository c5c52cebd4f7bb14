package status

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/zulandar/humpyard/internal/logging"
	"github.com/zulandar/humpyard/internal/scan"
)

var statusTime = time.Date(2025, 4, 22, 15, 23, 56, 0, time.UTC)

func TestWriteRead_RoundTripAndFieldNames(t *testing.T) {
	fs := afero.NewMemMapFs()
	f := &File{LastUpdated: statusTime, MigratedFiles: []string{"a.js"}, PendingFiles: []string{"b.js", "c.js"}}

	if err := Write(fs, "/app/status/migration.json", f); err != nil {
		t.Fatalf("Write: %v", err)
	}
	raw, _ := afero.ReadFile(fs, "/app/status/migration.json")
	var generic map[string]interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		t.Fatalf("status file is not JSON: %v", err)
	}
	for _, k := range []string{"lastUpdated", "migratedFiles", "pendingFiles"} {
		if _, ok := generic[k]; !ok {
			t.Errorf("status file missing key %q: %s", k, raw)
		}
	}
	if generic["lastUpdated"] != "2025-04-22T15:23:56Z" {
		t.Errorf("lastUpdated = %v, want ISO-8601", generic["lastUpdated"])
	}
	if _, err := fs.Stat("/app/status/migration.json.tmp"); err == nil {
		t.Error("temp file left behind")
	}

	got, err := Read(fs, "/app/status/migration.json")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(got.PendingFiles) != 2 || got.MigratedFiles[0] != "a.js" {
		t.Errorf("Read = %+v", got)
	}
}

func TestWrite_FullyReplaces(t *testing.T) {
	fs := afero.NewMemMapFs()
	_ = Write(fs, "/s.json", &File{PendingFiles: []string{"a.js", "b.js", "c.js", "d.js"}})
	_ = Write(fs, "/s.json", &File{MigratedFiles: []string{"a.js"}})

	got, err := Read(fs, "/s.json")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(got.PendingFiles) != 0 || len(got.MigratedFiles) != 1 {
		t.Errorf("got %+v, want only the second document", got)
	}
}

func TestRead_Missing(t *testing.T) {
	_, err := Read(afero.NewMemMapFs(), "/nope.json")
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("error = %v, want not found", err)
	}
}

func TestProgress(t *testing.T) {
	if p := (&File{}).Progress(); p != 1 {
		t.Errorf("empty Progress = %v, want 1", p)
	}
	f := &File{MigratedFiles: []string{"a"}, PendingFiles: []string{"b", "c", "d"}}
	if p := f.Progress(); p != 0.25 {
		t.Errorf("Progress = %v, want 0.25", p)
	}
}

type errHook struct{ called bool }

func (h *errHook) Update(ctx context.Context) error {
	h.called = true
	return errors.New("hook failed")
}

func TestUpdater_Refresh(t *testing.T) {
	fs := afero.NewMemMapFs()
	_ = afero.WriteFile(fs, "/app/src/a.js", []byte("// @atomic"), 0644)
	_ = afero.WriteFile(fs, "/app/src/b.js", []byte("from 'firebase/app'"), 0644)
	src, _ := scan.NewSource(fs, 0)
	c, err := scan.NewClassifier(src, scan.Options{
		Root:             "/app",
		Extensions:       []string{".js"},
		MigratedMarkers:  []string{"// @atomic"},
		CandidateMarkers: []string{"from 'firebase/"},
	}, logging.Discard())
	if err != nil {
		t.Fatal(err)
	}

	hook := &errHook{}
	u := &Updater{
		Fs: fs, Path: "/app/migration-status.json", Classifier: c,
		Hooks: []Hook{hook}, Log: logging.Discard(),
		Now: func() time.Time { return statusTime },
	}
	f, err := u.Refresh(context.Background())
	if err == nil || !strings.Contains(err.Error(), "hook failed") {
		t.Errorf("err = %v, want hook failure", err)
	}
	if !hook.called {
		t.Error("hook not called")
	}
	if f == nil {
		t.Fatal("file should still be returned when only a hook fails")
	}
	if strings.Join(f.MigratedFiles, ",") != "src/a.js" || strings.Join(f.PendingFiles, ",") != "src/b.js" {
		t.Errorf("status = %+v", f)
	}

	onDisk, err := Read(fs, "/app/migration-status.json")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !onDisk.LastUpdated.Equal(statusTime) {
		t.Errorf("LastUpdated = %v, want %v", onDisk.LastUpdated, statusTime)
	}
}
