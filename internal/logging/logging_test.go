package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func fixedNow() time.Time {
	return time.Date(2025, 4, 22, 15, 23, 56, 0, time.UTC)
}

func TestNew_WritesConsoleAndRunFile(t *testing.T) {
	dir := t.TempDir()
	var console bytes.Buffer

	l, err := New(Opts{Dir: dir, Console: &console, Now: fixedNow})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	wantPath := filepath.Join(dir, "run-2025-04-22-15-23-56.log")
	if l.Path != wantPath {
		t.Errorf("Path = %q, want %q", l.Path, wantPath)
	}

	e := l.Component("batch")
	e.WithField("file", "src/a.js").Info("starting batch 1")
	Success(e, "migrated %s", "src/a.js")
	e.Warn("status update failed")
	e.Error("rollback failed")
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	out := console.String()
	for _, want := range []string{"[INFO]", "[SUCCESS]", "[WARNING]", "[ERROR]", "starting batch 1", "file=src/a.js"} {
		if !strings.Contains(out, want) {
			t.Errorf("console output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "component=") {
		t.Errorf("console output should hide component field:\n%s", out)
	}

	data, err := os.ReadFile(wantPath)
	if err != nil {
		t.Fatalf("read run log: %v", err)
	}
	logText := string(data)
	for _, want := range []string{"level=info", "level=warning", "level=error", "outcome=success", "component=batch", `msg="migrated src/a.js"`} {
		if !strings.Contains(logText, want) {
			t.Errorf("run log missing %q:\n%s", want, logText)
		}
	}
}

func TestNew_NoDir(t *testing.T) {
	var console bytes.Buffer
	l, err := New(Opts{Console: &console})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if l.Path != "" {
		t.Errorf("Path = %q, want empty", l.Path)
	}
	l.Info("hello")
	if err := l.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if !strings.Contains(console.String(), "hello") {
		t.Errorf("console = %q, want hello", console.String())
	}
}

func TestNew_DebugLevel(t *testing.T) {
	var console bytes.Buffer
	l, _ := New(Opts{Console: &console})
	l.Debug("hidden")
	if strings.Contains(console.String(), "hidden") {
		t.Error("debug line written at info level")
	}

	console.Reset()
	l, _ = New(Opts{Console: &console, Debug: true})
	l.Debug("shown")
	if !strings.Contains(console.String(), "[DEBUG]") {
		t.Errorf("console = %q, want debug badge", console.String())
	}
}

func TestDiscard(t *testing.T) {
	e := Discard()
	e.Info("nothing")
	Success(e, "still nothing")
}
