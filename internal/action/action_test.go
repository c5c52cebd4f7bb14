package action

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/zulandar/humpyard/internal/config"
)

func TestRewrite_AppliesRulesAndHeader(t *testing.T) {
	fs := afero.NewMemMapFs()
	src := "import { getAuth } from 'firebase/auth';\nimport { db } from 'firebase/firestore';\n"
	if err := afero.WriteFile(fs, "/a.js", []byte(src), 0600); err != nil {
		t.Fatal(err)
	}

	rw := &Rewrite{
		Fs: fs,
		Rules: []config.RewriteRule{
			{From: "from 'firebase/auth'", To: "from '../atomic/firebase/auth'"},
			{From: "from 'firebase/firestore'", To: "from '../atomic/firebase/firestore'"},
			{From: "not-present", To: "x"},
		},
		Header: "// @atomic",
	}
	if err := rw.Apply(context.Background(), "/a.js"); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	got, _ := afero.ReadFile(fs, "/a.js")
	want := "// @atomic\nimport { getAuth } from '../atomic/firebase/auth';\nimport { db } from '../atomic/firebase/firestore';\n"
	if string(got) != want {
		t.Errorf("content =\n%s\nwant\n%s", got, want)
	}
	info, _ := fs.Stat("/a.js")
	if info.Mode().Perm() != 0600 {
		t.Errorf("mode = %v, want 0600", info.Mode().Perm())
	}

	// Second apply is a no-op: header is not duplicated.
	if err := rw.Apply(context.Background(), "/a.js"); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	again, _ := afero.ReadFile(fs, "/a.js")
	if string(again) != want {
		t.Errorf("second apply changed content:\n%s", again)
	}
}

func TestRewrite_NoMatchLeavesFileUntouched(t *testing.T) {
	fs := afero.NewMemMapFs()
	_ = afero.WriteFile(fs, "/a.js", []byte("plain"), 0644)
	rw := &Rewrite{Fs: fs, Rules: []config.RewriteRule{{From: "firebase", To: "atomic"}}, Header: "// @atomic"}
	if err := rw.Apply(context.Background(), "/a.js"); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	got, _ := afero.ReadFile(fs, "/a.js")
	if string(got) != "plain" {
		t.Errorf("content = %q, want plain", got)
	}
}

func TestRewrite_MissingFile(t *testing.T) {
	rw := &Rewrite{Fs: afero.NewMemMapFs()}
	if err := rw.Apply(context.Background(), "/nope.js"); err == nil {
		t.Fatal("expected error")
	}
}

func TestCommand_BuildArgs(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"appends path", []string{"--quiet"}, "sh --quiet src/a.js"},
		{"placeholder", []string{"--file={path}", "-v"}, "sh --file=src/a.js -v"},
		{"no args", nil, "sh src/a.js"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Command{Binary: "sh", Args: tt.args, WorkDir: "/tmp"}
			cmd := c.build(context.Background(), "src/a.js")
			got := filepath.Base(cmd.Args[0]) + " " + strings.Join(cmd.Args[1:], " ")
			if got != tt.want {
				t.Errorf("args = %q, want %q", got, tt.want)
			}
			if cmd.Dir != "/tmp" {
				t.Errorf("Dir = %q, want /tmp", cmd.Dir)
			}
		})
	}
}

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "migrate.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestCommand_ApplySuccessAndFailure(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "a.js")
	if err := os.WriteFile(target, []byte("old"), 0644); err != nil {
		t.Fatal(err)
	}

	ok := &Command{Binary: writeScript(t, `echo "// @atomic" > "$1"`)}
	if err := ok.Apply(context.Background(), target); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	got, _ := os.ReadFile(target)
	if strings.TrimSpace(string(got)) != "// @atomic" {
		t.Errorf("content = %q", got)
	}

	bad := &Command{Binary: writeScript(t, "echo 'cannot parse file' >&2\nexit 3\n")}
	err := bad.Apply(context.Background(), target)
	if err == nil {
		t.Fatal("expected error for non-zero exit")
	}
	if !strings.Contains(err.Error(), "cannot parse file") {
		t.Errorf("error = %q, want stderr tail", err.Error())
	}
}

func TestCommand_RequiresBinary(t *testing.T) {
	if err := (&Command{}).Apply(context.Background(), "a.js"); err == nil {
		t.Fatal("expected error")
	}
}

func TestStatusCommand(t *testing.T) {
	ok := &StatusCommand{Binary: writeScript(t, "exit 0\n")}
	if err := ok.Update(context.Background()); err != nil {
		t.Errorf("Update: %v", err)
	}
	bad := &StatusCommand{Binary: writeScript(t, "echo boom >&2\nexit 1\n")}
	err := bad.Update(context.Background())
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Errorf("error = %v, want boom", err)
	}
}
