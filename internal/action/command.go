// Package action provides the migration actions and status hooks the batch
// runner calls: external commands and a built-in literal rewrite.
package action

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
)

// PathPlaceholder in Args is replaced by the file being migrated. When no
// arg contains it, the path is appended as the last argument.
const PathPlaceholder = "{path}"

// Command runs an external program once per file. A non-zero exit is a
// failed migration.
type Command struct {
	Binary  string
	Args    []string
	WorkDir string
	Log     *logrus.Entry
}

// Apply runs the command for path and waits for it to exit.
func (c *Command) Apply(ctx context.Context, path string) error {
	if c.Binary == "" {
		return fmt.Errorf("action: command binary is required")
	}
	cmd := c.build(ctx, path)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if c.Log != nil {
		entry := c.Log.WithField("file", path)
		if s := strings.TrimSpace(stdout.String()); s != "" {
			entry.WithField("stream", "stdout").Debug(s)
		}
		if s := strings.TrimSpace(stderr.String()); s != "" {
			entry.WithField("stream", "stderr").Debug(s)
		}
	}
	if err != nil {
		if msg := lastLine(stderr.String()); msg != "" {
			return fmt.Errorf("action: %s %s: %w: %s", c.Binary, path, err, msg)
		}
		return fmt.Errorf("action: %s %s: %w", c.Binary, path, err)
	}
	return nil
}

// build constructs the exec.Cmd for one file.
func (c *Command) build(ctx context.Context, path string) *exec.Cmd {
	args := make([]string, 0, len(c.Args)+1)
	substituted := false
	for _, a := range c.Args {
		if strings.Contains(a, PathPlaceholder) {
			substituted = true
			a = strings.ReplaceAll(a, PathPlaceholder, path)
		}
		args = append(args, a)
	}
	if !substituted {
		args = append(args, path)
	}

	cmd := exec.CommandContext(ctx, c.Binary, args...)
	if c.WorkDir != "" {
		cmd.Dir = c.WorkDir
	}
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = 10 * time.Second
	return cmd
}

// StatusCommand runs an external status-refresh program after each batch.
type StatusCommand struct {
	Binary  string
	Args    []string
	WorkDir string
}

// Update runs the status command. Callers treat its error as a warning.
func (s *StatusCommand) Update(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, s.Binary, s.Args...)
	if s.WorkDir != "" {
		cmd.Dir = s.WorkDir
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := lastLine(stderr.String()); msg != "" {
			return fmt.Errorf("action: status command %s: %w: %s", s.Binary, err, msg)
		}
		return fmt.Errorf("action: status command %s: %w", s.Binary, err)
	}
	return nil
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
