package action

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/afero"
	"github.com/zulandar/humpyard/internal/config"
)

// Rewrite applies literal substitutions to a file in place. It is the
// built-in action used when no external command is configured.
type Rewrite struct {
	Fs     afero.Fs
	Rules  []config.RewriteRule
	Header string // prepended when non-empty and not already present
}

// Apply rewrites path. A file with no matching rule is left untouched,
// which the runner then reports as a failed migration.
func (r *Rewrite) Apply(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	info, err := r.Fs.Stat(path)
	if err != nil {
		return fmt.Errorf("action: stat %s: %w", path, err)
	}
	data, err := afero.ReadFile(r.Fs, path)
	if err != nil {
		return fmt.Errorf("action: read %s: %w", path, err)
	}

	content := string(data)
	changed := false
	for _, rule := range r.Rules {
		if rule.From == "" || !strings.Contains(content, rule.From) {
			continue
		}
		content = strings.ReplaceAll(content, rule.From, rule.To)
		changed = true
	}
	if !changed {
		return nil
	}
	if r.Header != "" && !strings.HasPrefix(content, r.Header) {
		content = r.Header + "\n" + content
	}

	if err := afero.WriteFile(r.Fs, path, []byte(content), info.Mode().Perm()); err != nil {
		return fmt.Errorf("action: write %s: %w", path, err)
	}
	return nil
}
