// Package status reads and writes the migration status file, a JSON snapshot
// of which files are migrated and which are still pending.
package status

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/zulandar/humpyard/internal/scan"
)

// File is the on-disk status document.
type File struct {
	LastUpdated   time.Time `json:"lastUpdated"`
	MigratedFiles []string  `json:"migratedFiles"`
	PendingFiles  []string  `json:"pendingFiles"`
}

// Progress returns the migrated share in [0, 1]. An empty tree is complete.
func (f *File) Progress() float64 {
	total := len(f.MigratedFiles) + len(f.PendingFiles)
	if total == 0 {
		return 1
	}
	return float64(len(f.MigratedFiles)) / float64(total)
}

// FromClassification builds a status document with paths relative to root.
func FromClassification(root string, c *scan.Classification, now time.Time) *File {
	return &File{
		LastUpdated:   now.UTC(),
		MigratedFiles: relPaths(root, c.Migrated),
		PendingFiles:  relPaths(root, c.Candidates),
	}
}

func relPaths(root string, recs []scan.FileRecord) []string {
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		p := r.Path
		if rel, err := filepath.Rel(root, p); err == nil {
			p = filepath.ToSlash(rel)
		}
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Write fully replaces the status file at path. It writes a temp file in the
// same directory and renames it over the target.
func Write(fs afero.Fs, path string, f *File) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("status: marshal: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(path)
	if err := fs.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("status: create dir %s: %w", dir, err)
	}
	tmp := path + ".tmp"
	if err := afero.WriteFile(fs, tmp, data, 0644); err != nil {
		return fmt.Errorf("status: write %s: %w", tmp, err)
	}
	if err := fs.Rename(tmp, path); err != nil {
		_ = fs.Remove(tmp)
		return fmt.Errorf("status: replace %s: %w", path, err)
	}
	return nil
}

// Read loads the status file at path.
func Read(fs afero.Fs, path string) (*File, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("status: %s not found (run `hy status --refresh` first): %w", path, err)
		}
		return nil, fmt.Errorf("status: read %s: %w", path, err)
	}
	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("status: parse %s: %w", path, err)
	}
	return &f, nil
}

// Updater re-classifies the tree and rewrites the status file. It satisfies
// batch.StatusUpdater. Hooks run after the file is written; their errors are
// logged and joined into the returned error.
type Updater struct {
	Fs         afero.Fs
	Path       string
	Classifier *scan.Classifier
	Hooks      []Hook
	Log        *logrus.Entry
	Now        func() time.Time
}

// Hook is an extra status step, such as an external status command.
type Hook interface {
	Update(ctx context.Context) error
}

// Update implements batch.StatusUpdater.
func (u *Updater) Update(ctx context.Context) error {
	_, err := u.Refresh(ctx)
	return err
}

// Refresh re-classifies, writes the status file and returns it.
func (u *Updater) Refresh(ctx context.Context) (*File, error) {
	now := time.Now
	if u.Now != nil {
		now = u.Now
	}
	c, err := u.Classifier.Classify(ctx)
	if err != nil {
		return nil, err
	}
	f := FromClassification(u.Classifier.Root(), c, now())
	if err := Write(u.Fs, u.Path, f); err != nil {
		return nil, err
	}
	if u.Log != nil {
		u.Log.WithFields(logrus.Fields{
			"migrated": len(f.MigratedFiles),
			"pending":  len(f.PendingFiles),
			"path":     u.Path,
		}).Info("status file updated")
	}

	for _, h := range u.Hooks {
		if herr := h.Update(ctx); herr != nil {
			if u.Log != nil {
				u.Log.WithError(herr).Warn("status hook failed")
			}
			if err == nil {
				err = herr
			}
		}
	}
	return f, err
}
