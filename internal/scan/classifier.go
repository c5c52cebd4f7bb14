// Package scan classifies source files as migrated or pending by looking for
// marker strings in their contents.
package scan

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// Options configures a Classifier.
type Options struct {
	Root             string
	Extensions       []string // e.g. ".js", ".tsx"
	Exclude          []string // path substrings, matched against "/"+relative path
	MigratedMarkers  []string
	CandidateMarkers []string
}

// Classifier partitions a source tree into migrated files and candidates.
type Classifier struct {
	src  *Source
	opts Options
	log  *logrus.Entry
}

// NewClassifier validates opts and returns a Classifier reading through src.
func NewClassifier(src *Source, opts Options, log *logrus.Entry) (*Classifier, error) {
	if src == nil {
		return nil, fmt.Errorf("scan: source is required")
	}
	if opts.Root == "" {
		return nil, fmt.Errorf("scan: root is required")
	}
	if len(opts.MigratedMarkers) == 0 {
		return nil, fmt.Errorf("scan: at least one migrated marker is required")
	}
	if len(opts.CandidateMarkers) == 0 {
		return nil, fmt.Errorf("scan: at least one candidate marker is required")
	}
	return &Classifier{src: src, opts: opts, log: log}, nil
}

// Source returns the content source the classifier reads through.
func (c *Classifier) Source() *Source { return c.src }

// Root returns the scanned root directory.
func (c *Classifier) Root() string { return c.opts.Root }

// Classify walks the root and returns the migrated and candidate sets.
// Unreadable files are logged and skipped; only a missing root or a
// cancelled context fails the scan.
func (c *Classifier) Classify(ctx context.Context) (*Classification, error) {
	if _, err := c.src.Fs().Stat(c.opts.Root); err != nil {
		return nil, fmt.Errorf("scan: root %s: %w", c.opts.Root, err)
	}

	out := &Classification{}
	err := afero.Walk(c.src.Fs(), c.opts.Root, func(path string, info os.FileInfo, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			c.log.WithError(err).WithField("path", path).Warn("skipping unreadable path")
			out.Skipped = append(out.Skipped, path)
			if info != nil && info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if c.excluded(path) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if info.IsDir() || !c.wantExt(path) {
			return nil
		}

		data, readErr := c.src.Read(path)
		if readErr != nil {
			c.log.WithError(readErr).WithField("path", path).Warn("skipping unreadable file")
			out.Skipped = append(out.Skipped, path)
			return nil
		}

		switch {
		case containsAny(data, c.opts.MigratedMarkers):
			out.Migrated = append(out.Migrated, FileRecord{Path: path, Class: Migrated})
		case containsAny(data, c.opts.CandidateMarkers):
			out.Candidates = append(out.Candidates, FileRecord{Path: path, Class: Pending})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan: walk %s: %w", c.opts.Root, err)
	}

	c.log.WithFields(logrus.Fields{
		"migrated":   len(out.Migrated),
		"candidates": len(out.Candidates),
		"skipped":    len(out.Skipped),
	}).Info("classification complete")
	return out, nil
}

// HasMigratedMarker re-reads path from disk and reports whether it now
// contains a migrated marker. The fresh read bypasses the cache so content
// that may still be rolled back is never cached.
func (c *Classifier) HasMigratedMarker(path string) (bool, error) {
	c.src.Invalidate(path)
	data, err := afero.ReadFile(c.src.Fs(), path)
	if err != nil {
		return false, fmt.Errorf("scan: read %s: %w", path, err)
	}
	return containsAny(data, c.opts.MigratedMarkers), nil
}

// Invalidate drops any cached content for path.
func (c *Classifier) Invalidate(path string) { c.src.Invalidate(path) }

// Excluded reports whether path falls under an exclude pattern.
func (c *Classifier) Excluded(path string) bool { return c.excluded(path) }

// Tracks reports whether path is a file Classify would read.
func (c *Classifier) Tracks(path string) bool {
	return !c.excluded(path) && c.wantExt(path)
}

func (c *Classifier) excluded(path string) bool {
	rel, err := filepath.Rel(c.opts.Root, path)
	if err != nil || rel == "." {
		return false
	}
	rel = "/" + filepath.ToSlash(rel)
	for _, ex := range c.opts.Exclude {
		if ex != "" && (strings.Contains(rel, ex) || strings.Contains(rel+"/", ex)) {
			return true
		}
	}
	return false
}

func (c *Classifier) wantExt(path string) bool {
	if len(c.opts.Extensions) == 0 {
		return true
	}
	ext := filepath.Ext(path)
	for _, e := range c.opts.Extensions {
		if strings.EqualFold(ext, e) {
			return true
		}
	}
	return false
}

func containsAny(data []byte, markers []string) bool {
	for _, m := range markers {
		if m != "" && bytes.Contains(data, []byte(m)) {
			return true
		}
	}
	return false
}
