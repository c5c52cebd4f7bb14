// Package refresh keeps the status file current outside of migration runs,
// either by watching the tree for edits or on a cron schedule.
package refresh

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"github.com/zulandar/humpyard/internal/scan"
	"github.com/zulandar/humpyard/internal/status"
)

// DefaultDebounce batches rapid saves into one refresh.
const DefaultDebounce = 500 * time.Millisecond

// Refresher rewrites the status file. status.Updater satisfies it.
type Refresher interface {
	Refresh(ctx context.Context) (*status.File, error)
}

// WatchOpts configures Watch.
type WatchOpts struct {
	Classifier *scan.Classifier // decides which paths matter and owns the read cache
	Refresher  Refresher
	Debounce   time.Duration
	Skip       func() bool // when it returns true a refresh is skipped, e.g. while a run holds the lock
	Log        *logrus.Entry
	OnRefresh  func(*status.File)
}

// Watch watches the classifier root and refreshes the status file after
// tracked files change. It blocks until ctx is cancelled.
func Watch(ctx context.Context, opts WatchOpts) error {
	if opts.Classifier == nil || opts.Refresher == nil {
		return fmt.Errorf("refresh: classifier and refresher are required")
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	log := opts.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("refresh: create watcher: %w", err)
	}
	defer w.Close()

	root := opts.Classifier.Root()
	n, err := addTree(w, opts.Classifier, root)
	if err != nil {
		return err
	}
	log.WithFields(logrus.Fields{"root": root, "dirs": n}).Info("watching for changes")

	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !handleEvent(w, opts.Classifier, ev, log) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(opts.Debounce)
			} else {
				timer.Reset(opts.Debounce)
			}
			fire = timer.C

		case werr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.WithError(werr).Warn("watcher error")

		case <-fire:
			fire = nil
			if opts.Skip != nil && opts.Skip() {
				log.Debug("refresh skipped")
				continue
			}
			f, rerr := opts.Refresher.Refresh(ctx)
			if rerr != nil {
				log.WithError(rerr).Error("status refresh failed")
				continue
			}
			if opts.OnRefresh != nil {
				opts.OnRefresh(f)
			}
		}
	}
}

// handleEvent reports whether ev should trigger a refresh. New directories
// are added to the watcher; cached content for a changed file is dropped.
func handleEvent(w *fsnotify.Watcher, c *scan.Classifier, ev fsnotify.Event, log *logrus.Entry) bool {
	if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}
	if ev.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if c.Excluded(ev.Name) {
				return false
			}
			if _, err := addTree(w, c, ev.Name); err != nil {
				log.WithError(err).Warn("could not watch new directory")
			}
			return true
		}
	}
	if !c.Tracks(ev.Name) {
		return false
	}
	c.Source().Invalidate(ev.Name)
	log.WithFields(logrus.Fields{"path": ev.Name, "op": ev.Op.String()}).Debug("change detected")
	return true
}

// addTree adds dir and every non-excluded directory beneath it.
func addTree(w *fsnotify.Watcher, c *scan.Classifier, dir string) (int, error) {
	n := 0
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if c.Excluded(path) {
			return filepath.SkipDir
		}
		if err := w.Add(path); err != nil {
			return fmt.Errorf("refresh: watch %s: %w", path, err)
		}
		n++
		return nil
	})
	if err != nil {
		return n, fmt.Errorf("refresh: walk %s: %w", dir, err)
	}
	return n, nil
}
