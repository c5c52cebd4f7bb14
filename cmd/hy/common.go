package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/zulandar/humpyard/internal/action"
	"github.com/zulandar/humpyard/internal/config"
	"github.com/zulandar/humpyard/internal/db"
	"github.com/zulandar/humpyard/internal/lock"
	"github.com/zulandar/humpyard/internal/scan"
	"github.com/zulandar/humpyard/internal/status"
	"gorm.io/gorm"
)

// stateDir holds the run lock and the default sqlite history database.
const stateDir = ".humpyard"

func loadConfig(configPath string) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func connectFromConfig(configPath string) (*config.Config, *gorm.DB, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}
	gormDB, err := db.Open(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("open history database: %w", err)
	}
	return cfg, gormDB, nil
}

// newClassifier builds the classifier for cfg over fs.
func newClassifier(cfg *config.Config, fs afero.Fs, log *logrus.Entry) (*scan.Classifier, error) {
	src, err := scan.NewSource(fs, 0)
	if err != nil {
		return nil, err
	}
	return scan.NewClassifier(src, scan.Options{
		Root:             cfg.Root,
		Extensions:       cfg.Extensions,
		Exclude:          cfg.Exclude,
		MigratedMarkers:  cfg.Markers.Migrated,
		CandidateMarkers: cfg.Markers.Candidate,
	}, log)
}

// newStatusUpdater builds the built-in status updater plus the configured
// external status command, if any.
func newStatusUpdater(cfg *config.Config, fs afero.Fs, c *scan.Classifier, log *logrus.Entry) *status.Updater {
	u := &status.Updater{
		Fs:         fs,
		Path:       cfg.StatusPath(),
		Classifier: c,
		Log:        log,
	}
	if cfg.Status.Command != "" {
		u.Hooks = append(u.Hooks, &action.StatusCommand{
			Binary:  cfg.Status.Command,
			Args:    cfg.Status.Args,
			WorkDir: cfg.Root,
		})
	}
	return u
}

func newLockManager(cfg *config.Config, fs afero.Fs) *lock.Manager {
	return lock.New(fs, filepath.Join(cfg.Root, stateDir))
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
