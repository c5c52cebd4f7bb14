package main

import (
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/zulandar/humpyard/internal/logging"
	"github.com/zulandar/humpyard/internal/refresh"
	"github.com/zulandar/humpyard/internal/status"
	"golang.org/x/sync/errgroup"
)

func newWatchCmd() *cobra.Command {
	var (
		configPath string
		cronExpr   string
		noFiles    bool
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep the status file current as files change",
		Long:  "Watches the tree and rewrites the status file after tracked files change. With --cron (or schedule.cron) it also refreshes on a schedule. Refreshes pause while a run holds the lock.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, configPath, cronExpr, noFiles)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "humpyard.yaml", "path to Humpyard config file")
	cmd.Flags().StringVar(&cronExpr, "cron", "", "5-field cron expression for scheduled refreshes (overrides schedule.cron)")
	cmd.Flags().BoolVar(&noFiles, "no-files", false, "disable file watching and only refresh on the schedule")
	return cmd
}

func runWatch(cmd *cobra.Command, configPath, cronExpr string, noFiles bool) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if cronExpr == "" {
		cronExpr = cfg.Schedule.Cron
	}
	if noFiles && cronExpr == "" {
		return fmt.Errorf("--no-files needs a schedule: pass --cron or set schedule.cron")
	}

	var sched cron.Schedule
	if cronExpr != "" {
		if sched, err = refresh.ParseSchedule(cronExpr); err != nil {
			return err
		}
	}

	logger, err := logging.New(logging.Opts{Console: cmd.ErrOrStderr(), Debug: cfg.Log.Debug})
	if err != nil {
		return err
	}
	log := logger.Component("watch")

	fs := afero.NewOsFs()
	c, err := newClassifier(cfg, fs, logger.Component("scan"))
	if err != nil {
		return err
	}
	updater := newStatusUpdater(cfg, fs, c, logger.Component("status"))
	lm := newLockManager(cfg, fs)

	ctx, stop := signalContext()
	defer stop()

	if _, err := updater.Refresh(ctx); err != nil {
		log.WithError(err).Warn("initial refresh failed")
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Watching %s (Ctrl+C to stop)\n", cfg.Root)

	g, gctx := errgroup.WithContext(ctx)
	if !noFiles {
		g.Go(func() error {
			return refresh.Watch(gctx, refresh.WatchOpts{
				Classifier: c,
				Refresher:  updater,
				Skip:       lm.IsLocked,
				Log:        log,
				OnRefresh: func(f *status.File) {
					logging.Success(log, "%d migrated, %d pending", len(f.MigratedFiles), len(f.PendingFiles))
				},
			})
		})
	}
	if sched != nil {
		log.WithField("cron", cronExpr).Info("scheduled refresh enabled")
		g.Go(func() error {
			return refresh.RunSchedule(gctx, sched, updater, log)
		})
	}
	return g.Wait()
}
