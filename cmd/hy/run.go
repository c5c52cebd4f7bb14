package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/zulandar/humpyard/internal/action"
	"github.com/zulandar/humpyard/internal/batch"
	"github.com/zulandar/humpyard/internal/config"
	"github.com/zulandar/humpyard/internal/db"
	"github.com/zulandar/humpyard/internal/history"
	"github.com/zulandar/humpyard/internal/lock"
	"github.com/zulandar/humpyard/internal/logging"
	"github.com/zulandar/humpyard/internal/notify"
	"github.com/zulandar/humpyard/internal/notify/discord"
	"github.com/zulandar/humpyard/internal/notify/slack"
	"github.com/zulandar/humpyard/internal/priority"
	"github.com/zulandar/humpyard/internal/report"
	"github.com/zulandar/humpyard/internal/scan"
)

// publishTimeout bounds notifications and commit status after a run.
const publishTimeout = 30 * time.Second

type runFlags struct {
	configPath string
	batchSize  int
	yes        bool
	timeout    time.Duration
	dryRun     bool
	debug      bool
	noNotify   bool
}

func newRunCmd() *cobra.Command {
	var f runFlags

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Migrate pending files in confirmed batches",
		Long: "Classifies the tree, orders pending files by priority and migrates them batch by batch. " +
			"Every file is backed up first and restored if the migrated marker is missing afterwards. " +
			"Between batches the status file is rewritten and, unless --yes is given, you are asked to continue.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigration(cmd, f)
		},
	}

	cmd.Flags().StringVarP(&f.configPath, "config", "c", "humpyard.yaml", "path to Humpyard config file")
	cmd.Flags().IntVarP(&f.batchSize, "batch-size", "b", config.DefaultBatchSize, "files per batch (overrides batch.size)")
	cmd.Flags().BoolVarP(&f.yes, "yes", "y", false, "auto-confirm every batch")
	cmd.Flags().DurationVar(&f.timeout, "timeout", 0, "limit for each migration action call (0 means none)")
	cmd.Flags().BoolVar(&f.dryRun, "dry-run", false, "print the batch plan without touching files")
	cmd.Flags().BoolVar(&f.debug, "debug", false, "enable debug logging")
	cmd.Flags().BoolVar(&f.noNotify, "no-notify", false, "skip chat notifications and commit status")
	return cmd
}

func runMigration(cmd *cobra.Command, f runFlags) error {
	if cmd.Flags().Changed("batch-size") && f.batchSize <= 0 {
		return fmt.Errorf("--batch-size must be a positive integer, got %d", f.batchSize)
	}
	if f.timeout < 0 {
		return fmt.Errorf("--timeout must not be negative, got %s", f.timeout)
	}

	cfg, err := loadConfig(f.configPath)
	if err != nil {
		return err
	}
	size := cfg.Batch.Size
	if cmd.Flags().Changed("batch-size") {
		size = f.batchSize
	}
	autoConfirm := f.yes || cfg.Batch.AutoConfirm
	in := cmd.InOrStdin()
	if !autoConfirm && !f.dryRun && !interactiveInput(in) {
		return fmt.Errorf("stdin is not a terminal; pass --yes to run unattended")
	}

	logDir := cfg.LogDir()
	if f.dryRun {
		logDir = ""
	}
	logger, err := logging.New(logging.Opts{
		Dir:     logDir,
		Debug:   cfg.Log.Debug || f.debug,
		Console: cmd.ErrOrStderr(),
	})
	if err != nil {
		return err
	}
	defer logger.Close()
	log := logger.Component("run")

	ctx, stop := signalContext()
	defer stop()

	fs := afero.NewOsFs()
	if !f.dryRun {
		lm := newLockManager(cfg, fs)
		if err := lm.Acquire(lock.Current(cfg.Root)); err != nil {
			return err
		}
		defer func() {
			if err := lm.Release(); err != nil {
				log.WithError(err).Warn("could not release run lock")
			}
		}()
	}

	classifier, err := newClassifier(cfg, fs, logger.Component("scan"))
	if err != nil {
		return err
	}
	ordered, err := plan(ctx, cfg, classifier, log)
	if err != nil {
		return err
	}

	if f.dryRun {
		batches, err := batch.Partition(ordered, size)
		if err != nil {
			return err
		}
		printPlan(cmd.OutOrStdout(), cfg.Root, batches)
		return nil
	}

	updater := newStatusUpdater(cfg, fs, classifier, logger.Component("status"))
	if len(ordered) == 0 {
		logging.Success(log, "nothing to migrate under %s", cfg.Root)
		if err := updater.Update(ctx); err != nil {
			log.WithError(err).Warn("status update failed")
		}
		return nil
	}

	var recorder batch.Recorder
	hist := startHistory(cfg, history.StartOpts{
		Root:        cfg.Root,
		BatchSize:   size,
		AutoConfirm: autoConfirm,
		Planned:     len(ordered),
		LogPath:     logger.Path,
	}, log)
	if hist != nil {
		recorder = hist
	}

	runner, err := batch.NewRunner(batch.Opts{
		Fs:            fs,
		Action:        buildAction(cfg, fs, logger.Component("action")),
		Verifier:      classifier,
		Status:        updater,
		Confirm:       newPromptConfirmer(in, cmd.OutOrStdout()),
		Recorder:      recorder,
		BatchSize:     size,
		AutoConfirm:   autoConfirm,
		ActionTimeout: f.timeout,
		Log:           logger.Component("batch"),
	})
	if err != nil {
		return err
	}

	started := time.Now()
	rep, runErr := runner.Run(ctx, ordered)
	var runID uint
	if hist != nil {
		runID = hist.Run.ID
		if err := hist.Finish(rep, runErr); err != nil {
			log.WithError(err).Warn("could not record run result")
		}
	}
	logReport(log, rep)

	if !f.noNotify {
		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
		defer cancel()
		publish(pctx, cfg, notify.Summary{
			RunID:    runID,
			Root:     cfg.Root,
			Report:   rep,
			Err:      runErr,
			Duration: time.Since(started),
			LogPath:  logger.Path,
		}, log)
	}

	if runErr != nil {
		return runErr
	}
	if rep.Failed > 0 {
		return fmt.Errorf("%d file(s) failed and were rolled back; see %s", rep.Failed, logger.Path)
	}
	return nil
}

// plan classifies the tree and returns the candidates in priority order.
func plan(ctx context.Context, cfg *config.Config, c *scan.Classifier, log *logrus.Entry) ([]scan.FileRecord, error) {
	cls, err := c.Classify(ctx)
	if err != nil {
		return nil, err
	}
	p := priority.New(cfg.Priority.HighContent, cfg.Priority.MediumPath)
	ordered := p.Order(cls.Candidates, c.Source())
	counts := priority.Counts(ordered)
	log.WithFields(logrus.Fields{
		"migrated": len(cls.Migrated),
		"high":     counts[scan.PriorityHigh],
		"medium":   counts[scan.PriorityMedium],
		"low":      counts[scan.PriorityLow],
	}).Infof("%d file(s) pending migration", len(ordered))
	return ordered, nil
}

// buildAction returns the configured external command, or the built-in
// rewrite when no command is set.
func buildAction(cfg *config.Config, fs afero.Fs, log *logrus.Entry) batch.Action {
	if cfg.Action.Command != "" {
		return &action.Command{
			Binary:  cfg.Action.Command,
			Args:    cfg.Action.Args,
			WorkDir: cfg.Root,
			Log:     log,
		}
	}
	return &action.Rewrite{Fs: fs, Rules: cfg.Action.Rewrites, Header: cfg.Action.Header}
}

// startHistory opens the history database and starts a run record. History
// is best effort: on any error the run continues unrecorded.
func startHistory(cfg *config.Config, opts history.StartOpts, log *logrus.Entry) *history.Recorder {
	gormDB, err := db.Open(cfg)
	if err != nil {
		log.WithError(err).Warn("run history disabled")
		return nil
	}
	rec, err := history.Start(gormDB, opts)
	if err != nil {
		log.WithError(err).Warn("run history disabled")
		return nil
	}
	log.WithField("run_id", rec.Run.ID).Debug("run recorded")
	return rec
}

func logReport(log *logrus.Entry, rep *batch.Report) {
	if rep == nil {
		return
	}
	for _, res := range rep.Results {
		if res.Outcome != batch.Failed {
			continue
		}
		entry := log.WithField("file", res.Path)
		if res.BackupPath != "" {
			entry = entry.WithField("backup", res.BackupPath)
		}
		entry.WithError(res.Err).Warn("not migrated")
	}
	fields := logrus.Fields{
		"succeeded": rep.Succeeded,
		"failed":    rep.Failed,
		"batches":   fmt.Sprintf("%d/%d", rep.Batches, rep.Planned),
	}
	switch {
	case rep.Stopped:
		log.WithFields(fields).Warnf("run stopped with %d file(s) not attempted", rep.Remaining())
	case rep.Failed > 0:
		log.WithFields(fields).Error("run finished with failures")
	default:
		logging.Success(log.WithFields(fields), "run finished")
	}
}

// publish sends the run summary to chat and the commit status to GitHub.
// Failures are logged only.
func publish(ctx context.Context, cfg *config.Config, s notify.Summary, log *logrus.Entry) {
	if n := buildNotifier(cfg, log); len(n) > 0 {
		if err := n.Notify(ctx, notify.FormatSummary(s)); err != nil {
			log.WithError(err).Warn("notification failed")
		}
	}
	if cfg.GitHub.Owner == "" || cfg.GitHub.Repo == "" || s.Report == nil {
		return
	}
	if err := publishStatus(ctx, cfg, report.FromReport(s.Report)); err != nil {
		log.WithError(err).Warn("commit status not published")
	}
}

func buildNotifier(cfg *config.Config, log *logrus.Entry) notify.Multi {
	var out notify.Multi
	if ch := cfg.Notify.Slack; ch.Channel != "" {
		n, err := slack.New(slack.Opts{BotToken: ch.Token, ChannelID: ch.Channel})
		if err != nil {
			log.WithError(err).Warn("slack notifications disabled")
		} else {
			out = append(out, n)
		}
	}
	if ch := cfg.Notify.Discord; ch.Channel != "" {
		n, err := discord.New(discord.Opts{BotToken: ch.Token, ChannelID: ch.Channel, Log: log})
		if err != nil {
			log.WithError(err).Warn("discord notifications disabled")
		} else {
			out = append(out, n)
		}
	}
	return out
}

func publishStatus(ctx context.Context, cfg *config.Config, s report.Status) error {
	sha, err := report.HeadSHA(ctx, cfg.Root)
	if err != nil {
		return err
	}
	r, err := report.New(ctx, report.Opts{
		Owner:   cfg.GitHub.Owner,
		Repo:    cfg.GitHub.Repo,
		Context: cfg.GitHub.Context,
		Token:   cfg.GitHub.Token,
	})
	if err != nil {
		return err
	}
	return r.Publish(ctx, sha, s)
}

// printPlan writes the batch plan as a table.
func printPlan(out io.Writer, root string, batches []batch.Batch) {
	if len(batches) == 0 {
		fmt.Fprintln(out, "Nothing to migrate.")
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "BATCH\tPRIORITY\tFILE")
	total := 0
	for _, b := range batches {
		for _, rec := range b.Files {
			fmt.Fprintf(w, "%d\t%s\t%s\n", b.Number, rec.Priority, relPath(root, rec.Path))
			total++
		}
	}
	w.Flush()
	fmt.Fprintf(out, "\n%d file(s) in %d batch(es)\n", total, len(batches))
}

func relPath(root, path string) string {
	if rel, err := filepath.Rel(root, path); err == nil {
		return filepath.ToSlash(rel)
	}
	return path
}
