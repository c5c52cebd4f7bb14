package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/zulandar/humpyard/internal/logging"
	"github.com/zulandar/humpyard/internal/status"
)

func newStatusCmd() *cobra.Command {
	var (
		configPath string
		refresh    bool
		list       bool
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration progress from the status file",
		Long:  "Reads the migration status file and prints migrated and pending counts. Use --refresh to re-classify the tree and rewrite the file first.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd, configPath, refresh, list)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "humpyard.yaml", "path to Humpyard config file")
	cmd.Flags().BoolVar(&refresh, "refresh", false, "re-classify and rewrite the status file first")
	cmd.Flags().BoolVar(&list, "list", false, "list pending files")
	return cmd
}

func runStatus(cmd *cobra.Command, configPath string, refresh, list bool) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	fs := afero.NewOsFs()

	var f *status.File
	if refresh {
		logger, err := logging.New(logging.Opts{Console: cmd.ErrOrStderr(), Debug: cfg.Log.Debug})
		if err != nil {
			return err
		}
		c, err := newClassifier(cfg, fs, logger.Component("scan"))
		if err != nil {
			return err
		}
		u := newStatusUpdater(cfg, fs, c, logger.Component("status"))
		f, err = u.Refresh(cmd.Context())
		if f == nil {
			return err
		}
		if err != nil {
			logger.Component("status").WithError(err).Warn("status hook failed")
		}
	} else {
		f, err = status.Read(fs, cfg.StatusPath())
		if err != nil {
			return err
		}
	}

	printStatus(cmd.OutOrStdout(), f, list)
	return nil
}

func printStatus(out io.Writer, f *status.File, list bool) {
	total := len(f.MigratedFiles) + len(f.PendingFiles)
	fmt.Fprintf(out, "Progress: %d/%d migrated (%.1f%%)\n", len(f.MigratedFiles), total, f.Progress()*100)
	fmt.Fprintf(out, "Pending:  %d\n", len(f.PendingFiles))
	if !f.LastUpdated.IsZero() {
		fmt.Fprintf(out, "Updated:  %s\n", f.LastUpdated.Local().Format(time.DateTime))
	}
	if list && len(f.PendingFiles) > 0 {
		fmt.Fprintln(out, "\nPending files:")
		for _, p := range f.PendingFiles {
			fmt.Fprintf(out, "  %s\n", p)
		}
	}
}
