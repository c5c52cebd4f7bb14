package main

import (
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/zulandar/humpyard/internal/history"
	"github.com/zulandar/humpyard/internal/models"
)

func newHistoryCmd() *cobra.Command {
	var (
		configPath string
		limit      int
		file       string
	)

	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "List past runs or show one run's file results",
		Long:  "Without arguments, lists recent migration runs. With a run ID, prints every file result of that run. Use --file to see the history of one file across runs.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(cmd, configPath, limit, file, args)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "humpyard.yaml", "path to Humpyard config file")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs to list")
	cmd.Flags().StringVar(&file, "file", "", "show results for one file path")
	return cmd
}

func runHistory(cmd *cobra.Command, configPath string, limit int, file string, args []string) error {
	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	switch {
	case file != "":
		if !filepath.IsAbs(file) {
			file = filepath.Join(cfg.Root, file)
		}
		rows, err := history.FileHistory(gormDB, file)
		if err != nil {
			return err
		}
		printFileResults(out, cfg.Root, rows, true)
	case len(args) == 1:
		id, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid run ID %q", args[0])
		}
		run, err := history.GetRun(gormDB, uint(id))
		if err != nil {
			return err
		}
		printRun(out, cfg.Root, run)
	default:
		runs, err := history.ListRuns(gormDB, limit)
		if err != nil {
			return err
		}
		printRuns(out, runs)
	}
	return nil
}

func printRuns(out io.Writer, runs []models.MigrationRun) {
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs recorded.")
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tSTARTED\tDURATION\tBATCHES\tOK\tFAILED")
	for _, r := range runs {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%d\t%d\n",
			r.ID, r.Status, r.StartedAt.Local().Format(time.DateTime), runDuration(r), r.Batches, r.Succeeded, r.Failed)
	}
	w.Flush()
}

func printRun(out io.Writer, root string, r *models.MigrationRun) {
	fmt.Fprintf(out, "Run %d (%s)\n", r.ID, r.Status)
	fmt.Fprintf(out, "Root:     %s\n", r.Root)
	fmt.Fprintf(out, "Started:  %s\n", r.StartedAt.Local().Format(time.DateTime))
	fmt.Fprintf(out, "Duration: %s\n", runDuration(*r))
	fmt.Fprintf(out, "Batches:  %d (size %d, auto-confirm %t)\n", r.Batches, r.BatchSize, r.AutoConfirm)
	fmt.Fprintf(out, "Result:   %d succeeded, %d failed of %d planned\n", r.Succeeded, r.Failed, r.Planned)
	if r.LogPath != "" {
		fmt.Fprintf(out, "Log:      %s\n", r.LogPath)
	}
	if r.Error != "" {
		fmt.Fprintf(out, "Error:    %s\n", r.Error)
	}
	if len(r.Results) > 0 {
		fmt.Fprintln(out)
		printFileResults(out, root, r.Results, false)
	}
}

func printFileResults(out io.Writer, root string, rows []models.FileResult, withRun bool) {
	if len(rows) == 0 {
		fmt.Fprintln(out, "No results recorded.")
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	if withRun {
		fmt.Fprintln(w, "RUN\tBATCH\tPRIORITY\tOUTCOME\tFILE\tERROR")
	} else {
		fmt.Fprintln(w, "BATCH\tPRIORITY\tOUTCOME\tFILE\tERROR")
	}
	for _, row := range rows {
		errText := row.Error
		if row.BackupPath != "" {
			errText += " (backup kept: " + row.BackupPath + ")"
		}
		if withRun {
			fmt.Fprintf(w, "%d\t", row.RunID)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", row.Batch, row.Priority, row.Outcome, relPath(root, row.Path), errText)
	}
	w.Flush()
}

func runDuration(r models.MigrationRun) string {
	if r.FinishedAt == nil {
		return "-"
	}
	return r.FinishedAt.Sub(r.StartedAt).Round(time.Second).String()
}
