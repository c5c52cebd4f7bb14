package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/zulandar/humpyard/internal/logging"
	"github.com/zulandar/humpyard/internal/priority"
	"github.com/zulandar/humpyard/internal/scan"
)

func newScanCmd() *cobra.Command {
	var (
		configPath string
		showAll    bool
	)

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Classify files and list pending work by priority",
		Long:  "Walks the tree, reports how many files are migrated and pending, and lists pending files in the order `hy run` would take them. No files are changed.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd, configPath, showAll)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "humpyard.yaml", "path to Humpyard config file")
	cmd.Flags().BoolVar(&showAll, "all", false, "also list migrated files")
	return cmd
}

func runScan(cmd *cobra.Command, configPath string, showAll bool) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	logger, err := logging.New(logging.Opts{Console: cmd.ErrOrStderr(), Debug: cfg.Log.Debug})
	if err != nil {
		return err
	}

	c, err := newClassifier(cfg, afero.NewOsFs(), logger.Component("scan"))
	if err != nil {
		return err
	}
	cls, err := c.Classify(cmd.Context())
	if err != nil {
		return err
	}
	ordered := priority.New(cfg.Priority.HighContent, cfg.Priority.MediumPath).Order(cls.Candidates, c.Source())

	out := cmd.OutOrStdout()
	printScan(out, cfg.Root, cls, ordered, showAll)
	return nil
}

func printScan(out io.Writer, root string, cls *scan.Classification, ordered []scan.FileRecord, showAll bool) {
	counts := priority.Counts(ordered)
	fmt.Fprintf(out, "Migrated: %d\n", len(cls.Migrated))
	fmt.Fprintf(out, "Pending:  %d (high %d, medium %d, low %d)\n",
		len(ordered), counts[scan.PriorityHigh], counts[scan.PriorityMedium], counts[scan.PriorityLow])
	if len(cls.Skipped) > 0 {
		fmt.Fprintf(out, "Skipped:  %d unreadable\n", len(cls.Skipped))
	}

	if len(ordered) > 0 {
		fmt.Fprintln(out)
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "#\tPRIORITY\tFILE")
		for i, rec := range ordered {
			fmt.Fprintf(w, "%d\t%s\t%s\n", i+1, rec.Priority, relPath(root, rec.Path))
		}
		w.Flush()
	}

	if showAll && len(cls.Migrated) > 0 {
		fmt.Fprintln(out, "\nMigrated files:")
		for _, rec := range cls.Migrated {
			fmt.Fprintf(out, "  %s\n", relPath(root, rec.Path))
		}
	}
}
