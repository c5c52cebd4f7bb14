package main

import (
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/zulandar/humpyard/internal/report"
	"github.com/zulandar/humpyard/internal/status"
)

func newReportCmd() *cobra.Command {
	var (
		configPath string
		sha        string
	)

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Publish migration progress as a GitHub commit status",
		Long:  "Reads the status file and sets a commit status on the current HEAD (or --sha) with the migrated and pending counts. Requires github.owner, github.repo and GITHUB_TOKEN.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReport(cmd, configPath, sha)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "humpyard.yaml", "path to Humpyard config file")
	cmd.Flags().StringVar(&sha, "sha", "", "commit to report on (default: HEAD of the root)")
	return cmd
}

func runReport(cmd *cobra.Command, configPath, sha string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	f, err := status.Read(afero.NewOsFs(), cfg.StatusPath())
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if sha == "" {
		if sha, err = report.HeadSHA(ctx, cfg.Root); err != nil {
			return err
		}
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

	s := report.FromStatusFile(f)
	if err := r.Publish(ctx, sha, s); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Published %s status on %s: %s\n", s.State, sha, s.Description)
	return nil
}
