package main

import (
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/zulandar/humpyard/internal/dashboard"
)

func newDashboardCmd() *cobra.Command {
	var (
		configPath string
		port       int
	)

	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Start the read-only web dashboard",
		Long:  "Serves migration progress and run history as JSON, with a server-sent event stream of progress updates.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDashboard(cmd, configPath, port)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "humpyard.yaml", "path to Humpyard config file")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "port to listen on (overrides dashboard.port)")
	return cmd
}

func runDashboard(cmd *cobra.Command, configPath string, port int) error {
	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	if port <= 0 {
		port = cfg.Dashboard.Port
	}

	ctx, stop := signalContext()
	defer stop()

	return dashboard.Start(ctx, dashboard.StartOpts{
		DB:         gormDB,
		Fs:         afero.NewOsFs(),
		StatusPath: cfg.StatusPath(),
		Port:       port,
		Out:        cmd.OutOrStdout(),
	})
}
