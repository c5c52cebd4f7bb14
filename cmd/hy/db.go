package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zulandar/humpyard/internal/db"
)

func newDBCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Run history database commands",
	}

	cmd.AddCommand(newDBInitCmd())
	return cmd
}

func newDBInitCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize the run history database",
		Long:  "Connects to the configured sqlite or MySQL database and migrates the run history tables. `hy run` does this on its own; use init to check connectivity up front.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBInit(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "humpyard.yaml", "path to Humpyard config file")
	return cmd
}

func runDBInit(cmd *cobra.Command, configPath string) error {
	out := cmd.OutOrStdout()

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Loaded config for %s from %s\n", cfg.Root, configPath)

	if _, err := db.Open(cfg); err != nil {
		return err
	}
	switch cfg.Database.Driver {
	case "mysql":
		fmt.Fprintf(out, "Connected to MySQL at %s:%d/%s\n", cfg.Database.Host, cfg.Database.Port, cfg.Database.Name)
	default:
		fmt.Fprintf(out, "Opened sqlite database %s\n", cfg.DatabasePath())
	}
	fmt.Fprintf(out, "Migrated %d tables\n", len(db.AllModels()))
	return nil
}
