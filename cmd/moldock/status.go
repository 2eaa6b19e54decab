package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/moldock/moldockpipe/internal/engine"
	"github.com/moldock/moldockpipe/internal/observability"
)

var statusCommand = &cobra.Command{
	Use:   "status",
	Short: "Show the current or most recent run",
	RunE:  statusCmd,
}

var statusProject string

func init() {
	statusCommand.Flags().StringVarP(&statusProject, "project", "p", ".", "Project directory")

	rootCmd.AddCommand(statusCommand)
}

func statusCmd(_ *cobra.Command, _ []string) error {
	info, err := engine.Status(statusProject)
	if err != nil {
		return err
	}
	observability.NewPrinter(os.Stdout).PrintRunStatus(&info.Run, info.ManifestRows)
	return nil
}
