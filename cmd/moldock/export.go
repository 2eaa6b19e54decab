package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/moldock/moldockpipe/internal/artifacts"
	"github.com/moldock/moldockpipe/internal/engine"
	"github.com/moldock/moldockpipe/internal/manifest"
)

var exportCommand = &cobra.Command{
	Use:   "export",
	Short: "Rebuild the derived result CSVs from the manifest",
	Long: `Regenerates results/summary.csv, results/leaderboard.csv, and
results/engine_report.csv from the current manifest contents. Useful
after hand-inspecting or repairing the manifest.`,
	RunE: exportCmd,
}

var exportProject string

func init() {
	exportCommand.Flags().StringVarP(&exportProject, "project", "p", ".", "Project directory")

	rootCmd.AddCommand(exportCommand)
}

func exportCmd(_ *cobra.Command, _ []string) error {
	records, err := manifest.Load(artifacts.ManifestPath(exportProject))
	if err != nil {
		return err
	}
	if err := artifacts.WriteSummaries(exportProject, records); err != nil {
		return err
	}
	reportPath, err := engine.ExportReport(exportProject, records)
	if err != nil {
		return err
	}
	fmt.Printf("Exported %s, %s, %s\n",
		artifacts.SummaryPath(exportProject), artifacts.LeaderboardPath(exportProject), reportPath)
	return nil
}
