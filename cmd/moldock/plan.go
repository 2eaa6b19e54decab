package main

import (
	"context"
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/moldock/moldockpipe/internal/config"
	"github.com/moldock/moldockpipe/internal/engine"
	"github.com/moldock/moldockpipe/internal/observability"
)

var planCommand = &cobra.Command{
	Use:   "plan",
	Short: "Show what the next run would do, without executing anything",
	Long: `Computes the staleness-based work plan: which entities each stage
would process and why. Read-only; the manifest and run state are not
touched.`,
	RunE: planCmd,
}

var planProject string

func init() {
	planCommand.Flags().StringVarP(&planProject, "project", "p", ".", "Project directory")

	rootCmd.AddCommand(planCommand)
}

func planCmd(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	plan, report, err := engine.Plan(ctx, planProject, config.Config{}, nil)
	printer := observability.NewPrinter(os.Stdout)
	var verr *engine.ValidationError
	if errors.As(err, &verr) {
		printer.PrintValidation(&report)
		exitCode = engine.ExitValidationFailed
		return nil
	}
	if err != nil {
		return err
	}

	printer.PrintWorkPlan(&plan)
	return nil
}
