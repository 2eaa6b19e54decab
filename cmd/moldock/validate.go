package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/moldock/moldockpipe/internal/adapters"
	"github.com/moldock/moldockpipe/internal/config"
	"github.com/moldock/moldockpipe/internal/engine"
	"github.com/moldock/moldockpipe/internal/observability"
)

var validateCommand = &cobra.Command{
	Use:   "validate",
	Short: "Run preflight validation without executing anything",
	RunE:  validateCmd,
}

var (
	validateProject string
	validateStrict  bool
)

func init() {
	validateCommand.Flags().StringVarP(&validateProject, "project", "p", ".", "Project directory")
	validateCommand.Flags().BoolVar(&validateStrict, "strict", false, "Treat validation warnings as errors")

	rootCmd.AddCommand(validateCommand)
}

func validateCmd(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load(validateProject, config.Config{Strict: validateStrict})
	if err != nil {
		return err
	}
	report := engine.Validate(ctx, validateProject, cfg, adapters.ExecRunner{})

	observability.NewPrinter(os.Stdout).PrintValidation(&report)
	if !report.OK() {
		exitCode = engine.ExitValidationFailed
	}
	return nil
}
