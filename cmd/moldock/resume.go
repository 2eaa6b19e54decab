package main

import (
	"github.com/spf13/cobra"
)

var resumeCommand = &cobra.Command{
	Use:   "resume",
	Short: "Continue the previous run where it left off",
	Long: `Equivalent to "run --resume": keeps the previous run's identity and
reruns only the stages with pending work. Safe after a crash or an
interrupted run; completed batches are never recomputed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		runResume = true
		return runPipelineCmd(cmd, args)
	},
}

func init() {
	resumeCommand.Flags().StringVarP(&runProject, "project", "p", ".", "Project directory")

	rootCmd.AddCommand(resumeCommand)
}
