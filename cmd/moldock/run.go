package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/moldock/moldockpipe/internal/cancel"
	"github.com/moldock/moldockpipe/internal/config"
	"github.com/moldock/moldockpipe/internal/engine"
)

var runCommand = &cobra.Command{
	Use:   "run",
	Short: "Run the pipeline end-to-end, skipping work that is already valid",
	Long: `Validates the project, computes the work plan, and executes the four
stages in order. Entities whose stored fingerprints still match are never
recomputed. Press Ctrl-C once to stop after the current batch, twice to
stop as soon as the in-flight tool call returns.`,
	RunE: runPipelineCmd,
}

var (
	runProject     string
	runResume      bool
	runDockingMode string
	runStrict      bool
	runReceptor    string
	runBatchSize   int
	runSeed        int
)

func init() {
	runCommand.Flags().StringVarP(&runProject, "project", "p", ".", "Project directory")
	runCommand.Flags().BoolVar(&runResume, "resume", false, "Continue the previous run instead of starting a new one")
	runCommand.Flags().StringVar(&runDockingMode, "docking-mode", "", "Docking mode: cpu or gpu")
	runCommand.Flags().BoolVar(&runStrict, "strict", false, "Treat validation warnings as errors")
	runCommand.Flags().StringVar(&runReceptor, "receptor", "", "Receptor file path (overrides config)")
	runCommand.Flags().IntVar(&runBatchSize, "batch-size", 0, "Docking checkpoint batch size")
	runCommand.Flags().IntVar(&runSeed, "seed", 0, "Docking random seed")

	rootCmd.AddCommand(runCommand)
}

func overridesFromFlags() config.Config {
	return config.Config{
		DockingMode:  runDockingMode,
		Strict:       runStrict,
		ReceptorPath: runReceptor,
		BatchSize:    runBatchSize,
		Docking:      config.Docking{Seed: runSeed},
	}
}

func runPipelineCmd(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	stop := &cancel.Token{}
	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)
	go func() {
		for range sigs {
			switch stop.Request() {
			case cancel.Soft:
				fmt.Fprintln(os.Stderr, "stop requested: finishing the current batch (Ctrl-C again to stop sooner)")
			case cancel.Hard:
				fmt.Fprintln(os.Stderr, "stopping as soon as the running tool returns")
			}
		}
	}()

	res, err := engine.Run(ctx, engine.Options{
		ProjectDir: runProject,
		Overrides:  overridesFromFlags(),
		Resume:     runResume,
		Stop:       stop,
	})
	if err != nil {
		return err
	}

	printOutcome(res)
	exitCode = res.ExitCode
	return nil
}

func printOutcome(res engine.RunResult) {
	switch res.ExitCode {
	case engine.ExitOK:
		fmt.Printf("Run %s completed.\n", res.RunID)
	case engine.ExitDockingPartial:
		fmt.Printf("Run %s completed with docking failures; see the manifest for per-entity reasons.\n", res.RunID)
	case engine.ExitValidationFailed:
		fmt.Fprintf(os.Stderr, "Validation failed: %s\n", res.Status.Error)
	default:
		fmt.Fprintf(os.Stderr, "Run failed at stage %s: %s\n", res.Status.FailedStage, res.Status.Error)
	}
	if res.Status.Summary != nil {
		s := res.Status.Summary
		fmt.Printf("Docked %d, failed %d. Leaderboard: %s\n", s.DockedDone, s.DockedFailed, s.LeaderboardCSV)
	}
}
