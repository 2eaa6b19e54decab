// Package main provides the entry point for the moldock pipeline CLI.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "moldock",
	Short: "Incremental molecular docking pipeline",
	Long:  "moldock orchestrates the four-stage docking pipeline (screening -> structure generation -> ligand preparation -> docking) incrementally: fingerprint-based staleness detection reruns only the work whose inputs changed.",
}

// exitCode carries a pipeline outcome (partial success, validation
// failure) out of the command handlers; cobra errors stay exit 1.
var exitCode int

var verbose bool

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Print debug-level logs")
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	cobra.OnInitialize(setupLogging)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	os.Exit(exitCode)
}

func setupLogging() {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}
