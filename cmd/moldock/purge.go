package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/moldock/moldockpipe/internal/purge"
)

var purgeCommand = &cobra.Command{
	Use:   "purge",
	Short: "Delete all generated artifacts and reset the project state",
	Long: `Removes generated structures, prepared ligands, poses, logs, and
result CSVs, truncates the manifest, and clears the run state. Inputs,
configuration, and the receptor are kept. Asks for confirmation twice
unless --yes is given.`,
	RunE: purgeCmd,
}

var (
	purgeProject string
	purgeYes     bool
)

func init() {
	purgeCommand.Flags().StringVarP(&purgeProject, "project", "p", ".", "Project directory")
	purgeCommand.Flags().BoolVarP(&purgeYes, "yes", "y", false, "Skip both confirmation prompts")

	rootCmd.AddCommand(purgeCommand)
}

func purgeCmd(_ *cobra.Command, _ []string) error {
	abs, err := filepath.Abs(purgeProject)
	if err != nil {
		return err
	}
	if !purge.LooksLikeProject(abs) {
		return fmt.Errorf("%s does not look like a pipeline project; refusing to purge", abs)
	}

	if !purgeYes {
		reader := bufio.NewReader(os.Stdin)
		if !confirm(reader, fmt.Sprintf("Purge ALL generated data under %s? [y/N] ", abs)) {
			fmt.Println("Aborted.")
			return nil
		}
		if !confirm(reader, "This cannot be undone. Type y again to proceed: ") {
			fmt.Println("Aborted.")
			return nil
		}
	}

	res, err := purge.Purge(abs)
	if err != nil {
		return err
	}
	fmt.Printf("Removed %d files, truncated %d CSVs, cleared run state.\n",
		res.RemovedFiles, len(res.TruncatedCSVs))
	return nil
}

func confirm(reader *bufio.Reader, prompt string) bool {
	fmt.Print(prompt)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(line), "y")
}
