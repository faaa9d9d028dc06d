package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "loreengine",
		Short:         "Local-first knowledge store and skill lifecycle engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		newIngestCmd(),
		newSearchCmd(),
		newOfflineCmd(),
		newRunCmd(),
		newSkillCmd(),
		newPatchCmd(),
		newHistoryCmd(),
		newInquiryCmd(),
		newBackupCmd(),
		newRestoreCmd(),
		newClearCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
