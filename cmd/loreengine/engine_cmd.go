package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newOfflineCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "offline",
		Short: "Crash-resumable batch ingestion",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "prepare",
			Short: "Stage inbox documents and estimate processing time",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				app, err := newApp()
				if err != nil {
					return err
				}
				defer app.Close()

				report, err := app.engine.Prepare(cmd.Context())
				if err != nil {
					return err
				}

				for _, f := range report.Files {
					fmt.Printf("%s  %d chunks  ~%.0fs\n", f.StagedPath, f.EstimatedChunks, f.EstimatedProcessingTime)
				}
				fmt.Printf("total: %d files, ~%.0fs\n", len(report.Files), report.TotalEstimatedSeconds)
				return nil
			},
		},
		&cobra.Command{
			Use:   "process",
			Short: "Run the staged batch to completion, resuming if interrupted",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				app, err := newApp()
				if err != nil {
					return err
				}
				defer app.Close()

				return app.engine.Process(cmd.Context())
			},
		},
	)

	return cmd
}

func newRunCmd() *cobra.Command {
	var tokens int

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run online ingestion cycles over the inbox",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := newApp()
			if err != nil {
				return err
			}
			defer app.Close()

			app.engine.AddTokens(tokens)
			return app.engine.Run(cmd.Context())
		},
	}

	cmd.Flags().IntVar(&tokens, "tokens", 1, "number of cycles to run before idling out")
	return cmd
}
