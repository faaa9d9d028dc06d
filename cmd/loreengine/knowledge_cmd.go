package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/lorelabs/loreengine/knowledge"
	"github.com/spf13/cobra"
)

func newIngestCmd() *cobra.Command {
	var (
		agentID string
		title   string
		topics  []string
		shared  bool
		main    bool
	)

	cmd := &cobra.Command{
		Use:   "ingest <file>...",
		Short: "Chunk, embed, and index documents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp()
			if err != nil {
				return err
			}
			defer app.Close()

			for _, path := range args {
				content, err := os.ReadFile(path)
				if err != nil {
					return err
				}

				name := filepath.Base(path)
				docTitle := title
				if docTitle == "" {
					docTitle = name
				}

				doc := knowledge.DocumentMeta{
					ID:            strings.TrimSuffix(name, filepath.Ext(name)) + "-" + uuid.NewString()[:8],
					AgentID:       agentID,
					Title:         docTitle,
					Topics:        topics,
					ReferenceFile: path,
					IsMain:        main,
					IsShared:      shared,
				}

				id, err := app.service.Ingest(cmd.Context(), doc, string(content))
				if err != nil {
					return err
				}
				fmt.Println(id)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&agentID, "agent", "default", "agent namespace for the documents")
	cmd.Flags().StringVar(&title, "title", "", "document title (defaults to file name)")
	cmd.Flags().StringSliceVar(&topics, "topics", nil, "topic labels")
	cmd.Flags().BoolVar(&shared, "shared", false, "make the documents visible to every agent")
	cmd.Flags().BoolVar(&main, "main", false, "mark the first chunk as the main record")
	return cmd
}

func newSearchCmd() *cobra.Command {
	var (
		agentID string
		limit   int
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Hybrid vector and keyword search over indexed knowledge",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp()
			if err != nil {
				return err
			}
			defer app.Close()

			results := app.service.Query(cmd.Context(), args[0], agentID, limit)
			if len(results) == 0 {
				fmt.Println("no results")
				return nil
			}

			for _, r := range results {
				fmt.Printf("%.4f  %s  %s\n", r.Score, r.ID, r.Content.Title)
				fmt.Printf("        %s\n", r.Content.Chunk)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&agentID, "agent", "default", "agent namespace to search in")
	cmd.Flags().IntVar(&limit, "limit", 10, "maximum results")
	return cmd
}

func newBackupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backup",
		Short: "Copy the knowledge database to a timestamped backup file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := newApp()
			if err != nil {
				return err
			}
			defer app.Close()

			path, err := app.sqliteStore.Backup(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Println(path)
			return nil
		},
	}
}

func newRestoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restore <backup-file>",
		Short: "Replace the knowledge database with a backup",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp()
			if err != nil {
				return err
			}
			defer app.Close()

			return app.sqliteStore.Restore(cmd.Context(), args[0])
		},
	}
}

func newClearCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every knowledge chunk",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return fmt.Errorf("refusing to clear without --yes")
			}

			app, err := newApp()
			if err != nil {
				return err
			}
			defer app.Close()

			return app.service.Clear(cmd.Context())
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "confirm deletion")
	return cmd
}
