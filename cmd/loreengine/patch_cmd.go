package main

import (
	"fmt"
	"os"

	"github.com/lorelabs/loreengine/entity"
	"github.com/lorelabs/loreengine/store"
	"github.com/spf13/cobra"
)

func newPatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "patch",
		Short: "Manage proposed code patches",
	}

	var (
		title      string
		filePath   string
		repository string
		branch     string
		author     string
	)
	saveCmd := &cobra.Command{
		Use:   "save <patch-file>",
		Short: "Store a patch read from a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}

			app, err := newApp()
			if err != nil {
				return err
			}
			defer app.Close()

			patch, err := app.patches.Save(cmd.Context(), &entity.PatchFile{
				Title:      title,
				Content:    string(content),
				FilePath:   filePath,
				Repository: repository,
				Branch:     branch,
				Author:     author,
			})
			if err != nil {
				return err
			}
			fmt.Println(patch.ID)
			return nil
		},
	}
	saveCmd.Flags().StringVar(&title, "title", "", "patch title")
	saveCmd.Flags().StringVar(&filePath, "path", "", "target file path")
	saveCmd.Flags().StringVar(&repository, "repo", "", "target repository")
	saveCmd.Flags().StringVar(&branch, "branch", "", "target branch")
	saveCmd.Flags().StringVar(&author, "author", "", "patch author")

	var (
		listStatus string
		listRepo   string
		listLimit  int
	)
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List stored patches, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := newApp()
			if err != nil {
				return err
			}
			defer app.Close()

			patches, err := app.patches.List(cmd.Context(), store.PatchFilter{
				Status:     listStatus,
				Repository: listRepo,
				Limit:      listLimit,
			})
			if err != nil {
				return err
			}

			for _, p := range patches {
				fmt.Printf("%s  %-8s  %s\n", p.ID, p.Status, p.Title)
			}
			return nil
		},
	}
	listCmd.Flags().StringVar(&listStatus, "status", "", "filter by status")
	listCmd.Flags().StringVar(&listRepo, "repo", "", "filter by repository")
	listCmd.Flags().IntVar(&listLimit, "limit", 0, "maximum results")

	cmd.AddCommand(
		saveCmd,
		listCmd,
		&cobra.Command{
			Use:   "show <id>",
			Short: "Print one patch",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				app, err := newApp()
				if err != nil {
					return err
				}
				defer app.Close()

				patch, err := app.patches.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Printf("%s  %s  %s\n%s\n", patch.ID, patch.Status, patch.Title, patch.Content)
				return nil
			},
		},
		&cobra.Command{
			Use:   "status <id> <status>",
			Short: "Move a patch to a new status",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				app, err := newApp()
				if err != nil {
					return err
				}
				defer app.Close()

				return app.patches.UpdateStatus(cmd.Context(), args[0], args[1], nil)
			},
		},
		&cobra.Command{
			Use:   "delete <id>",
			Short: "Delete a patch",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				app, err := newApp()
				if err != nil {
					return err
				}
				defer app.Close()

				return app.patches.Delete(cmd.Context(), args[0])
			},
		},
	)

	return cmd
}

func newHistoryCmd() *cobra.Command {
	var (
		page     int
		pageSize int
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded interactions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := newApp()
			if err != nil {
				return err
			}
			defer app.Close()

			records, err := app.history.List(cmd.Context(), page, pageSize)
			if err != nil {
				return err
			}

			for _, r := range records {
				fmt.Printf("%s  [%s]  %s\n", r.Timestamp.Format("2006-01-02 15:04"), r.SessionID, r.Input)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&page, "page", 1, "page number")
	cmd.Flags().IntVar(&pageSize, "page-size", 20, "records per page")
	return cmd
}

func newInquiryCmd() *cobra.Command {
	var (
		done    bool
		skipped bool
	)

	cmd := &cobra.Command{
		Use:   "inquiries",
		Short: "Show open questions the engine wants answered",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := newApp()
			if err != nil {
				return err
			}
			defer app.Close()

			records, err := app.inquiries.List(cmd.Context(), done, skipped)
			if err != nil {
				return err
			}

			for _, r := range records {
				fmt.Printf("#%d  (importance %d)  %s\n", r.ID, r.Importance, r.Inquiry)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&done, "done", false, "show answered inquiries")
	cmd.Flags().BoolVar(&skipped, "skipped", false, "show skipped inquiries")
	return cmd
}
