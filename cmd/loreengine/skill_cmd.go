package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newSkillCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "skill",
		Short: "Generate, run, and manage executable skills",
	}

	var inputs []string
	runCmd := &cobra.Command{
		Use:   "run <name>",
		Short: "Execute a skill with the given inputs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp()
			if err != nil {
				return err
			}
			defer app.Close()

			params := map[string]any{}
			for _, kv := range inputs {
				k, v, ok := strings.Cut(kv, "=")
				if !ok {
					return fmt.Errorf("input %q is not key=value", kv)
				}
				params[k] = v
			}

			result, err := app.skills.Perform(cmd.Context(), args[0], params)
			if err != nil {
				return err
			}
			fmt.Println(result.Output)
			return nil
		},
	}
	runCmd.Flags().StringArrayVar(&inputs, "input", nil, "skill input as key=value (repeatable)")

	var clearYes bool
	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove every skill artifact (boneyard copies survive)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !clearYes {
				return fmt.Errorf("refusing to clear without --yes")
			}

			app, err := newApp()
			if err != nil {
				return err
			}
			defer app.Close()

			return app.skills.Clear(cmd.Context())
		},
	}
	clearCmd.Flags().BoolVar(&clearYes, "yes", false, "confirm deletion")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "create <objective>",
			Short: "Generate, self-test, validate, and promote a skill",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				app, err := newApp()
				if err != nil {
					return err
				}
				defer app.Close()

				artifact, err := app.skills.Create(cmd.Context(), args[0])
				if artifact != nil {
					fmt.Println(artifact.Path)
				}
				return err
			},
		},
		runCmd,
		&cobra.Command{
			Use:   "list",
			Short: "List skills with their declared inputs",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				app, err := newApp()
				if err != nil {
					return err
				}
				defer app.Close()

				functions, err := app.skills.ListFunctions(cmd.Context())
				if err != nil {
					return err
				}

				for _, f := range functions {
					status := "draft"
					if f.Promoted {
						status = "promoted"
					}
					names := make([]string, 0, len(f.Parameters))
					for _, p := range f.Parameters {
						names = append(names, p.Name)
					}
					fmt.Printf("%s [%s] (%s)  %s\n", f.Name, status, strings.Join(names, ", "), f.Description)
				}
				return nil
			},
		},
		clearCmd,
	)

	return cmd
}
