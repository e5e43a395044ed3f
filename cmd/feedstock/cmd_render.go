package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"
)

func newRenderCmd(a *app) *cobra.Command {
	var showVars bool

	cmd := &cobra.Command{
		Use:   "render <recipe>",
		Short: "Print a recipe with its template tags expanded",
		Example: `  feedstock render pathtemplater
  feedstock render recipes/pathtemplater/meta.yaml --vars`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := a.repository().RecipePath(args[0])
			if err != nil {
				return err
			}

			//nolint:gosec // G304: recipe path resolved from the recipes directory or given by the user
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("failed to read recipe: %w", err)
			}

			result, err := a.parser().Render(data)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}

			out := cmd.OutOrStdout()
			if showVars {
				names := make([]string, 0, len(result.Variables))
				for name := range result.Variables {
					names = append(names, name)
				}
				sort.Strings(names)
				for _, name := range names {
					fmt.Fprintf(out, "%s = %q\n", name, result.Variables[name])
				}
				return nil
			}

			_, err = out.Write(result.Output)
			return err
		},
	}

	cmd.Flags().BoolVar(&showVars, "vars", false, "print the {% set %} variables instead of the rendered document")
	return cmd
}
