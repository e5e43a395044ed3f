package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ochairo/feedstock/internal/domain/entities"
)

func newListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the recipes in the recipes directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			recipes, err := a.repository().ListRecipes(cmd.Context())
			if err != nil {
				return err
			}
			if len(recipes) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), hintStyle.Render("no recipes found in "+a.cfg.RecipesDir))
				return nil
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tVERSION\tSUMMARY")
			for _, r := range recipes {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", r.Name, r.Version, r.AboutValue(entities.AboutSummary))
			}
			return tw.Flush()
		},
	}
}
