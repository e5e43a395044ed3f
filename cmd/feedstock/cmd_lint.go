package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ochairo/feedstock/internal/domain/entities"
)

const maxConcurrentLint = 8

type lintResult struct {
	path   string
	report *entities.ValidationReport
	err    error
}

func newLintCmd(a *app) *cobra.Command {
	var strict bool

	cmd := &cobra.Command{
		Use:   "lint [recipe...]",
		Short: "Check recipes against the schema and build contract",
		Long:  "Lint parses each recipe and reports schema problems, malformed checksums, source URL mismatches and build script errors. With no arguments every recipe in the recipes directory is checked.",
		RunE: func(cmd *cobra.Command, args []string) error {
			repo := a.repository()

			paths := args
			if len(paths) == 0 {
				all, err := repo.RecipePaths()
				if err != nil {
					return err
				}
				paths = all
			} else {
				for i, name := range args {
					p, err := repo.RecipePath(name)
					if err != nil {
						return err
					}
					paths[i] = p
				}
			}
			if len(paths) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), hintStyle.Render("no recipes found in "+a.cfg.RecipesDir))
				return nil
			}

			results := make([]lintResult, len(paths))
			parser := a.parser()
			validator := a.validator()

			g, ctx := errgroup.WithContext(cmd.Context())
			g.SetLimit(maxConcurrentLint)
			for i, p := range paths {
				g.Go(func() error {
					if err := ctx.Err(); err != nil {
						return err
					}
					results[i].path = p
					recipe, err := parser.ParseFile(p)
					if err != nil {
						results[i].err = err
						return nil
					}
					results[i].report = validator.Validate(recipe)
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}

			failed := 0
			out := cmd.OutOrStdout()
			for _, r := range results {
				if !printLintResult(out, r, strict) {
					failed++
				}
			}

			if failed > 0 {
				return &exitError{code: 1, err: fmt.Errorf("%d of %d recipes failed lint", failed, len(results))}
			}
			fmt.Fprintln(out, successStyle.Render(fmt.Sprintf("%d recipes passed lint", len(results))))
			return nil
		},
	}

	cmd.Flags().BoolVar(&strict, "strict", false, "treat warnings as errors")
	return cmd
}

// printLintResult writes one recipe's findings and reports whether it passed
func printLintResult(w io.Writer, r lintResult, strict bool) bool {
	if r.err != nil {
		fmt.Fprintf(w, "%s %s\n", errorStyle.Render("✗"), r.path)
		fmt.Fprintf(w, "    %s %v\n", errorStyle.Render("error"), r.err)
		return false
	}

	ok := r.report.Valid() && (!strict || len(r.report.Warnings()) == 0)
	mark := successStyle.Render("✓")
	if !ok {
		mark = errorStyle.Render("✗")
	}
	fmt.Fprintf(w, "%s %s %s\n", mark, r.report.Recipe.Name, labelStyle.Render(r.path))

	for _, issue := range r.report.Issues {
		label := warningStyle.Render("warn ")
		if issue.Severity == entities.SeverityError {
			label = errorStyle.Render("error")
		}
		fmt.Fprintf(w, "    %s %s: %s\n", label, issue.Field, issue.Message)
	}
	return ok
}
