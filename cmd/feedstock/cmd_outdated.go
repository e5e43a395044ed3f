package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ochairo/feedstock/internal/domain-adapters/gateways"
	"github.com/ochairo/feedstock/internal/domain/interfaces"
	"github.com/ochairo/feedstock/internal/domain/services"
)

const maxConcurrentLookups = 4

type versionStatus struct {
	name    string
	current string
	latest  string
	err     error
}

func newOutdatedCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "outdated",
		Short: "Compare recipe versions with the latest release on PyPI",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			recipes, err := a.repository().ListRecipes(cmd.Context())
			if err != nil {
				return err
			}

			fetcher := gateways.NewVersionFetcher(a.cfg.PyPIURL, a.logger)
			statuses := make([]versionStatus, 0, len(recipes))
			for _, r := range recipes {
				if !services.IsPyPISource(r.Source.URL) {
					a.logger.Debug("skipping non-PyPI source", interfaces.F("recipe", r.Name))
					continue
				}
				statuses = append(statuses, versionStatus{name: r.Name, current: r.Version})
			}

			g, ctx := errgroup.WithContext(cmd.Context())
			g.SetLimit(maxConcurrentLookups)
			for i := range statuses {
				g.Go(func() error {
					latest, err := fetcher.FetchLatestVersion(ctx, statuses[i].name)
					statuses[i].latest, statuses[i].err = latest, err
					return nil
				})
			}
			_ = g.Wait()

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tCURRENT\tLATEST\tSTATUS")
			outdated := 0
			for _, s := range statuses {
				var status string
				switch {
				case s.err != nil:
					status = errorStyle.Render(s.err.Error())
				case gateways.CompareVersions(s.latest, s.current) > 0:
					status = warningStyle.Render("outdated")
					outdated++
				default:
					status = successStyle.Render("up to date")
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.name, s.current, s.latest, status)
			}
			if err := tw.Flush(); err != nil {
				return err
			}

			if outdated > 0 {
				fmt.Fprintln(cmd.OutOrStdout(), hintStyle.Render(fmt.Sprintf("%d recipe(s) behind PyPI", outdated)))
			}
			return nil
		},
	}
}
