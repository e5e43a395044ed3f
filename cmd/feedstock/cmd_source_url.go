package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ochairo/feedstock/internal/domain/interfaces"
	"github.com/ochairo/feedstock/internal/domain/services"
)

func newSourceURLCmd(a *app) *cobra.Command {
	var showFilename bool

	cmd := &cobra.Command{
		Use:   "source-url <name> <version> [file_ext]",
		Short: "Print the PyPI source archive URL for a package version",
		Example: `  feedstock source-url pathtemplater 1.0.0.dev7
  feedstock source-url pathtemplater 1.0.0.dev7 zip --filename`,
		Args: cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ext := "tar.gz"
			if len(args) == 3 {
				ext = args[2]
			}

			var (
				out string
				err error
			)
			if showFilename {
				out, err = services.ArchiveFilename(args[0], args[1], ext)
			} else {
				out, err = services.SourceURL(args[0], args[1], ext)
			}
			if err != nil {
				return err
			}
			a.logger.Debug("derived source location", interfaces.F("name", args[0]), interfaces.F("version", args[1]), interfaces.F("file_ext", ext))

			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}

	cmd.Flags().BoolVar(&showFilename, "filename", false, "print the archive file name (source.fn) instead of the URL")
	return cmd
}
