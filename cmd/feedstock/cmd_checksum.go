package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ochairo/feedstock/internal/domain-adapters/gateways"
	"github.com/ochairo/feedstock/internal/domain/services"
)

func newChecksumCmd(_ *app) *cobra.Command {
	var (
		hashType string
		expected string
	)

	cmd := &cobra.Command{
		Use:   "checksum <file>",
		Short: "Compute or verify the digest of a source archive",
		Example: `  feedstock checksum pathtemplater-1.0.0.dev7.tar.gz
  feedstock checksum pathtemplater-1.0.0.dev7.tar.gz --verify f407322e...`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			verifier := gateways.NewChecksumVerifier()
			out := cmd.OutOrStdout()

			if expected != "" {
				if err := verifier.VerifyChecksum(cmd.Context(), args[0], hashType, expected); err != nil {
					return err
				}
				fmt.Fprintf(out, "%s %s %s\n", successStyle.Render("✓"), args[0], labelStyle.Render(hashType+" ok"))
				return nil
			}

			if _, err := services.DigestLength(hashType); err != nil {
				return err
			}
			sum, err := verifier.CalculateChecksum(args[0], hashType)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%s  %s\n", sum, args[0])
			return nil
		},
	}

	cmd.Flags().StringVar(&hashType, "type", "sha256", "hash algorithm (md5, sha1, sha256, sha512)")
	cmd.Flags().StringVar(&expected, "verify", "", "expected hex digest; fails unless the file matches")
	return cmd
}
