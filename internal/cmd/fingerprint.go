package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewFingerprintCmd creates the fingerprint command.
func NewFingerprintCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fingerprint",
		Short: "Print the hash of the bundle sources",
		Long: `Print a hash over the sources that make up the bundle. It changes whenever
a bundled script changes and does not run the optimizer.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mod, err := openModule()
			if err != nil {
				return err
			}
			sum, err := mod.Fingerprint(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), sum)
			return nil
		},
	}
}
