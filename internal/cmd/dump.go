package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewDumpConfigCmd creates the dump-config command.
func NewDumpConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dump-config",
		Short: "Print the loader configuration script",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mod, err := openModule()
			if err != nil {
				return err
			}
			conf, err := mod.RenderConfig(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), conf)
			return nil
		},
	}
}

// NewDumpLoaderCmd creates the dump-loader command.
func NewDumpLoaderCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dump-loader",
		Short: "Print the standalone loader with its configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mod, err := openModule()
			if err != nil {
				return err
			}
			src, err := mod.RenderLoader(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), src)
			return nil
		},
	}
}
