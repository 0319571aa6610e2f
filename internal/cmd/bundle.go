package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/git-pkgs/jslib/internal/output"
)

var bundleMinify bool

// NewBundleCmd creates the bundle command.
func NewBundleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bundle",
		Short: "Create a bundle with all libraries",
		Long: `Run the optimizer over every visible library and print the bundle,
followed by the loader configuration. Dependencies no library provides are
logged as warnings; the bundle is built regardless.

Examples:
  jslib bundle --minify > static/bundle.js`,
		Args: cobra.NoArgs,
		RunE: runBundle,
	}

	cmd.Flags().BoolVarP(&bundleMinify, "minify", "m", false, "Minify the bundle")

	return cmd
}

func runBundle(cmd *cobra.Command, args []string) error {
	mod, err := openModule()
	if err != nil {
		return err
	}
	missing, err := mod.Missing(cmd.Context())
	if err != nil {
		return err
	}
	for _, m := range missing {
		output.Warn("missing dependency", "library", m.Library.Name(), "dependency", m.Dependency, "range", m.Range)
	}

	bundled, err := mod.Build(cmd.Context(), bundleMinify)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), bundled)
	return nil
}
