package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/git-pkgs/jslib/internal/output"
)

// NewMissingCmd creates the missing command.
func NewMissingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "missing",
		Short: "List dependencies no installed library provides",
		Args:  cobra.NoArgs,
		RunE:  runMissing,
	}
}

func runMissing(cmd *cobra.Command, args []string) error {
	mod, err := openModule()
	if err != nil {
		return err
	}
	missing, err := mod.Missing(cmd.Context())
	if err != nil {
		return err
	}
	for _, m := range missing {
		fmt.Fprintf(cmd.OutOrStdout(), "%s requires %s %s\n",
			output.StyleNoun.Render(m.Library.Name()),
			output.StyleMissing.Render(m.Dependency),
			m.Range,
		)
	}
	return nil
}
