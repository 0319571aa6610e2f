package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/git-pkgs/jslib/internal/output"
)

var upgradePatchDefine bool

// NewUpgradeCmd creates the upgrade command.
func NewUpgradeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "upgrade <library>",
		Short: "Upgrade an outdated library",
		Long: `Reinstall a library when a newer version is published. The library keeps
its define and path.`,
		Args: cobra.ExactArgs(1),
		RunE: runUpgrade,
	}

	cmd.Flags().BoolVar(&upgradePatchDefine, "patch-define", false,
		"Insert the define as module id into the define() call")

	return cmd
}

func runUpgrade(cmd *cobra.Command, args []string) error {
	mod, err := openModule()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	current, err := mod.Get(ctx, args[0])
	if err != nil {
		return err
	}
	lib, upgraded, err := mod.Upgrade(ctx, args[0], upgradePatchDefine)
	if err != nil {
		return err
	}

	name := output.StyleNoun.Render(current.Name())
	if !upgraded {
		fmt.Fprintf(cmd.OutOrStdout(), "%s-%s is up to date\n", name, current.Version())
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "upgraded %s %s -> %s\n",
		name, current.Version(), output.StyleNewer.Render(lib.Version()))
	return nil
}
