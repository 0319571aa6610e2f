package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/git-pkgs/jslib"
	"github.com/git-pkgs/jslib/internal/output"
)

var installPatchDefine bool

// NewInstallCmd creates the install command.
func NewInstallCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "install <package> [define]",
		Short: "Install a library",
		Long: `Install the newest version of a package from the registry.

The entry script of the package is written to <define>.js under the library
root, define defaulting to the package name.

Examples:
  # Install jquery as jquery.js
  jslib install jquery

  # Install as vendor/jquery.js and name the module in its define() call
  jslib install jquery vendor/jquery --patch-define`,
		Args: cobra.RangeArgs(1, 2),
		RunE: runInstall,
	}

	cmd.Flags().BoolVar(&installPatchDefine, "patch-define", false,
		"Insert the define as module id into the define() call")

	return cmd
}

func runInstall(cmd *cobra.Command, args []string) error {
	mod, err := openModule()
	if err != nil {
		return err
	}

	opts := jslib.InstallOptions{PatchDefine: installPatchDefine}
	if len(args) > 1 {
		opts.Define = args[1]
	}

	lib, err := mod.Install(cmd.Context(), args[0], opts)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "installed %s in %s\n",
		output.StyleNoun.Render(lib.Name()+"-"+lib.Version()),
		output.StyleDim.Render(lib.Path()),
	)
	return nil
}
