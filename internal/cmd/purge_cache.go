package cmd

import (
	"github.com/spf13/cobra"

	"github.com/git-pkgs/jslib/internal/output"
)

// NewPurgeCacheCmd creates the purge-cache command.
func NewPurgeCacheCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "purge-cache",
		Short: "Remove all cached package descriptors",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mod, err := openModule()
			if err != nil {
				return err
			}
			if err := mod.PurgeCache(); err != nil {
				return err
			}
			output.Info("descriptor cache purged")
			return nil
		},
	}
}
