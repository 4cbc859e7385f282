package commands

import (
	"github.com/spf13/cobra"

	"github.com/imamik/hdistcc/cmd/hdistcc/handlers"
)

// Make returns the make command.
func Make(opts *handlers.GlobalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "make [-- make args...]",
		Short: "Run the build distributed across the fleet",
		Long: `Make runs the configured build command locally with DISTCC_HOSTS
pointing at every running node and -j set to twice the fleet's slots.
Arguments after -- are passed to the build command.

Example:
  hdistcc make
  hdistcc make -- -C build all`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return handlers.Make(cmd.Context(), opts, args)
		},
	}
}
