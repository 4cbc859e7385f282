package commands

import (
	"github.com/spf13/cobra"

	"github.com/imamik/hdistcc/cmd/hdistcc/handlers"
)

// Stop returns the stop command.
func Stop(opts *handlers.GlobalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Delete every node of the fleet",
		Long: `Stop deletes all nodes of the fleet whatever their state, then removes
the fleet's SSH key and firewall. An empty fleet is not an error.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Stop(cmd.Context(), opts)
		},
	}
}
