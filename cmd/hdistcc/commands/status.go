package commands

import (
	"github.com/spf13/cobra"

	"github.com/imamik/hdistcc/cmd/hdistcc/handlers"
)

// Status returns the status command.
func Status(opts *handlers.GlobalOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the fleet's nodes and their readiness",
		Long: `Status lists the running nodes of the fleet and checks that each one
finished its setup. It never creates or deletes anything.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Status(cmd.Context(), opts, asJSON)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the result as JSON")

	return cmd
}
