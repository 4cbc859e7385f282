package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/imamik/hdistcc/cmd/hdistcc/handlers"
)

// Start returns the start command.
func Start(opts *handlers.GlobalOptions) *cobra.Command {
	var (
		qty             int
		skipFullStartup bool
	)

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Create build nodes and wait until they are ready",
		Long: `Start creates --qty nodes in the configured zone and waits for each
node's startup script to finish installing distcc.

Start refuses to run when the fleet already has running nodes. Nodes that
fail to come up are listed in the summary; the others stay usable.

Example:
  hdistcc start --qty 4
  hdistcc start --qty 2 --skip-full-startup`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if qty < 1 {
				return fmt.Errorf("--qty must be at least 1")
			}
			return handlers.Start(cmd.Context(), opts, qty, skipFullStartup)
		},
	}

	cmd.Flags().IntVarP(&qty, "qty", "n", 0, "Number of nodes to create (required)")
	cmd.Flags().BoolVar(&skipFullStartup, "skip-full-startup", false, "Return once nodes run, without waiting for setup")
	_ = cmd.MarkFlagRequired("qty")

	return cmd
}
