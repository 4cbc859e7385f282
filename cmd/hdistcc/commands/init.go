package commands

import (
	"github.com/spf13/cobra"

	"github.com/imamik/hdistcc/cmd/hdistcc/handlers"
	"github.com/imamik/hdistcc/internal/config"
)

// Init returns the command for interactively creating a settings file.
//
// Flags:
//
//	--output, -o: Path to output file (default "hdistcc.yaml")
func Init() *cobra.Command {
	var outputPath string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Interactively create a settings file",
		Long: `Interactively create a settings file.

The wizard asks for the zone, distribution, machine type, compile slots per
node, the SSH key and whether to firewall the nodes. A missing SSH key is
generated.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Init(cmd.Context(), outputPath)
		},
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", config.DefaultFile, "Output file path")

	return cmd
}
