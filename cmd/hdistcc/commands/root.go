// Package commands defines the CLI command structure and flag bindings.
//
// This package contains cobra command definitions that handle argument parsing,
// flag binding, and validation. Command execution is delegated to handler
// functions in the handlers package.
package commands

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/imamik/hdistcc/cmd/hdistcc/handlers"
	"github.com/imamik/hdistcc/internal/config"
)

// Root returns the root command for the hdistcc CLI.
func Root() *cobra.Command {
	opts := &handlers.GlobalOptions{}

	cmd := &cobra.Command{
		Use:          "hdistcc",
		Short:        "Run a distcc build fleet on Hetzner Cloud",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().AddFlagSet(globalFlags(opts))

	// Fleet commands
	cmd.AddCommand(Start(opts))
	cmd.AddCommand(Status(opts))
	cmd.AddCommand(Make(opts))
	cmd.AddCommand(Stop(opts))

	// Setup and utility commands
	cmd.AddCommand(Init())
	cmd.AddCommand(Auth())
	cmd.AddCommand(Version())
	cmd.AddCommand(Completion())

	return cmd
}

// globalFlags binds the flags every fleet command shares.
func globalFlags(opts *handlers.GlobalOptions) *pflag.FlagSet {
	fs := pflag.NewFlagSet("global", pflag.ContinueOnError)
	fs.StringVarP(&opts.ConfigPath, "config", "c", "", "Path to the settings file (default "+config.DefaultFile+")")
	fs.StringVar(&opts.Zone, "zone", "", "Hetzner location, overrides the settings file")
	fs.StringVar(&opts.Project, "project", "", "Project name carried in host descriptors")
	fs.StringVar(&opts.Prefix, "prefix", "", "Node name prefix")
	fs.StringVar(&opts.Distro, "distro", "", "Node distribution (ubuntu, debian)")
	fs.BoolVar(&opts.Global, "global", false, "Operate on the fleets of every owner")
	fs.DurationVar(&opts.Timeout, "timeout", 0, "Deadline for the whole operation (default 30m)")
	fs.BoolVarP(&opts.Verbose, "verbose", "v", false, "Log poll progress and debug detail")
	fs.BoolVar(&opts.Trace, "trace", false, "Print OpenTelemetry spans to stderr")
	fs.StringVar(&opts.MetricsFile, "metrics-file", "", "Write Prometheus metrics to this textfile on exit")
	return fs
}
