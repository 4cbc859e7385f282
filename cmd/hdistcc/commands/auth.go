package commands

import (
	"github.com/spf13/cobra"

	"github.com/imamik/hdistcc/cmd/hdistcc/handlers"
)

// Auth returns the auth command group.
func Auth() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage the stored Hetzner Cloud API token",
		Long: `Manage the API token kept in the OS keyring.

The HCLOUD_TOKEN environment variable takes precedence over the stored
token.`,
	}
	cmd.AddCommand(authLogin())
	cmd.AddCommand(authLogout())
	return cmd
}

func authLogin() *cobra.Command {
	var token string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store an API token in the OS keyring",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Login(cmd.Context(), token)
		},
	}

	cmd.Flags().StringVar(&token, "token", "", "Token to store (prompted when omitted)")

	return cmd
}

func authLogout() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the stored API token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Logout(cmd.Context())
		},
	}
}
