package handlers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/imamik/hdistcc/internal/credentials"
)

// tokenStore is the persistent home of the API token.
type tokenStore interface {
	Set(token string) error
	Delete() error
}

// Factory function variables for auth - can be replaced in tests.
var (
	newTokenStore = func() tokenStore { return credentials.Keyring{} }

	promptToken = func(ctx context.Context) (string, error) {
		var token string
		input := huh.NewInput().
			Title("Hetzner Cloud API token").
			Description("Read & Write token from the Cloud Console (Security > API Tokens)").
			EchoMode(huh.EchoModePassword).
			Validate(func(s string) error {
				if strings.TrimSpace(s) == "" {
					return errors.New("required")
				}
				return nil
			}).
			Value(&token)
		err := huh.NewForm(huh.NewGroup(input)).RunWithContext(ctx)
		return token, err
	}
)

// Login stores token in the OS keyring, prompting for it when empty.
func Login(ctx context.Context, token string) error {
	if token == "" {
		var err error
		if token, err = promptToken(ctx); err != nil {
			return fmt.Errorf("login canceled: %w", err)
		}
	}
	if err := newTokenStore().Set(token); err != nil {
		return err
	}
	fmt.Fprintln(stdout, "Token stored in the OS keyring.")
	return nil
}

// Logout removes the stored token.
func Logout(_ context.Context) error {
	if err := newTokenStore().Delete(); err != nil {
		return err
	}
	fmt.Fprintln(stdout, "Token removed from the OS keyring.")
	return nil
}
