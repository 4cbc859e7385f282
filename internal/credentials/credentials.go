// Package credentials stores the Hetzner Cloud API token in the OS keyring.
package credentials

import (
	"errors"
	"fmt"
	"strings"

	"github.com/zalando/go-keyring"

	"github.com/imamik/hdistcc/internal/config"
)

const (
	service = "hdistcc"
	account = "hcloud-token"
)

// Keyring is a config.TokenStore backed by the OS keyring.
type Keyring struct{}

// Get implements config.TokenStore.
func (Keyring) Get() (string, error) {
	token, err := keyring.Get(service, account)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", config.ErrNoToken
	}
	if err != nil {
		return "", fmt.Errorf("keyring lookup failed: %w", err)
	}
	return token, nil
}

// Set stores token, replacing any previous one.
func (Keyring) Set(token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return errors.New("token is empty")
	}
	if err := keyring.Set(service, account, token); err != nil {
		return fmt.Errorf("failed to store token: %w", err)
	}
	return nil
}

// Delete removes the stored token. Deleting a missing token is not an error.
func (Keyring) Delete() error {
	err := keyring.Delete(service, account)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("failed to delete token: %w", err)
	}
	return nil
}
