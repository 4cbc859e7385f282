package config

import (
	"errors"
	"os"
	"strings"
)

// TokenEnv is the environment variable holding the Hetzner Cloud API token.
const TokenEnv = "HCLOUD_TOKEN"

// TokenStore is a persistent token source such as the OS keyring.
type TokenStore interface {
	// Get returns the stored token. A missing token is reported as ErrNoToken.
	Get() (string, error)
}

// ErrNoToken is returned by a TokenStore holding no token.
var ErrNoToken = errors.New("no token stored")

// ResolveToken returns the API token from HCLOUD_TOKEN or, when unset,
// from store. store may be nil.
func ResolveToken(store TokenStore) (string, error) {
	if token := strings.TrimSpace(os.Getenv(TokenEnv)); token != "" {
		return token, nil
	}
	if store != nil {
		token, err := store.Get()
		if err == nil && token != "" {
			return token, nil
		}
		if err != nil && !errors.Is(err, ErrNoToken) {
			return "", &ConfigError{Message: "failed to read token from keyring", Err: err}
		}
	}
	return "", &ConfigError{Message: "no API token: set " + TokenEnv + " or run 'hdistcc auth login'"}
}
