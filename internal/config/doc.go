// Package config loads hdistcc settings.
//
// Settings come from a YAML or JSONC file (see Load), are overlaid by CLI
// flags in the command handlers, and are checked with Validate before any
// backend call is made. Timeouts are read from HDISTCC_* environment
// variables. The package also derives the ownership hash that scopes a
// fleet to the local host and resolves the Hetzner Cloud API token.
package config
