// Package hcloud implements the fleet compute backend on Hetzner Cloud.
//
// Client satisfies fleet.Provider, fleet.KeyManager and
// fleet.FirewallManager on top of hcloud-go. A zone is a Hetzner location
// and an operation is one or more Hetzner actions, encoded in the
// operation ID as a comma-separated list of action IDs.
//
// # Retries
//
// API requests that are rejected because a resource is locked or
// temporarily unavailable are retried with exponential backoff; invalid
// parameters are fatal. Deletions are idempotent: a resource that no
// longer exists is reported as fleet.ErrNodeNotFound for servers and
// ignored for SSH keys and firewalls.
//
// # Concurrency
//
// The underlying hcloud.Client is safe for concurrent use, so one Client
// is shared by every fan-out task of an operation.
package hcloud
