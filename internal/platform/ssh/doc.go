// Package ssh runs commands on fleet nodes over SSH.
//
// Client dials with key-based authentication and optional retry. Prober
// builds on it to check a node's readiness sentinel: it resolves the
// node's address from the backend listing, skips the SSH handshake when
// port 22 is closed and reports any failure as "not ready".
//
// Host key verification is disabled by default: fleet nodes are
// ephemeral and get a fresh host key on every start.
package ssh
