// Package dispatch runs a local build against a fleet through distcc.
//
// The build inherits the caller's environment plus DISTCC_HOSTS, which
// lists every node as an SSH host, and runs under distcc-pump when pump
// mode is on. distcc spawns ssh through a generated wrapper so that
// ephemeral host keys are accepted into a private known_hosts file
// instead of prompting.
package dispatch
