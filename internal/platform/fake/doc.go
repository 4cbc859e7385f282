// Package fake provides an in-memory compute backend and readiness probe.
//
// Backend and Prober implement the fleet collaborator interfaces with
// scriptable behaviour: failing creates, operations that never complete,
// transient poll errors and nodes that become ready after k probes. They
// are safe for concurrent use and record every call for assertions.
package fake
