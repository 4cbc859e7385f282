// Package fleet orchestrates a short-lived fleet of distcc build nodes.
//
// A fleet is identified by an [Identity]: project, zone, name prefix,
// distro and, unless the fleet is global, the ownership hash of the local
// host. Node names embed that identity, so membership is a pure function
// of a node's name and the backend listing is the only source of truth.
//
// The [Orchestrator] drives four short-lived operations:
//
//   - Start provisions nodes in parallel, re-lists the fleet and waits for
//     every running node to report its readiness sentinel.
//   - Status lists the fleet and probes readiness without mutating it.
//   - Make hands the running nodes to the build dispatcher.
//   - Stop deletes every node of the fleet, whatever its backend status.
//
// Each fan-out stage runs one task per node, joins on all of them, and
// collects per-node outcomes. A node's failure is recorded on its own
// [NodeRecord] and never aborts its siblings.
package fleet
