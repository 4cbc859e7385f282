// Package naming provides the deterministic naming scheme for fleet nodes.
//
// Node names follow {prefix}-{distro}[-{owner}]-{index}. Because the name
// alone identifies the fleet a node belongs to, membership can be derived
// from a backend listing without any local bookkeeping.
package naming
