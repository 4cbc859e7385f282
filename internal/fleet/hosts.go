package fleet

import (
	"fmt"
	"strings"
)

// DefaultSlotsPerNode is the concurrent compile jobs offered by one node.
const DefaultSlotsPerNode = 2

// HostDescriptor is one build host handed to the dispatcher.
type HostDescriptor struct {
	Host    string `json:"host"`
	Address string `json:"address,omitempty"`
	Zone    string `json:"zone"`
	Project string `json:"project"`
	Slots   int    `json:"slots"`
}

// String renders the host the way distcc's host list expects it.
func (h HostDescriptor) String() string {
	addr := h.Address
	if addr == "" {
		addr = h.Host
	}
	return fmt.Sprintf("%s/%d", addr, h.Slots)
}

// BuildHosts describes every node of view as a build host. slotsPerNode
// below one is treated as one.
func BuildHosts(id Identity, view FleetView, slotsPerNode int) []HostDescriptor {
	if slotsPerNode < 1 {
		slotsPerNode = 1
	}
	hosts := make([]HostDescriptor, 0, view.Len())
	for _, n := range view.Nodes {
		hosts = append(hosts, HostDescriptor{
			Host:    n.Name,
			Address: n.Address,
			Zone:    id.Zone,
			Project: id.Project,
			Slots:   slotsPerNode,
		})
	}
	return hosts
}

// RecommendedParallelism is twice the total slot count, so that
// preprocessing and network latency do not leave remote slots idle.
func RecommendedParallelism(hosts []HostDescriptor) int {
	total := 0
	for _, h := range hosts {
		total += h.Slots
	}
	return 2 * total
}

// HostList joins hosts for display.
func HostList(hosts []HostDescriptor) string {
	parts := make([]string, len(hosts))
	for i, h := range hosts {
		parts[i] = h.String()
	}
	return strings.Join(parts, " ")
}
