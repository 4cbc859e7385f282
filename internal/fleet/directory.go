package fleet

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/imamik/hdistcc/internal/util/naming"
)

// Directory lists the nodes that belong to a fleet.
// It keeps no state: every call queries the backend.
type Directory struct {
	provider Provider
}

// NewDirectory creates a directory over provider.
func NewDirectory(provider Provider) *Directory {
	return &Directory{provider: provider}
}

// List returns the fleet's nodes in id's project and zone. Nodes that are
// not running are dropped unless includeTerminated is set. An empty fleet
// is an empty view, not an error.
//
// Nodes are ordered by their ordinal, then name, so output is stable
// whatever order the backend returns.
func (d *Directory) List(ctx context.Context, id Identity, includeTerminated bool) (FleetView, error) {
	all, err := d.provider.ListNodes(ctx, id.Project, id.Zone)
	if err != nil {
		return FleetView{}, fmt.Errorf("failed to list nodes in %s/%s: %w", id.Project, id.Zone, err)
	}

	var nodes []NodeStatus
	for _, n := range all {
		if !id.Matches(n.Name) {
			continue
		}
		if !includeTerminated && !n.Running() {
			continue
		}
		nodes = append(nodes, n)
	}

	slices.SortStableFunc(nodes, func(a, b NodeStatus) int {
		if c := cmp.Compare(naming.TrailingIndex(a.Name), naming.TrailingIndex(b.Name)); c != 0 {
			return c
		}
		return cmp.Compare(a.Name, b.Name)
	})

	return FleetView{Nodes: nodes}, nil
}
