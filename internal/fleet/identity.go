package fleet

import (
	"strings"

	"github.com/imamik/hdistcc/internal/util/naming"
)

// Identity identifies one logical fleet in a shared project and zone.
type Identity struct {
	Project   string
	Zone      string
	Prefix    string
	Distro    string
	OwnerHash string
	Global    bool
}

// BaseName returns the name every node of this fleet starts with.
func (id Identity) BaseName() string {
	return naming.FleetBase(id.Prefix, id.Distro, id.OwnerHash, id.Global)
}

// NodeName returns the name of the node at index.
func (id Identity) NodeName(index int) string {
	return naming.Node(id.BaseName(), index)
}

// Matches reports whether a node name belongs to this fleet.
//
// A non-global identity only matches {prefix}-{distro}-{owner}-{n}. A
// global identity matches {prefix}-{distro}-{n} as well as nodes of any
// owner, {prefix}-{distro}-{hash}-{n}.
func (id Identity) Matches(name string) bool {
	base := id.BaseName()
	if _, ok := naming.NodeIndex(base, name); ok {
		return true
	}
	if !id.Global {
		return false
	}

	rest, ok := strings.CutPrefix(name, base+"-")
	if !ok {
		return false
	}
	owner, _, found := strings.Cut(rest, "-")
	if !found || !naming.IsOwnerHash(owner) {
		return false
	}
	_, ok = naming.NodeIndex(base+"-"+owner, name)
	return ok
}
