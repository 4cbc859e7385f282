package labels

import (
	"slices"
	"strings"
)

// Standard label keys for Hetzner Cloud resources.
const (
	// KeyFleet holds the fleet base name.
	KeyFleet = "hdistcc.io/fleet"

	// KeyOwner holds the ownership hash, absent for global fleets.
	KeyOwner = "hdistcc.io/owner"

	// KeyDistro holds the node distribution.
	KeyDistro = "hdistcc.io/distro"

	// KeyFamily marks snapshots usable as a fleet image family.
	KeyFamily = "hdistcc.io/family"

	// KeyPreemptible records the requested scheduling mode.
	KeyPreemptible = "hdistcc.io/preemptible"

	// KeyManagedBy identifies the management system.
	KeyManagedBy = "hdistcc.io/managed-by"

	// ManagedByHdistcc is the KeyManagedBy value for resources we create.
	ManagedByHdistcc = "hdistcc"
)

// LabelBuilder provides a fluent interface for building resource labels.
type LabelBuilder struct {
	labels map[string]string
}

// NewLabelBuilder creates a builder with the fleet name pre-set.
func NewLabelBuilder(fleet string) *LabelBuilder {
	return &LabelBuilder{
		labels: map[string]string{
			KeyFleet:     fleet,
			KeyManagedBy: ManagedByHdistcc,
		},
	}
}

// WithOwner adds the owner label when owner is non-empty.
func (lb *LabelBuilder) WithOwner(owner string) *LabelBuilder {
	if owner != "" {
		lb.labels[KeyOwner] = owner
	}
	return lb
}

// WithDistro adds the distro label.
func (lb *LabelBuilder) WithDistro(distro string) *LabelBuilder {
	lb.labels[KeyDistro] = distro
	return lb
}

// WithPreemptible records the scheduling mode.
func (lb *LabelBuilder) WithPreemptible(preemptible bool) *LabelBuilder {
	if preemptible {
		lb.labels[KeyPreemptible] = "true"
	} else {
		lb.labels[KeyPreemptible] = "false"
	}
	return lb
}

// Merge adds all labels from the provided map.
func (lb *LabelBuilder) Merge(extra map[string]string) *LabelBuilder {
	for k, v := range extra {
		lb.labels[k] = v
	}
	return lb
}

// Build returns a copy of the labels map.
func (lb *LabelBuilder) Build() map[string]string {
	result := make(map[string]string, len(lb.labels))
	for k, v := range lb.labels {
		result[k] = v
	}
	return result
}

// Selector renders labels as a Hetzner label selector (k1=v1,k2=v2),
// with keys in a stable order.
func Selector(labels map[string]string) string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+labels[k])
	}
	return strings.Join(parts, ",")
}
