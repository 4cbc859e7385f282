package naming

import (
	"fmt"
	"strconv"
	"strings"
)

// OwnerHashLength is the number of hex characters in an ownership hash.
const OwnerHashLength = 8

// FleetBase returns the base name shared by every node of a fleet.
// Global fleets omit the owner hash.
func FleetBase(prefix, distro, owner string, global bool) string {
	if global || owner == "" {
		return fmt.Sprintf("%s-%s", prefix, distro)
	}
	return fmt.Sprintf("%s-%s-%s", prefix, distro, owner)
}

// Node returns the name of the node at index within a fleet.
func Node(base string, index int) string {
	return fmt.Sprintf("%s-%d", base, index)
}

// SSHKey returns the name of the fleet's SSH key.
func SSHKey(base string) string {
	return base
}

// NodeIndex parses the ordinal of a node name directly under base.
// It reports false when name is not base followed by -{digits}.
func NodeIndex(base, name string) (int, bool) {
	rest, ok := strings.CutPrefix(name, base+"-")
	if !ok || !isDigits(rest) {
		return 0, false
	}
	idx, err := strconv.Atoi(rest)
	if err != nil {
		return 0, false
	}
	return idx, true
}

// IsOwnerHash reports whether s has the shape of an ownership hash.
func IsOwnerHash(s string) bool {
	if len(s) != OwnerHashLength {
		return false
	}
	for _, r := range s {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return false
		}
	}
	return true
}

// TrailingIndex returns the numeric suffix of a node name, or -1.
func TrailingIndex(name string) int {
	i := strings.LastIndexByte(name, '-')
	if i < 0 || !isDigits(name[i+1:]) {
		return -1
	}
	idx, err := strconv.Atoi(name[i+1:])
	if err != nil {
		return -1
	}
	return idx
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
