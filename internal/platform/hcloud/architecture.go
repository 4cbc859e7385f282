package hcloud

import (
	"strings"

	"github.com/hetznercloud/hcloud-go/v2/hcloud"
)

// ParseArchitecture maps a settings value ("x86" or "arm") to the hcloud
// architecture. Anything else is x86.
func ParseArchitecture(s string) hcloud.Architecture {
	if strings.EqualFold(s, "arm") || strings.EqualFold(s, "arm64") {
		return hcloud.ArchitectureARM
	}
	return hcloud.ArchitectureX86
}

// DetectArchitecture determines the CPU architecture from a server type.
// CAX server types (cax11, cax21, ...) are ARM; everything else is x86.
func DetectArchitecture(serverType string) hcloud.Architecture {
	if strings.HasPrefix(serverType, "cax") {
		return hcloud.ArchitectureARM
	}
	return hcloud.ArchitectureX86
}
