package hcloud

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/hetznercloud/hcloud-go/v2/hcloud"

	"github.com/imamik/hdistcc/internal/config"
)

// MachineTypes lists the non-deprecated shared-vCPU server types available
// in zone, cheapest core count first.
func (c *Client) MachineTypes(ctx context.Context, zone string) ([]config.MachineTypeOption, error) {
	types, err := c.client.ServerType.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch server types: %w", err)
	}

	types = slices.DeleteFunc(types, func(st *hcloud.ServerType) bool {
		return st.CPUType != hcloud.CPUTypeShared || st.IsDeprecated() || !pricedIn(st, zone)
	})
	slices.SortStableFunc(types, func(a, b *hcloud.ServerType) int {
		if a.Cores != b.Cores {
			return a.Cores - b.Cores
		}
		return strings.Compare(a.Name, b.Name)
	})

	opts := make([]config.MachineTypeOption, 0, len(types))
	for _, st := range types {
		label := fmt.Sprintf("%s - %d vCPU, %.0fGB RAM", strings.ToUpper(st.Name), st.Cores, st.Memory)
		if st.Architecture == hcloud.ArchitectureARM {
			label += " (ARM)"
		}
		if price := hourlyPrice(st, zone); price != "" {
			label += fmt.Sprintf(" (~€%s/h)", price)
		}
		opts = append(opts, config.MachineTypeOption{Name: st.Name, Label: label})
	}
	return opts, nil
}

func pricedIn(st *hcloud.ServerType, zone string) bool {
	for _, p := range st.Pricings {
		if p.Location != nil && p.Location.Name == zone {
			return true
		}
	}
	return false
}

func hourlyPrice(st *hcloud.ServerType, zone string) string {
	for _, p := range st.Pricings {
		if p.Location == nil || p.Location.Name != zone {
			continue
		}
		if f, err := strconv.ParseFloat(p.Hourly.Gross, 64); err == nil {
			return strconv.FormatFloat(f, 'f', 4, 64)
		}
		return p.Hourly.Gross
	}
	return ""
}
