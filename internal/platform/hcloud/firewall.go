package hcloud

import (
	"context"
	"fmt"
	"net"
	"strings"

	"github.com/hetznercloud/hcloud-go/v2/hcloud"

	"github.com/imamik/hdistcc/internal/util/labels"
)

// EnsureFirewall ensures a firewall named name admits SSH and ICMP from
// sources only, and that it applies to every server labelled with the
// fleet name. Rules of an existing firewall are replaced.
func (c *Client) EnsureFirewall(ctx context.Context, name string, sources []string, lbls map[string]string) error {
	rules, err := fleetFirewallRules(sources)
	if err != nil {
		return err
	}
	selector := fleetSelector(name)

	fw, err := (&EnsureOperation[*hcloud.Firewall, hcloud.FirewallCreateOpts, hcloud.FirewallSetRulesOpts]{
		Name:         name,
		ResourceType: "firewall",
		Get:          c.client.Firewall.Get,
		Create:       c.createFirewall,
		Update:       c.client.Firewall.SetRules,
		CreateOptsMapper: func() hcloud.FirewallCreateOpts {
			return hcloud.FirewallCreateOpts{
				Name:    name,
				Rules:   rules,
				Labels:  lbls,
				ApplyTo: []hcloud.FirewallResource{selector},
			}
		},
		UpdateOptsMapper: func(_ *hcloud.Firewall) hcloud.FirewallSetRulesOpts {
			return hcloud.FirewallSetRulesOpts{Rules: rules}
		},
	}).Execute(ctx, c)
	if err != nil {
		return err
	}

	if appliedTo(fw, selector.LabelSelector.Selector) {
		return nil
	}
	actions, _, err := c.client.Firewall.ApplyResources(ctx, fw, []hcloud.FirewallResource{selector})
	if err != nil {
		return fmt.Errorf("failed to apply firewall %s: %w", name, err)
	}
	if err := waitForActions(ctx, c.client, actions...); err != nil {
		return fmt.Errorf("failed to wait for firewall %s apply: %w", name, err)
	}
	return nil
}

func (c *Client) createFirewall(ctx context.Context, opts hcloud.FirewallCreateOpts) (*CreateResult[*hcloud.Firewall], *hcloud.Response, error) {
	res, resp, err := c.client.Firewall.Create(ctx, opts)
	if err != nil {
		return nil, resp, err
	}
	return &CreateResult[*hcloud.Firewall]{
		Resource: res.Firewall,
		Actions:  res.Actions,
	}, resp, nil
}

// DeleteFirewall deletes the firewall with the given name.
func (c *Client) DeleteFirewall(ctx context.Context, name string) error {
	return (&DeleteOperation[*hcloud.Firewall]{
		Name:         name,
		ResourceType: "firewall",
		Get:          c.client.Firewall.Get,
		Delete:       c.client.Firewall.Delete,
	}).Execute(ctx, c)
}

func fleetSelector(name string) hcloud.FirewallResource {
	return hcloud.FirewallResource{
		Type: hcloud.FirewallResourceTypeLabelSelector,
		LabelSelector: &hcloud.FirewallResourceLabelSelector{
			Selector: labels.Selector(map[string]string{labels.KeyFleet: name}),
		},
	}
}

func appliedTo(fw *hcloud.Firewall, selector string) bool {
	for _, r := range fw.AppliedTo {
		if r.Type == hcloud.FirewallResourceTypeLabelSelector && r.LabelSelector != nil && r.LabelSelector.Selector == selector {
			return true
		}
	}
	return false
}

func fleetFirewallRules(sources []string) ([]hcloud.FirewallRule, error) {
	nets, err := parseSources(sources)
	if err != nil {
		return nil, err
	}
	return []hcloud.FirewallRule{
		{
			Description: hcloud.Ptr("ssh"),
			Direction:   hcloud.FirewallRuleDirectionIn,
			Protocol:    hcloud.FirewallRuleProtocolTCP,
			Port:        hcloud.Ptr("22"),
			SourceIPs:   nets,
		},
		{
			Description: hcloud.Ptr("icmp"),
			Direction:   hcloud.FirewallRuleDirectionIn,
			Protocol:    hcloud.FirewallRuleProtocolICMP,
			SourceIPs:   nets,
		},
	}, nil
}

// parseSources accepts CIDRs and bare addresses, which become host routes.
func parseSources(sources []string) ([]net.IPNet, error) {
	if len(sources) == 0 {
		return nil, fmt.Errorf("firewall needs at least one source")
	}
	nets := make([]net.IPNet, 0, len(sources))
	for _, s := range sources {
		s = strings.TrimSpace(s)
		if !strings.Contains(s, "/") {
			ip := net.ParseIP(s)
			if ip == nil {
				return nil, fmt.Errorf("invalid firewall source %q", s)
			}
			if ip.To4() != nil {
				s += "/32"
			} else {
				s += "/128"
			}
		}
		_, n, err := net.ParseCIDR(s)
		if err != nil {
			return nil, fmt.Errorf("invalid firewall source %q: %w", s, err)
		}
		nets = append(nets, *n)
	}
	return nets, nil
}
