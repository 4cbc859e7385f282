package hcloud

import (
	"context"
	"fmt"
	"net/netip"
	"strconv"
	"strings"

	"github.com/hetznercloud/hcloud-go/v2/hcloud"

	"github.com/imamik/hdistcc/internal/fleet"
	"github.com/imamik/hdistcc/internal/util/retry"
)

// ListNodes returns every server in the zone (a Hetzner location). Hetzner
// scopes projects by API token, so project is not sent.
func (c *Client) ListNodes(ctx context.Context, _, zone string) ([]fleet.NodeStatus, error) {
	servers, err := c.client.Server.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list servers: %w", err)
	}

	nodes := make([]fleet.NodeStatus, 0, len(servers))
	for _, s := range servers {
		if serverLocation(s) != zone {
			continue
		}
		nodes = append(nodes, fleet.NodeStatus{
			Name:    s.Name,
			Status:  strings.ToUpper(string(s.Status)),
			Address: ServerAddress(s),
		})
	}
	return nodes, nil
}

// CreateNode submits a server creation. The returned operation covers the
// create action and its follow-ups, so the server is running once it
// completes.
func (c *Client) CreateNode(ctx context.Context, _, zone string, spec fleet.NodeSpec) (fleet.Operation, error) {
	opts, err := c.buildServerCreateOpts(ctx, zone, spec)
	if err != nil {
		return fleet.Operation{}, err
	}

	result, err := c.createServerWithRetry(ctx, opts)
	if err != nil {
		return fleet.Operation{}, err
	}

	actions := append([]*hcloud.Action{result.Action}, result.NextActions...)
	return actionsOperation("create", actions...), nil
}

// buildServerCreateOpts resolves all dependencies and builds server creation options.
func (c *Client) buildServerCreateOpts(ctx context.Context, zone string, spec fleet.NodeSpec) (hcloud.ServerCreateOpts, error) {
	serverType, _, err := c.client.ServerType.Get(ctx, spec.MachineType)
	if err != nil {
		return hcloud.ServerCreateOpts{}, fmt.Errorf("failed to get server type: %w", err)
	}
	if serverType == nil {
		return hcloud.ServerCreateOpts{}, fmt.Errorf("server type not found: %s", spec.MachineType)
	}

	location, _, err := c.client.Location.Get(ctx, zone)
	if err != nil {
		return hcloud.ServerCreateOpts{}, fmt.Errorf("failed to get location %s: %w", zone, err)
	}
	if location == nil {
		return hcloud.ServerCreateOpts{}, fmt.Errorf("location not found: %s", zone)
	}

	sshKeys, err := c.resolveSSHKeys(ctx, spec.SSHKeys)
	if err != nil {
		return hcloud.ServerCreateOpts{}, err
	}

	return hcloud.ServerCreateOpts{
		Name:       spec.Name,
		ServerType: serverType,
		Image:      imageRef(spec.Image),
		SSHKeys:    sshKeys,
		Location:   location,
		UserData:   spec.StartupScript,
		Labels:     spec.Labels,
		PublicNet:  publicNet(spec.Network),
	}, nil
}

// createServerWithRetry creates a server with exponential backoff retry logic.
func (c *Client) createServerWithRetry(ctx context.Context, opts hcloud.ServerCreateOpts) (hcloud.ServerCreateResult, error) {
	var result hcloud.ServerCreateResult

	err := retry.WithExponentialBackoff(ctx, func() error {
		res, _, err := c.client.Server.Create(ctx, opts)
		if err != nil {
			if isInvalidParameter(err) {
				return retry.Fatal(err)
			}
			return err
		}
		result = res
		return nil
	}, retry.WithMaxRetries(c.timeouts.RetryMaxAttempts), retry.WithInitialDelay(c.timeouts.RetryInitialDelay))
	if err != nil {
		return result, fmt.Errorf("failed to create server %s: %w", opts.Name, err)
	}
	return result, nil
}

// DeleteNode submits deletion of the named server in zone.
func (c *Client) DeleteNode(ctx context.Context, _, zone, name string) (fleet.Operation, error) {
	server, _, err := c.client.Server.Get(ctx, name)
	if err != nil {
		return fleet.Operation{}, fmt.Errorf("failed to get server %s: %w", name, err)
	}
	if server == nil || serverLocation(server) != zone {
		return fleet.Operation{}, fmt.Errorf("%w: %s", fleet.ErrNodeNotFound, name)
	}

	var result *hcloud.ServerDeleteResult
	err = retry.WithExponentialBackoff(ctx, func() error {
		res, _, err := c.client.Server.DeleteWithResult(ctx, server)
		switch {
		case err == nil:
			result = res
			return nil
		case IsNotFound(err):
			return retry.Fatal(fmt.Errorf("%w: %s", fleet.ErrNodeNotFound, name))
		case isResourceLocked(err):
			return err
		default:
			return retry.Fatal(err)
		}
	}, retry.WithMaxRetries(c.timeouts.RetryMaxAttempts), retry.WithInitialDelay(c.timeouts.RetryInitialDelay))
	if err != nil {
		return fleet.Operation{}, fmt.Errorf("failed to delete server %s: %w", name, err)
	}
	return actionsOperation("delete", result.Action), nil
}

// resolveSSHKeys resolves SSH key names to SSH key objects.
func (c *Client) resolveSSHKeys(ctx context.Context, names []string) ([]*hcloud.SSHKey, error) {
	keys := make([]*hcloud.SSHKey, 0, len(names))
	for _, name := range names {
		key, _, err := c.client.SSHKey.Get(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("failed to get ssh key %s: %w", name, err)
		}
		if key == nil {
			return nil, fmt.Errorf("ssh key not found: %s", name)
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// imageRef turns a ResolveImage result (an image ID) or a plain image name
// into a create reference.
func imageRef(ref string) *hcloud.Image {
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		return &hcloud.Image{ID: id}
	}
	return &hcloud.Image{Name: ref}
}

// publicNet returns nil, which keeps Hetzner's defaults, when neither
// address family is requested: a server needs at least one network.
func publicNet(n fleet.NetworkConfig) *hcloud.ServerCreatePublicNet {
	if !n.PublicIPv4 && !n.PublicIPv6 {
		return nil
	}
	return &hcloud.ServerCreatePublicNet{
		EnableIPv4: n.PublicIPv4,
		EnableIPv6: n.PublicIPv6,
	}
}

func serverLocation(s *hcloud.Server) string {
	if s == nil || s.Datacenter == nil || s.Datacenter.Location == nil { //nolint:staticcheck
		return ""
	}
	return s.Datacenter.Location.Name //nolint:staticcheck
}

// ServerIPv4 extracts the public IPv4 address from a server, or empty string if not set.
func ServerIPv4(s *hcloud.Server) string {
	if s != nil && s.PublicNet.IPv4.IP != nil {
		return s.PublicNet.IPv4.IP.String()
	}
	return ""
}

// ServerAddress returns the public IPv4 address, or the first host of the
// server's IPv6 network when it has no IPv4.
func ServerAddress(s *hcloud.Server) string {
	if ip := ServerIPv4(s); ip != "" {
		return ip
	}
	if s == nil || s.PublicNet.IPv6.Network == nil {
		return ""
	}
	prefix, ok := netip.AddrFromSlice(s.PublicNet.IPv6.Network.IP)
	if !ok {
		return ""
	}
	return prefix.Next().String()
}
