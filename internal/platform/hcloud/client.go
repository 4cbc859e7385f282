package hcloud

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/netip"
	"strings"

	"github.com/go-logr/logr"
	"github.com/hetznercloud/hcloud-go/v2/hcloud"

	"github.com/imamik/hdistcc/internal/config"
	"github.com/imamik/hdistcc/internal/fleet"
)

var (
	_ fleet.Provider        = (*Client)(nil)
	_ fleet.KeyManager      = (*Client)(nil)
	_ fleet.FirewallManager = (*Client)(nil)
)

// Client is the Hetzner Cloud compute backend.
type Client struct {
	client       *hcloud.Client
	timeouts     *config.Timeouts
	httpClient   *http.Client
	architecture hcloud.Architecture
	publicIPURL  string
	log          logr.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithTimeouts sets custom timeouts for the client.
func WithTimeouts(t *config.Timeouts) ClientOption {
	return func(c *Client) {
		c.timeouts = t
	}
}

// WithHTTPClient sets the HTTP client for requests outside the Hetzner API.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithHCloudClient sets a custom hcloud client (useful for testing).
func WithHCloudClient(hc *hcloud.Client) ClientOption {
	return func(c *Client) {
		c.client = hc
	}
}

// WithArchitecture selects the image architecture for system images.
func WithArchitecture(a hcloud.Architecture) ClientOption {
	return func(c *Client) {
		c.architecture = a
	}
}

// WithLogger sets the logger for diagnostics that do not fit a return value.
func WithLogger(log logr.Logger) ClientOption {
	return func(c *Client) {
		c.log = log
	}
}

// WithPublicIPURL overrides the service used by PublicIP.
func WithPublicIPURL(url string) ClientOption {
	return func(c *Client) {
		c.publicIPURL = url
	}
}

// New creates a Client authenticating with token.
func New(token string, opts ...ClientOption) *Client {
	c := &Client{
		client:       hcloud.NewClient(hcloud.WithToken(token), hcloud.WithApplication("hdistcc", "")),
		timeouts:     config.LoadTimeouts(),
		httpClient:   http.DefaultClient,
		architecture: hcloud.ArchitectureX86,
		publicIPURL:  "https://ipv4.icanhazip.com",
		log:          logr.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// HCloudClient returns the underlying hcloud.Client.
func (c *Client) HCloudClient() *hcloud.Client {
	return c.client
}

// PublicIP returns the public IPv4 address of the local host as seen from
// the internet. Anything but a 2xx response carrying one address is an error.
func (c *Client) PublicIP(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.publicIPURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("public address lookup returned %s", resp.Status)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 256))
	if err != nil {
		return "", err
	}
	addr, err := netip.ParseAddr(strings.TrimSpace(string(body)))
	if err != nil || !addr.Is4() {
		return "", fmt.Errorf("public address lookup returned no IPv4 address: %q", strings.TrimSpace(string(body)))
	}
	return addr.String(), nil
}
