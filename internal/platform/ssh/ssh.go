package ssh

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/imamik/hdistcc/internal/util/retry"
)

const (
	defaultPort        = 22
	defaultDialTimeout = 5 * time.Second
	defaultRetryDelay  = 2 * time.Second
	defaultMaxDelay    = 10 * time.Second
)

// Config holds SSH client configuration.
type Config struct {
	Port       int
	User       string
	PrivateKey []byte

	// DialTimeout bounds the TCP connect and handshake.
	// If zero, defaultDialTimeout is used.
	DialTimeout time.Duration

	// MaxRetries is the number of extra connection attempts after a
	// failed dial. Readiness probes leave it at zero: the poller retries.
	MaxRetries int

	// RetryDelay is the initial delay between attempts.
	// If zero, defaultRetryDelay is used.
	RetryDelay time.Duration

	// HostKeyCallback handles host key verification.
	// If nil, ssh.InsecureIgnoreHostKey() is used.
	HostKeyCallback ssh.HostKeyCallback
}

// Client executes commands on fleet nodes via SSH.
// It parses the private key once and dials per Execute call.
type Client struct {
	config *Config
	signer ssh.Signer
}

// NewClient creates a new SSH client and validates the private key.
func NewClient(cfg *Config) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.User == "" {
		return nil, fmt.Errorf("config user cannot be empty")
	}
	if len(cfg.PrivateKey) == 0 {
		return nil, fmt.Errorf("config private key cannot be empty")
	}

	configCopy := *cfg
	if configCopy.Port == 0 {
		configCopy.Port = defaultPort
	}
	if configCopy.DialTimeout == 0 {
		configCopy.DialTimeout = defaultDialTimeout
	}
	if configCopy.RetryDelay == 0 {
		configCopy.RetryDelay = defaultRetryDelay
	}
	if configCopy.HostKeyCallback == nil {
		configCopy.HostKeyCallback = ssh.InsecureIgnoreHostKey() //nolint:gosec // fleet nodes are ephemeral
	}

	signer, err := ssh.ParsePrivateKey(configCopy.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	return &Client{config: &configCopy, signer: signer}, nil
}

// Port returns the SSH port the client dials.
func (c *Client) Port() int {
	return c.config.Port
}

// Execute runs command on host and returns its combined output.
func (c *Client) Execute(ctx context.Context, host, command string) (string, error) {
	client, err := c.connect(ctx, host)
	if err != nil {
		return "", err
	}
	defer func() { _ = client.Close() }()

	stop := context.AfterFunc(ctx, func() { _ = client.Close() })
	defer stop()

	return c.runCommand(client, host, command)
}

// connect establishes the SSH connection, honouring ctx during dial.
func (c *Client) connect(ctx context.Context, host string) (*ssh.Client, error) {
	config := &ssh.ClientConfig{
		User:            c.config.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(c.signer)},
		HostKeyCallback: c.config.HostKeyCallback,
		Timeout:         c.config.DialTimeout,
	}
	addr := net.JoinHostPort(host, strconv.Itoa(c.config.Port))

	var client *ssh.Client
	err := retry.WithExponentialBackoff(ctx, func() error {
		dialCtx, cancel := context.WithTimeout(ctx, c.config.DialTimeout)
		defer cancel()

		var d net.Dialer
		conn, err := d.DialContext(dialCtx, "tcp", addr)
		if err != nil {
			return err
		}
		if deadline, ok := dialCtx.Deadline(); ok {
			_ = conn.SetDeadline(deadline)
		}
		sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
		if err != nil {
			_ = conn.Close()
			return err
		}
		_ = conn.SetDeadline(time.Time{})
		client = ssh.NewClient(sshConn, chans, reqs)
		return nil
	},
		retry.WithMaxRetries(c.config.MaxRetries),
		retry.WithInitialDelay(c.config.RetryDelay),
		retry.WithMaxDelay(defaultMaxDelay),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to establish SSH connection to %s: %w", addr, err)
	}
	return client, nil
}

// runCommand executes a command on an established SSH session.
func (c *Client) runCommand(client *ssh.Client, host, command string) (string, error) {
	session, err := client.NewSession()
	if err != nil {
		return "", fmt.Errorf("failed to create SSH session on %s: %w", host, err)
	}
	defer func() { _ = session.Close() }()

	output, err := session.CombinedOutput(command)
	if err != nil {
		return string(output), fmt.Errorf("command failed on %s: %w\nCommand: %s\nOutput: %s",
			host, err, command, string(output))
	}
	return string(output), nil
}
