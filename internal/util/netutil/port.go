// Package netutil provides network reachability checks.
package netutil

import (
	"context"
	"net"
	"strconv"
	"time"
)

// DefaultDialTimeout bounds a single reachability check.
const DefaultDialTimeout = 2 * time.Second

// PortOpen reports whether a TCP connection to host:port can be opened
// within timeout.
func PortOpen(ctx context.Context, host string, port int, timeout time.Duration) bool {
	if timeout <= 0 {
		timeout = DefaultDialTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}
