package device

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"time"

	"frame-relay/utils"
)

// Network joins the link the relay uploads over.
type Network interface {
	Connect(ctx context.Context, ssid, psk string) error
}

// HostNetwork treats the host's existing link as the access point and
// proves it by opening a TCP connection to the upload server.
type HostNetwork struct {
	target  string
	timeout time.Duration
	dialer  net.Dialer
}

// NewHostNetwork targets the host:port of baseURL. A missing port is
// taken from the scheme.
func NewHostNetwork(baseURL string, timeout time.Duration) (*HostNetwork, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("server url %q has no host", baseURL)
	}
	port := u.Port()
	if port == "" {
		port = "80"
		if u.Scheme == "https" {
			port = "443"
		}
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HostNetwork{target: net.JoinHostPort(u.Hostname(), port), timeout: timeout}, nil
}

// Target is the host:port Connect dials.
func (n *HostNetwork) Target() string { return n.target }

// Connect checks that the server is reachable. ssid and psk only appear
// in the log; the host OS owns the actual association.
func (n *HostNetwork) Connect(ctx context.Context, ssid, psk string) error {
	if ssid == "" || psk == "" {
		return errors.New("wifi ssid and psk are required")
	}
	utils.L().Info("joining network %q", ssid)

	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	conn, err := n.dialer.DialContext(ctx, "tcp", n.target)
	if err != nil {
		return fmt.Errorf("reach %s: %w", n.target, err)
	}
	_ = conn.Close()

	utils.L().Info("network up, server %s reachable", n.target)
	return nil
}
