package libvirt

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/digitalocean/go-libvirt"
	"github.com/digitalocean/go-libvirt/socket"
	"github.com/digitalocean/go-libvirt/socket/dialers"
	"github.com/go-logr/logr"

	"github.com/jbweber/anvil/internal/config"
	"github.com/jbweber/anvil/internal/errdefs"
)

const (
	// DefaultSocket is the system libvirtd socket.
	DefaultSocket = "/var/run/libvirt/libvirt-sock"

	// DefaultTCPPort is libvirtd's unencrypted TCP port.
	DefaultTCPPort = "16509"

	defaultTimeout = 5 * time.Second
)

// Client wraps a go-libvirt connection to one hypervisor endpoint.
type Client struct {
	uri string

	mu      sync.Mutex
	libvirt *libvirt.Libvirt
	dead    bool
}

// target is a libvirt URI split into what the dialer and the daemon need.
type target struct {
	driverURI string // e.g. qemu:///system, sent to the daemon
	transport string // unix or tcp
	socket    string
	host      string
	port      string
}

// parseURI splits driver[+transport]://[user@][host][:port]/path[?socket=...].
func parseURI(uri string) (target, error) {
	u, err := url.Parse(uri)
	if err != nil || u.Scheme == "" {
		return target{}, errdefs.Configurationf("invalid libvirt URI %q", uri)
	}

	driver, transport, _ := strings.Cut(u.Scheme, "+")
	if transport == "" {
		transport = "unix"
		if u.Host != "" {
			// libvirt defaults to TLS when a host is given.
			transport = "tls"
		}
	}

	path := u.Path
	if path == "" {
		path = "/"
	}
	t := target{
		driverURI: driver + "://" + path,
		transport: transport,
	}

	switch transport {
	case "unix":
		t.socket = u.Query().Get("socket")
		if t.socket == "" {
			t.socket = DefaultSocket
		}
	case "tcp":
		t.host = u.Hostname()
		if t.host == "" {
			return target{}, errdefs.Configurationf("libvirt URI %q has no host", uri)
		}
		t.port = u.Port()
		if t.port == "" {
			t.port = DefaultTCPPort
		}
	default:
		return target{}, errdefs.NotSupportedf("libvirt transport %q in %q is not supported (use unix or tcp)", transport, uri)
	}
	return t, nil
}

func (t target) dialer(timeout time.Duration) socket.Dialer {
	if t.transport == "tcp" {
		return dialers.NewRemote(t.host,
			dialers.UsePort(t.port),
			dialers.WithRemoteTimeout(timeout),
		)
	}
	return dialers.NewLocal(
		dialers.WithSocket(t.socket),
		dialers.WithLocalTimeout(timeout),
	)
}

// Dial connects to the hypervisor named by uri, e.g. "qemu:///system",
// "lxc:///" or "xen+tcp://xenhost/". If timeout is zero, defaults to 5 seconds.
func Dial(ctx context.Context, uri string, timeout time.Duration) (*Client, error) {
	t, err := parseURI(uri)
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	type result struct {
		l   *libvirt.Libvirt
		err error
	}
	resultCh := make(chan result, 1)

	go func() {
		l := libvirt.NewWithDialer(t.dialer(timeout))
		err := l.ConnectToURI(libvirt.ConnectURI(t.driverURI))
		resultCh <- result{l: l, err: err}
	}()

	select {
	case <-ctx.Done():
		// Release the connection if the dial completes after we gave up.
		go func() {
			if res := <-resultCh; res.err == nil {
				_ = res.l.Disconnect()
			}
		}()
		return nil, errdefs.Wrap(errdefs.Connection, ctx.Err(), "connection to %s cancelled", uri)
	case res := <-resultCh:
		if res.err != nil {
			return nil, errdefs.Wrap(errdefs.Connection, res.err, "failed to connect to libvirt at %s", uri)
		}
		return &Client{uri: uri, libvirt: res.l}, nil
	}
}

// URI returns the URI the client was dialled with.
func (c *Client) URI() string {
	return c.uri
}

// Close closes the connection and releases resources.
// It is safe to call Close multiple times.
func (c *Client) Close() error {
	c.mu.Lock()
	l := c.libvirt
	c.libvirt = nil
	c.dead = true
	c.mu.Unlock()

	if l == nil {
		return nil
	}
	if err := l.Disconnect(); err != nil {
		return fmt.Errorf("failed to disconnect from libvirt: %w", err)
	}
	return nil
}

// Libvirt returns the underlying go-libvirt client for direct API access.
func (c *Client) Libvirt() *libvirt.Libvirt {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.libvirt
}

// Ping verifies the connection is still alive. A failed ping marks the
// client dead; later pings fail without touching the network.
func (c *Client) Ping() error {
	c.mu.Lock()
	l, dead := c.libvirt, c.dead
	c.mu.Unlock()

	if l == nil || dead {
		return errdefs.Connectionf("client not connected")
	}
	if _, err := l.ConnectGetLibVersion(); err != nil {
		c.mu.Lock()
		c.dead = true
		c.mu.Unlock()
		return errdefs.Wrap(errdefs.Connection, err, "libvirt connection is dead")
	}
	return nil
}

// Manager opens and closes endpoint connections. Connections are never
// shared between calls; each operation acquires and releases its own.
type Manager struct {
	log  logr.Logger
	dial func(ctx context.Context, uri string, timeout time.Duration) (*Client, error)
}

// NewManager returns a Manager that dials real endpoints.
func NewManager(log logr.Logger) *Manager {
	return &Manager{log: log, dial: Dial}
}

// Connect opens a connection to ep. It returns nil when the endpoint cannot
// be reached; the reason is logged.
func (m *Manager) Connect(ctx context.Context, ep config.Endpoint) *Client {
	m.log.V(1).Info("Connecting to libvirt...", "endpoint", ep.ID, "uri", ep.URL)
	c, err := m.dial(ctx, ep.URL, ep.Timeout)
	if err != nil {
		m.log.Error(err, "Endpoint unreachable", "endpoint", ep.ID)
		return nil
	}
	return c
}

// IsAlive probes the connection.
func (m *Manager) IsAlive(c *Client) bool {
	if c == nil {
		return false
	}
	if err := c.Ping(); err != nil {
		m.log.V(1).Info("Connection probe failed", "uri", c.URI(), "error", err.Error())
		return false
	}
	return true
}

// Disconnect releases the connection. Failures are logged, not returned.
func (m *Manager) Disconnect(c *Client) {
	if c == nil {
		return
	}
	if err := c.Close(); err != nil {
		m.log.Info("Warning: failed to close libvirt connection", "uri", c.URI(), "error", err.Error())
	}
}
