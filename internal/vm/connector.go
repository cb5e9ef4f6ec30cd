package vm

import (
	"context"

	golibvirt "github.com/digitalocean/go-libvirt"

	"github.com/jbweber/anvil/internal/config"
	"github.com/jbweber/anvil/internal/errdefs"
	"github.com/jbweber/anvil/internal/libvirt"
)

// libvirtConnector opens real sessions through a libvirt.Manager.
type libvirtConnector struct {
	mgr *libvirt.Manager
}

func (c libvirtConnector) Connect(ctx context.Context, ep config.Endpoint) (session, error) {
	client := c.mgr.Connect(ctx, ep)
	if client == nil {
		return nil, errdefs.Connectionf("hypervisor %s (%s) is unreachable", ep.ID, ep.URL)
	}
	return &clientSession{Libvirt: client.Libvirt(), mgr: c.mgr, client: client}, nil
}

// clientSession exposes the go-libvirt RPCs of one connection.
type clientSession struct {
	*golibvirt.Libvirt
	mgr    *libvirt.Manager
	client *libvirt.Client
}

// Close releases the connection. Failures are logged by the manager.
func (s *clientSession) Close() error {
	s.mgr.Disconnect(s.client)
	return nil
}
