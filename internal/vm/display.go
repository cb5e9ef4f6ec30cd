package vm

import (
	"context"
	"fmt"
	"time"

	"github.com/jbweber/anvil/internal/config"
	lv "github.com/jbweber/anvil/internal/libvirt"
)

// GetVNCPort returns the VM's VNC display port, or libvirt.NoVNCPort when
// the VM has no VNC display or its port is not allocated yet.
func (c *Controller) GetVNCPort(ctx context.Context, id string, attrs Attributes) (port int, err error) {
	defer c.observe("get_vnc_port", time.Now(), &err)

	name, err := attrs.Required(AttrName)
	if err != nil {
		return lv.NoVNCPort, err
	}

	port = lv.NoVNCPort
	err = c.withSession(ctx, id, func(_ config.Endpoint, sess session) error {
		dom, err := lookup(sess, name)
		if err != nil {
			return err
		}
		desc, err := sess.DomainGetXMLDesc(dom, 0)
		if err != nil {
			return fmt.Errorf("failed to read VM %s descriptor: %w", name, err)
		}
		d, err := lv.ParseDescriptor(desc)
		if err != nil {
			return err
		}
		port = d.VNCPort()
		return nil
	})
	return port, err
}

// GetVNCHostname returns the host name VNC clients should connect to:
// the hypervisor's own host name.
func (c *Controller) GetVNCHostname(ctx context.Context, id string) (host string, err error) {
	defer c.observe("get_vnc_hostname", time.Now(), &err)

	err = c.withSession(ctx, id, func(_ config.Endpoint, sess session) error {
		host, err = sess.ConnectGetHostname()
		if err != nil {
			return fmt.Errorf("failed to get hypervisor host name: %w", err)
		}
		return nil
	})
	return host, err
}
