package vm

import (
	"context"
	"fmt"
	"time"

	"github.com/digitalocean/go-libvirt"

	"github.com/jbweber/anvil/internal/config"
	"github.com/jbweber/anvil/internal/errdefs"
	lv "github.com/jbweber/anvil/internal/libvirt"
	"github.com/jbweber/anvil/internal/status"
)

// Start boots a stopped VM.
func (c *Controller) Start(ctx context.Context, id string, attrs Attributes) (Status, error) {
	return c.transition(ctx, id, attrs, status.TransitionStart)
}

// Shutdown asks a running VM's guest to power off.
func (c *Controller) Shutdown(ctx context.Context, id string, attrs Attributes) (Status, error) {
	return c.transition(ctx, id, attrs, status.TransitionShutdown)
}

// Shutoff powers a running VM off immediately.
func (c *Controller) Shutoff(ctx context.Context, id string, attrs Attributes) (Status, error) {
	return c.transition(ctx, id, attrs, status.TransitionShutoff)
}

// Reboot asks a running VM's guest to restart.
func (c *Controller) Reboot(ctx context.Context, id string, attrs Attributes) (Status, error) {
	return c.transition(ctx, id, attrs, status.TransitionReboot)
}

// Pause suspends a running VM.
func (c *Controller) Pause(ctx context.Context, id string, attrs Attributes) (Status, error) {
	return c.transition(ctx, id, attrs, status.TransitionPause)
}

// Resume continues a paused VM.
func (c *Controller) Resume(ctx context.Context, id string, attrs Attributes) (Status, error) {
	return c.transition(ctx, id, attrs, status.TransitionResume)
}

// Transition applies t by name. Used by callers that dispatch on user input.
func (c *Controller) Transition(ctx context.Context, id string, attrs Attributes, t status.Transition) (Status, error) {
	return c.transition(ctx, id, attrs, t)
}

func (c *Controller) transition(ctx context.Context, id string, attrs Attributes, t status.Transition) (st Status, err error) {
	defer c.observe(string(t), time.Now(), &err)

	name, err := attrs.Required(AttrName)
	if err != nil {
		return Status{}, err
	}

	err = c.withSession(ctx, id, func(ep config.Endpoint, sess session) error {
		dom, err := lookup(sess, name)
		if err != nil {
			return err
		}

		active, state, err := activity(sess, dom)
		if err != nil {
			return err
		}
		if err := status.Check(t, active, state); err != nil {
			return err
		}

		c.log.Info("Applying transition", "endpoint", ep.ID, "vm", name, "transition", string(t))
		if err := apply(sess, dom, t); err != nil {
			return fmt.Errorf("failed to %s VM %s: %w", t, name, err)
		}

		st = c.statusOf(sess, name)
		return nil
	})
	return st, err
}

func apply(sess session, dom libvirt.Domain, t status.Transition) error {
	switch t {
	case status.TransitionStart:
		return sess.DomainCreate(dom)
	case status.TransitionShutdown:
		return sess.DomainShutdown(dom)
	case status.TransitionShutoff:
		return sess.DomainDestroy(dom)
	case status.TransitionReboot:
		return sess.DomainReboot(dom, 0)
	case status.TransitionPause:
		return sess.DomainSuspend(dom)
	case status.TransitionResume:
		return sess.DomainResume(dom)
	default:
		return errdefs.NotSupportedf("unknown transition %q", string(t))
	}
}

// lookup finds domain name, mapping a missing domain to errdefs.NotFound.
func lookup(sess session, name string) (libvirt.Domain, error) {
	dom, err := sess.DomainLookupByName(name)
	if err != nil {
		if lv.IsNoDomain(err) {
			return libvirt.Domain{}, errdefs.NotFoundf("VM %s not found", name)
		}
		return libvirt.Domain{}, fmt.Errorf("failed to look up VM %s: %w", name, err)
	}
	return dom, nil
}

// activity returns whether dom is active and its current state.
func activity(sess session, dom libvirt.Domain) (bool, status.State, error) {
	active, err := sess.DomainIsActive(dom)
	if err != nil {
		return false, status.Unknown, fmt.Errorf("failed to check whether VM %s is active: %w", dom.Name, err)
	}
	state, _, err := sess.DomainGetState(dom, 0)
	if err != nil {
		return false, status.Unknown, fmt.Errorf("failed to get VM %s state: %w", dom.Name, err)
	}
	return active == 1, status.FromCode(state), nil
}
