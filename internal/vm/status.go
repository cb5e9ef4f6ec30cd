package vm

import (
	"context"
	"time"

	"github.com/jbweber/anvil/internal/config"
	"github.com/jbweber/anvil/internal/status"
)

// Status is the observable state of one VM.
type Status struct {
	Name  string
	State status.State
}

// Map renders the status as the result map returned to callers.
func (s Status) Map() map[string]any {
	return map[string]any{
		"name":       s.Name,
		"state":      int(s.State),
		"state_name": s.State.String(),
	}
}

// GetStatus returns the state of VM attrs["name"] on endpoint id. It never
// fails: an unknown endpoint, an unreachable hypervisor or a missing VM
// all yield status.Unknown.
func (c *Controller) GetStatus(ctx context.Context, id string, attrs Attributes) status.State {
	start := time.Now()
	name := attrs.String(AttrName)

	var st Status
	err := c.withSession(ctx, id, func(_ config.Endpoint, sess session) error {
		st = c.statusOf(sess, name)
		return nil
	})
	if err != nil {
		c.log.V(1).Info("Status unavailable", "endpoint", id, "vm", name, "error", err.Error())
	}
	c.metrics.ObserveOperation("status", start, nil)
	return st.State
}

// statusOf reads the state of name over sess. Failures map to Unknown.
func (c *Controller) statusOf(sess session, name string) Status {
	st := Status{Name: name, State: status.Unknown}
	if name == "" {
		return st
	}
	dom, err := sess.DomainLookupByName(name)
	if err != nil {
		return st
	}
	state, _, err := sess.DomainGetState(dom, 0)
	if err != nil {
		c.log.V(1).Info("Failed to get VM state", "vm", name, "error", err.Error())
		return st
	}
	st.State = status.FromCode(state)
	return st
}
