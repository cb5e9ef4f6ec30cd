package vm

import (
	"context"

	"github.com/jbweber/anvil/internal/status"
)

// Resource adapts the Controller to a generic create, read, update and
// delete surface keyed by endpoint id and attribute maps, the shape
// provisioning front ends consume.
type Resource struct {
	ctrl *Controller
}

// NewResource wraps c.
func NewResource(c *Controller) *Resource {
	return &Resource{ctrl: c}
}

// Create creates the VM described by attrs and returns its status map.
func (r *Resource) Create(ctx context.Context, id string, attrs map[string]any) (map[string]any, error) {
	st, err := r.ctrl.Create(ctx, id, Attributes(attrs))
	if err != nil {
		return nil, err
	}
	return st.Map(), nil
}

// Update re-runs creation with attrs. Existing VMs are rejected the same
// way Create rejects them; changing a VM in place goes through the
// individual setters.
func (r *Resource) Update(ctx context.Context, id string, attrs map[string]any) (map[string]any, error) {
	return r.Create(ctx, id, attrs)
}

// Delete removes the VM named in attrs and returns its final status map.
func (r *Resource) Delete(ctx context.Context, id string, attrs map[string]any) (map[string]any, error) {
	st, err := r.ctrl.Delete(ctx, id, Attributes(attrs))
	if err != nil {
		return nil, err
	}
	return st.Map(), nil
}

// Read describes configured state without failing:
//   - no id: the configured endpoints
//   - an id and no name: the VMs on that endpoint
//   - an id and a name: that VM's state, memory, vCPUs and display
//
// Lookup and connection failures produce empty results.
func (r *Resource) Read(ctx context.Context, id string, attrs map[string]any) []map[string]any {
	a := Attributes(attrs)

	if id == "" {
		var out []map[string]any
		for _, ep := range r.ctrl.registry.Endpoints() {
			out = append(out, map[string]any{
				"id":       ep.ID,
				"url":      ep.URL,
				"hyp_type": ep.Type.String(),
			})
		}
		return out
	}

	if !a.Has(AttrName) {
		vms, err := r.ctrl.List(ctx, id)
		if err != nil {
			return nil
		}
		out := make([]map[string]any, 0, len(vms))
		for _, vm := range vms {
			out = append(out, Status{Name: vm.Name, State: vm.State}.Map())
		}
		return out
	}

	state := r.ctrl.GetStatus(ctx, id, a)
	if state == status.Unknown {
		return nil
	}
	desc := Status{Name: a.String(AttrName), State: state}.Map()

	if mb, err := r.ctrl.GetMemory(ctx, id, a); err == nil {
		desc[AttrMemory] = mb
	}
	if active := status.IsRunning(state) || state == status.Paused; active {
		if n, err := r.ctrl.GetVCPUs(ctx, id, a); err == nil {
			desc[AttrNumCPU] = n
		}
	}
	if port, err := r.ctrl.GetVNCPort(ctx, id, a); err == nil {
		desc[AttrVNCPort] = port
	}
	if host, err := r.ctrl.GetVNCHostname(ctx, id); err == nil {
		desc["vnc_hostname"] = host
	}
	return []map[string]any{desc}
}

// Ping returns endpoint id to liveness for every configured endpoint.
func (r *Resource) Ping(ctx context.Context) map[string]bool {
	return r.ctrl.PingAll(ctx)
}
