package vm

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/digitalocean/go-libvirt"

	"github.com/jbweber/anvil/internal/config"
	"github.com/jbweber/anvil/internal/status"
)

// VMInfo represents information about a VM.
type VMInfo struct {
	Name     string
	State    status.State
	CPUs     uint16
	MemoryMB uint64
}

// List lists all VMs (both running and stopped) on endpoint id, sorted by
// name.
func (c *Controller) List(ctx context.Context, id string) (vms []VMInfo, err error) {
	defer c.observe("list", time.Now(), &err)

	err = c.withSession(ctx, id, func(_ config.Endpoint, sess session) error {
		vms, err = c.listWithDeps(sess)
		return err
	})
	return vms, err
}

// listWithDeps lists VMs with injected dependencies.
func (c *Controller) listWithDeps(sess session) ([]VMInfo, error) {
	// NeedResults: 1 means populate the domains slice
	domains, _, err := sess.ConnectListAllDomains(1, libvirt.ConnectListDomainsActive|libvirt.ConnectListDomainsInactive)
	if err != nil {
		return nil, fmt.Errorf("failed to list domains: %w", err)
	}

	vms := make([]VMInfo, 0, len(domains))
	for _, domain := range domains {
		info, err := getDomainInfo(sess, domain)
		if err != nil {
			c.log.Info("Warning: failed to get domain info", "vm", domain.Name, "error", err.Error())
			continue
		}
		vms = append(vms, info)
	}

	sort.Slice(vms, func(i, j int) bool { return vms[i].Name < vms[j].Name })
	return vms, nil
}

// getDomainInfo gets detailed information about a single domain.
func getDomainInfo(sess session, domain libvirt.Domain) (VMInfo, error) {
	state, maxMem, _, nrVirtCPU, _, err := sess.DomainGetInfo(domain)
	if err != nil {
		return VMInfo{}, fmt.Errorf("failed to get domain info: %w", err)
	}

	return VMInfo{
		Name:     domain.Name,
		State:    status.FromCode(state),
		CPUs:     nrVirtCPU,
		MemoryMB: maxMem / 1024,
	}, nil
}
