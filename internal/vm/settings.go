package vm

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/digitalocean/go-libvirt"

	"github.com/jbweber/anvil/internal/config"
	"github.com/jbweber/anvil/internal/errdefs"
	"github.com/jbweber/anvil/internal/status"
)

// GetMemory returns the VM's memory allocation in MB.
func (c *Controller) GetMemory(ctx context.Context, id string, attrs Attributes) (mb uint64, err error) {
	defer c.observe("get_memory", time.Now(), &err)

	name, err := attrs.Required(AttrName)
	if err != nil {
		return 0, err
	}

	err = c.withSession(ctx, id, func(_ config.Endpoint, sess session) error {
		dom, err := lookup(sess, name)
		if err != nil {
			return err
		}
		mb, err = memoryMB(sess, dom)
		return err
	})
	return mb, err
}

// SetMemory sets the maximum and configured memory of a stopped VM to
// attrs["memory"] MB and returns the resulting allocation.
func (c *Controller) SetMemory(ctx context.Context, id string, attrs Attributes) (mb uint64, err error) {
	defer c.observe("set_memory", time.Now(), &err)

	name, err := attrs.Required(AttrName)
	if err != nil {
		return 0, err
	}

	err = c.withSession(ctx, id, func(ep config.Endpoint, sess session) error {
		dom, err := lookup(sess, name)
		if err != nil {
			return err
		}
		active, _, err := activity(sess, dom)
		if err != nil {
			return err
		}
		if err := status.RequireInactive(active, "memory can only be resized while the VM is shut off"); err != nil {
			return err
		}

		kib, err := memoryKiB(attrs)
		if err != nil {
			return err
		}

		c.log.Info("Resizing memory", "endpoint", ep.ID, "vm", name, "memoryMB", kib/1024)
		if err := sess.DomainSetMemoryFlags(dom, kib, uint32(libvirt.DomainMemMaximum)); err != nil {
			return fmt.Errorf("failed to set maximum memory of VM %s: %w", name, err)
		}
		if err := sess.DomainSetMemoryFlags(dom, kib, uint32(libvirt.DomainMemConfig)); err != nil {
			return fmt.Errorf("failed to set memory of VM %s: %w", name, err)
		}

		mb, err = memoryMB(sess, dom)
		return err
	})
	return mb, err
}

// GetVCPUs returns the maximum vCPU count of a running VM.
func (c *Controller) GetVCPUs(ctx context.Context, id string, attrs Attributes) (n int, err error) {
	defer c.observe("get_vcpus", time.Now(), &err)

	name, err := attrs.Required(AttrName)
	if err != nil {
		return 0, err
	}

	err = c.withSession(ctx, id, func(_ config.Endpoint, sess session) error {
		dom, err := lookup(sess, name)
		if err != nil {
			return err
		}
		active, _, err := activity(sess, dom)
		if err != nil {
			return err
		}
		if err := status.RequireActive(active, "vCPU information is only available while the VM runs"); err != nil {
			return err
		}

		count, err := sess.DomainGetMaxVcpus(dom)
		if err != nil {
			return fmt.Errorf("failed to get vCPUs of VM %s: %w", name, err)
		}
		n = int(count)
		return nil
	})
	return n, err
}

// SetVCPUs sets the maximum and configured vCPU count of a stopped VM to
// attrs["num_cpu"] and returns it.
func (c *Controller) SetVCPUs(ctx context.Context, id string, attrs Attributes) (n int, err error) {
	defer c.observe("set_vcpus", time.Now(), &err)

	name, err := attrs.Required(AttrName)
	if err != nil {
		return 0, err
	}

	err = c.withSession(ctx, id, func(ep config.Endpoint, sess session) error {
		dom, err := lookup(sess, name)
		if err != nil {
			return err
		}
		active, _, err := activity(sess, dom)
		if err != nil {
			return err
		}
		if err := status.RequireInactive(active, "vCPUs can only be changed while the VM is shut off"); err != nil {
			return err
		}

		want, err := attrs.PositiveInt(AttrNumCPU)
		if err != nil {
			return err
		}
		if uint64(want) > math.MaxUint32 {
			return errdefs.Validationf("attribute %q is out of range, got %d", AttrNumCPU, want)
		}

		c.log.Info("Changing vCPUs", "endpoint", ep.ID, "vm", name, "vcpus", want)
		if err := sess.DomainSetVcpusFlags(dom, uint32(want), uint32(libvirt.DomainVCPUMaximum)); err != nil {
			return fmt.Errorf("failed to set maximum vCPUs of VM %s: %w", name, err)
		}
		if err := sess.DomainSetVcpusFlags(dom, uint32(want), uint32(libvirt.DomainVCPUConfig)); err != nil {
			return fmt.Errorf("failed to set vCPUs of VM %s: %w", name, err)
		}

		n = want
		return nil
	})
	return n, err
}

// memoryKiB reads attrs["memory"] in MB and returns it in KiB.
func memoryKiB(attrs Attributes) (uint64, error) {
	mb, err := attrs.PositiveInt(AttrMemory)
	if err != nil {
		return 0, err
	}
	if uint64(mb) > math.MaxUint64/1024 {
		return 0, errdefs.Validationf("attribute %q is out of range, got %d", AttrMemory, mb)
	}
	return uint64(mb) * 1024, nil
}

// memoryMB reads the maximum memory of dom in MB.
func memoryMB(sess session, dom libvirt.Domain) (uint64, error) {
	_, maxMem, _, _, _, err := sess.DomainGetInfo(dom)
	if err != nil {
		return 0, fmt.Errorf("failed to get memory of VM %s: %w", dom.Name, err)
	}
	return maxMem / 1024, nil
}
