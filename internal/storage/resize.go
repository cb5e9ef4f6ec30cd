package storage

import (
	"context"
	"math"

	"github.com/jbweber/anvil/internal/disk"
	"github.com/jbweber/anvil/internal/errdefs"
)

// Resize grows (positive delta) or shrinks (negative delta) vol by delta
// bytes with qemu-img, then refreshes the pool so later size reads see the
// new capacity. A zero delta does nothing.
//
// Shrinking an image whose guest filesystem was not shrunk first loses
// data; callers own that decision.
func (m *Manager) Resize(ctx context.Context, vol *Volume, delta int64) error {
	if delta == 0 {
		return nil
	}

	format := vol.Format
	if format == "" {
		if detected, err := disk.DetectImageFormat(vol.Path); err == nil {
			format = detected
		}
	}

	if err := disk.Resize(ctx, m.runner, vol.Path, format, delta); err != nil {
		return err
	}

	m.log.Info("resized volume", "pool", vol.Pool, "volume", vol.Name, "delta", delta)

	if vol.Pool == "" {
		return nil
	}
	return m.RefreshPool(ctx, vol.Pool)
}

// ResizeTo resizes vol so that its capacity becomes target bytes and
// returns the new capacity as reported by libvirt.
func (m *Manager) ResizeTo(ctx context.Context, vol *Volume, target uint64) (uint64, error) {
	if target == 0 || target > math.MaxInt64 || vol.Capacity > math.MaxInt64 {
		return 0, errdefs.Validationf("cannot resize volume %s from %d to %d bytes", vol.Name, vol.Capacity, target)
	}
	delta := int64(target) - int64(vol.Capacity)
	if err := m.Resize(ctx, vol, delta); err != nil {
		return 0, err
	}
	if delta == 0 || vol.Pool == "" {
		return target, nil
	}
	return m.GetSize(ctx, vol.Pool, vol.Name)
}
