package vm

import (
	"context"
	"math"
	"time"

	"github.com/spf13/cast"

	"github.com/jbweber/anvil/internal/config"
	"github.com/jbweber/anvil/internal/errdefs"
	"github.com/jbweber/anvil/internal/naming"
	"github.com/jbweber/anvil/internal/storage"
)

// GetDiskSize returns the capacity in bytes of the disk volume named by
// attrs["storage_name"].
func (c *Controller) GetDiskSize(ctx context.Context, id string, attrs Attributes) (size uint64, err error) {
	defer c.observe("get_disk_size", time.Now(), &err)

	storageName, err := attrs.Required(AttrStorageName)
	if err != nil {
		return 0, err
	}

	err = c.withSession(ctx, id, func(ep config.Endpoint, sess session) error {
		size, err = c.volumes(sess).GetSize(ctx, ep.StoragePool, naming.VolumeName(storageName))
		return err
	})
	return size, err
}

// SetDiskSize resizes the disk volume named by attrs["storage_name"] to
// attrs["disk_size"] in attrs["disk_size_unit"] (G when absent) and
// returns the new capacity in bytes.
//
// Shrinking discards everything past the new end of the image. The guest
// filesystem must be shrunk first.
func (c *Controller) SetDiskSize(ctx context.Context, id string, attrs Attributes) (size uint64, err error) {
	defer c.observe("set_disk_size", time.Now(), &err)

	storageName, err := attrs.Required(AttrStorageName)
	if err != nil {
		return 0, err
	}
	target, err := targetSize(attrs)
	if err != nil {
		return 0, err
	}

	err = c.withSession(ctx, id, func(ep config.Endpoint, sess session) error {
		sm := c.volumes(sess)
		vol, err := sm.LookupVolume(ctx, ep.StoragePool, naming.VolumeName(storageName))
		if err != nil {
			return err
		}

		c.log.Info("Resizing disk", "endpoint", ep.ID, "volume", vol.Name,
			"from", vol.HumanCapacity(), "toBytes", target)
		size, err = sm.ResizeTo(ctx, vol, target)
		return err
	})
	return size, err
}

// targetSize reads disk_size and disk_size_unit. A whole number uses the
// unit; a string with its own suffix such as "40GiB" is parsed as is.
// Zero, fractional numbers and sizes past the largest signed offset are
// rejected.
func targetSize(attrs Attributes) (uint64, error) {
	raw, err := attrs.Required(AttrDiskSize)
	if err != nil {
		return 0, err
	}

	var size uint64
	if n, ok := wholeNumber(attrs[AttrDiskSize]); ok {
		if n <= 0 {
			return 0, errdefs.Validationf("attribute %q must be positive, got %v", AttrDiskSize, raw)
		}
		unit := attrs.String(AttrDiskSizeUnit)
		if unit == "" {
			unit = "G"
		}
		if size, err = storage.SizeToBytes(uint64(n), unit); err != nil {
			return 0, err
		}
	} else {
		if _, err := cast.ToFloat64E(attrs[AttrDiskSize]); err == nil {
			return 0, errdefs.Validationf("attribute %q must be a whole number, got %v", AttrDiskSize, raw)
		}
		if size, err = storage.ParseSize(raw); err != nil {
			return 0, err
		}
	}

	if size == 0 || size > math.MaxInt64 {
		return 0, errdefs.Validationf("disk size %s is out of range", raw)
	}
	return size, nil
}
