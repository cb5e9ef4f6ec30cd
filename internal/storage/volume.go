package storage

import (
	"context"
	"fmt"

	"github.com/digitalocean/go-libvirt"
	libvirtxml "libvirt.org/go/libvirtxml"

	"github.com/jbweber/anvil/internal/disk"
	"github.com/jbweber/anvil/internal/errdefs"
	lv "github.com/jbweber/anvil/internal/libvirt"
)

// CreateVolume creates a volume in poolName from a rendered volume
// descriptor. An existing volume with the same name is never overwritten.
func (m *Manager) CreateVolume(ctx context.Context, poolName, descriptor string) (*Volume, error) {
	var spec libvirtxml.StorageVolume
	if err := spec.Unmarshal(descriptor); err != nil {
		return nil, errdefs.Wrap(errdefs.Validation, err, "invalid volume descriptor")
	}
	if spec.Name == "" {
		return nil, errdefs.Validationf("volume descriptor has no name")
	}

	pool, err := m.lookupPool(poolName)
	if err != nil {
		return nil, err
	}

	if _, err := m.client.StorageVolLookupByName(pool, spec.Name); err == nil {
		return nil, errdefs.AlreadyExistsf("volume %s already exists in pool %s", spec.Name, poolName)
	} else if !lv.IsNoStorageVol(err) {
		return nil, fmt.Errorf("failed to check for volume %s: %w", spec.Name, err)
	}

	vol, err := m.client.StorageVolCreateXML(pool, descriptor, 0)
	if err != nil {
		if lv.HasErrorCode(err, libvirt.ErrStorageVolExist) {
			return nil, errdefs.Wrap(errdefs.AlreadyExists, err, "volume %s already exists in pool %s", spec.Name, poolName)
		}
		return nil, fmt.Errorf("failed to create volume %s: %w", spec.Name, err)
	}

	m.log.V(1).Info("created volume", "pool", poolName, "volume", spec.Name)
	return m.describe(vol)
}

// LookupVolume returns the volume name in poolName.
func (m *Manager) LookupVolume(ctx context.Context, poolName, name string) (*Volume, error) {
	pool, err := m.lookupPool(poolName)
	if err != nil {
		return nil, err
	}

	vol, err := m.client.StorageVolLookupByName(pool, name)
	if err != nil {
		if lv.IsNoStorageVol(err) {
			return nil, errdefs.NotFoundf("volume %s not found in pool %s", name, poolName)
		}
		return nil, fmt.Errorf("failed to look up volume %s: %w", name, err)
	}
	return m.describe(vol)
}

// GetSize returns the capacity in bytes of volume name in poolName.
func (m *Manager) GetSize(ctx context.Context, poolName, name string) (uint64, error) {
	vol, err := m.LookupVolume(ctx, poolName, name)
	if err != nil {
		return 0, err
	}
	return vol.Capacity, nil
}

// VolumePath gets the full filesystem path for a volume.
func (m *Manager) VolumePath(ctx context.Context, poolName, name string) (string, error) {
	vol, err := m.LookupVolume(ctx, poolName, name)
	if err != nil {
		return "", err
	}
	return vol.Path, nil
}

// DeleteVolume removes volume name from poolName. A volume that is
// already gone is not an error.
func (m *Manager) DeleteVolume(ctx context.Context, poolName, name string) (disk.Outcome, error) {
	pool, err := m.lookupPool(poolName)
	if err != nil {
		return 0, err
	}

	vol, err := m.client.StorageVolLookupByName(pool, name)
	if err != nil {
		if lv.IsNoStorageVol(err) {
			return disk.AlreadyAbsent, nil
		}
		return 0, fmt.Errorf("failed to look up volume %s: %w", name, err)
	}
	return m.deleteVol(vol)
}

// DeleteVolumeByPath removes the file at path. Paths known to a pool are
// deleted through libvirt; anything else is removed from the filesystem.
func (m *Manager) DeleteVolumeByPath(ctx context.Context, path string) (disk.Outcome, error) {
	vol, err := m.client.StorageVolLookupByPath(path)
	if err != nil {
		if !lv.IsNoStorageVol(err) {
			m.log.V(1).Info("volume lookup by path failed, removing file directly", "path", path, "error", err.Error())
		}
		return disk.RemoveFile(m.fs, path)
	}
	return m.deleteVol(vol)
}

// RefreshPool asks libvirt to rescan poolName.
func (m *Manager) RefreshPool(ctx context.Context, poolName string) error {
	pool, err := m.lookupPool(poolName)
	if err != nil {
		return err
	}
	if err := m.client.StoragePoolRefresh(pool, 0); err != nil {
		return fmt.Errorf("failed to refresh pool %s: %w", poolName, err)
	}
	return nil
}

func (m *Manager) deleteVol(vol libvirt.StorageVol) (disk.Outcome, error) {
	if err := m.client.StorageVolDelete(vol, 0); err != nil {
		// Another caller may have won the race.
		if lv.IsNoStorageVol(err) {
			return disk.AlreadyAbsent, nil
		}
		return 0, fmt.Errorf("failed to delete volume %s: %w", vol.Name, err)
	}
	m.log.V(1).Info("deleted volume", "pool", vol.Pool, "volume", vol.Name)
	return disk.Deleted, nil
}

func (m *Manager) lookupPool(poolName string) (libvirt.StoragePool, error) {
	pool, err := m.client.StoragePoolLookupByName(poolName)
	if err != nil {
		if lv.IsNoStoragePool(err) {
			return libvirt.StoragePool{}, errdefs.NotFoundf("storage pool %s not found", poolName)
		}
		return libvirt.StoragePool{}, fmt.Errorf("failed to look up pool %s: %w", poolName, err)
	}
	return pool, nil
}

// describe fills in path, capacity and format for vol.
func (m *Manager) describe(vol libvirt.StorageVol) (*Volume, error) {
	path, err := m.client.StorageVolGetPath(vol)
	if err != nil {
		return nil, fmt.Errorf("failed to get volume path: %w", err)
	}

	_, capacity, _, err := m.client.StorageVolGetInfo(vol)
	if err != nil {
		return nil, fmt.Errorf("failed to get volume info: %w", err)
	}

	v := &Volume{
		Pool:     vol.Pool,
		Name:     vol.Name,
		Path:     path,
		Capacity: capacity,
	}

	// The format is advisory; qemu-img can probe when it is missing.
	if desc, err := m.client.StorageVolGetXMLDesc(vol, 0); err == nil {
		var x libvirtxml.StorageVolume
		if err := x.Unmarshal(desc); err == nil && x.Target != nil && x.Target.Format != nil {
			v.Format = x.Target.Format.Type
		}
	}

	return v, nil
}
