// Package storage provisions and sizes VM disk volumes in libvirt storage
// pools.
//
// This package handles:
//   - Volume creation from a rendered volume descriptor
//   - Capacity lookup and signed resizing (qemu-img, then pool refresh)
//   - Idempotent deletion by pool and name, or by path
//   - Disk size unit conversion
//
// Volume Naming Convention:
//
// Disk volumes are named after the VM's storage name with an ".img"
// suffix (see internal/naming). Volumes live in the endpoint's pool,
// "default" unless configured otherwise.
//
// Deletion Outcomes:
//
// Delete operations report disk.Deleted or disk.AlreadyAbsent. A path that
// no pool knows about is removed from the filesystem directly, so media
// images written outside a pool are cleaned up the same way as disks.
//
// Consumer-Side Interface:
//
// The LibvirtClient interface lists only the storage RPCs this package
// needs. *libvirt.Libvirt from go-libvirt satisfies it.
//
// Example usage:
//
//	mgr := storage.NewManager(client.Libvirt(), storage.WithLogger(log))
//
//	vol, err := mgr.CreateVolume(ctx, "default", descriptor)
//	if err != nil {
//	    return err
//	}
//
//	target, _ := storage.SizeToBytes(40, "G")
//	if _, err := mgr.ResizeTo(ctx, vol, target); err != nil {
//	    return err
//	}
package storage
