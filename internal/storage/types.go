package storage

import (
	"github.com/dustin/go-humanize"
)

// Volume identifies a libvirt storage volume and its last observed shape.
type Volume struct {
	Pool     string // Pool name
	Name     string // Volume name (e.g., "web01.img")
	Path     string // Full path to volume
	Format   string // Disk format (qcow2, raw), empty when libvirt does not report one
	Capacity uint64 // Capacity in bytes
}

// HumanCapacity renders the capacity with binary units, e.g. "20 GiB".
func (v *Volume) HumanCapacity() string {
	return humanize.IBytes(v.Capacity)
}
