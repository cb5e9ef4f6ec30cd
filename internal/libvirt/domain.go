package libvirt

import (
	"fmt"

	"libvirt.org/go/libvirtxml"

	"github.com/jbweber/anvil/internal/naming"
)

// NoVNCPort is returned by VNCPort when the domain has no usable VNC display.
const NoVNCPort = -1

// Descriptor is a parsed domain descriptor with typed accessors.
type Descriptor struct {
	dom libvirtxml.Domain
}

// ParseDescriptor parses domain XML as returned by DomainGetXMLDesc.
func ParseDescriptor(xml string) (*Descriptor, error) {
	d := &Descriptor{}
	if err := d.dom.Unmarshal(xml); err != nil {
		return nil, fmt.Errorf("failed to parse domain XML: %w", err)
	}
	return d, nil
}

// Name returns the domain name.
func (d *Descriptor) Name() string {
	return d.dom.Name
}

// UUID returns the domain UUID, empty for descriptors that omit it.
func (d *Descriptor) UUID() string {
	return d.dom.UUID
}

// Domain returns the underlying document.
func (d *Descriptor) Domain() *libvirtxml.Domain {
	return &d.dom
}

// VNCPort returns the port of the first VNC display, or NoVNCPort when
// there is no VNC element or its port is not yet allocated.
func (d *Descriptor) VNCPort() int {
	if d.dom.Devices == nil {
		return NoVNCPort
	}
	for _, g := range d.dom.Devices.Graphics {
		if g.VNC == nil {
			continue
		}
		if g.VNC.Port > 0 {
			return g.VNC.Port
		}
		return NoVNCPort
	}
	return NoVNCPort
}

// VolumePaths returns the file-backed storage the domain owns: disk and
// floppy devices, container filesystems, and answer-file media attached as
// a CD-ROM. Other CD-ROM images are shared installers and are not listed.
func (d *Descriptor) VolumePaths() []string {
	if d.dom.Devices == nil {
		return nil
	}

	var paths []string
	seen := make(map[string]bool)
	add := func(p string) {
		if p != "" && !seen[p] {
			seen[p] = true
			paths = append(paths, p)
		}
	}

	for _, disk := range d.dom.Devices.Disks {
		if disk.Source == nil || disk.Source.File == nil {
			continue
		}
		path := disk.Source.File.File
		switch disk.Device {
		case "cdrom":
			if naming.IsMediaImage(path) {
				add(path)
			}
		case "", "disk", "floppy":
			add(path)
		}
	}
	for _, fs := range d.dom.Devices.Filesystems {
		if fs.Source != nil && fs.Source.File != nil {
			add(fs.Source.File.File)
		}
	}
	return paths
}
