// Package profile supplies per-hypervisor-type default attributes.
//
// The supported hypervisor types form a closed set. Every type has exactly
// one entry in the defaults table and every entry sets os_type, so callers
// can rely on it being present after Resolve.
package profile

import (
	"fmt"
	"maps"
	"strings"

	"github.com/jbweber/anvil/internal/errdefs"
)

// Type identifies a hypervisor back end.
type Type int

const (
	// KVM is QEMU/KVM full virtualization.
	KVM Type = iota + 1
	// Xen is Xen paravirtualization.
	Xen
	// LXC is libvirt's Linux container driver.
	LXC
)

// Types lists every supported hypervisor type.
var Types = []Type{KVM, Xen, LXC}

// Attribute keys filled in from the defaults table.
const (
	KeyOSType       = "os_type"
	KeyDiskDriver   = "disk_driver"
	KeyDiskType     = "disk_type"
	KeyDomainType   = "domain_type"
	KeyDiskBus      = "disk_bus"
	KeyDiskTarget   = "disk_target"
	KeyEmulatorPath = "emulator_path"
)

// ParseType parses a hypervisor type name such as "kvm".
func ParseType(s string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "kvm", "qemu":
		return KVM, nil
	case "xen":
		return Xen, nil
	case "lxc":
		return LXC, nil
	default:
		return 0, errdefs.NotSupportedf("unknown hypervisor type %q", s)
	}
}

func (t Type) String() string {
	switch t {
	case KVM:
		return "kvm"
	case Xen:
		return "xen"
	case LXC:
		return "lxc"
	default:
		return fmt.Sprintf("Type(%d)", int(t))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (t Type) MarshalText() ([]byte, error) {
	if _, err := GetDefaults(t); err != nil {
		return nil, err
	}
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Type) UnmarshalText(text []byte) error {
	parsed, err := ParseType(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// GetDefaults returns a fresh copy of the default attributes for t.
func GetDefaults(t Type) (map[string]string, error) {
	switch t {
	case KVM:
		return map[string]string{
			KeyOSType:     "hvm",
			KeyDiskDriver: "qemu",
			KeyDiskType:   "raw",
			KeyDomainType: "kvm",
			KeyDiskBus:    "virtio",
			KeyDiskTarget: "vda",
		}, nil
	case Xen:
		return map[string]string{
			KeyOSType:     "linux",
			KeyDiskDriver: "tap",
			KeyDiskType:   "raw",
			KeyDomainType: "xen",
			KeyDiskBus:    "xen",
			KeyDiskTarget: "xvda",
		}, nil
	case LXC:
		return map[string]string{
			KeyOSType:     "exe",
			KeyDiskDriver: "loop",
			KeyDiskType:   "raw",
			KeyDomainType: "lxc",
		}, nil
	default:
		return nil, errdefs.NotSupportedf("unknown hypervisor type %v", t)
	}
}

// Endpoint is the endpoint configuration a profile consults.
type Endpoint interface {
	HypervisorType() Type
	Emulator() string
	DefaultAttributes() map[string]string
}

// ResolveEmulatorPath returns the emulator path from attrs if present,
// otherwise from the endpoint configuration.
func ResolveEmulatorPath(ep Endpoint, attrs map[string]any) (string, error) {
	if v, ok := attrs[KeyEmulatorPath]; ok && v != nil {
		if s := strings.TrimSpace(fmt.Sprint(v)); s != "" {
			return s, nil
		}
	}
	if s := strings.TrimSpace(ep.Emulator()); s != "" {
		return s, nil
	}
	return "", errdefs.Configurationf("emulator path not found for %s endpoint", ep.HypervisorType())
}

// Resolve returns a copy of attrs with every missing default filled in.
// Values already in attrs win, then endpoint defaults, then the type table.
func Resolve(ep Endpoint, attrs map[string]any) (map[string]any, error) {
	table, err := GetDefaults(ep.HypervisorType())
	if err != nil {
		return nil, err
	}
	maps.Copy(table, ep.DefaultAttributes())

	out := make(map[string]any, len(attrs)+len(table)+1)
	for k, v := range table {
		out[k] = v
	}
	for k, v := range attrs {
		if blank(v) {
			continue
		}
		out[k] = v
	}

	emulator, err := ResolveEmulatorPath(ep, attrs)
	if err != nil {
		return nil, err
	}
	out[KeyEmulatorPath] = emulator

	return out, nil
}

// blank reports whether v is nil or a whitespace-only string.
func blank(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && strings.TrimSpace(s) == ""
}
