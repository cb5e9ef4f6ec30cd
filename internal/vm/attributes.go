package vm

import (
	"maps"
	"math"
	"strconv"
	"strings"

	"github.com/spf13/cast"

	"github.com/jbweber/anvil/internal/errdefs"
)

// Attribute keys read by the controller. Templates may consume more.
const (
	AttrName          = "name"
	AttrStorageName   = "storage_name"
	AttrMemory        = "memory"
	AttrNumCPU        = "num_cpu"
	AttrDiskSize      = "disk_size"
	AttrDiskSizeUnit  = "disk_size_unit"
	AttrBootDev       = "boot_dev"
	AttrNetwork       = "network"
	AttrMACAddress    = "mac_address"
	AttrIP            = "ip"
	AttrAutounattend  = "autounattend"
	AttrDeleteVolumes = "delete_volumes"
	AttrVNCPort       = "vnc_port"
	AttrVNCAutoport   = "vnc_autoport"
	AttrVNCListen     = "vnc_listen"

	attrMode        = "mode"
	attrUUID        = "uuid"
	attrDiskPath    = "disk_path"
	attrFloppy      = "floppy"
	attrFloppyPath  = "floppy_path"
	attrMediaDevice = "media_device"
	attrMediaTarget = "media_target"
	attrMediaBus    = "media_bus"
)

// Render modes.
const (
	modeCreate = "create"
	modeDefine = "define"
)

// commonDefaults apply to every hypervisor type after the profile table.
var commonDefaults = map[string]any{
	AttrBootDev:      "hd",
	AttrNetwork:      "default",
	AttrDiskSizeUnit: "G",
	AttrVNCPort:      "-1",
	AttrVNCAutoport:  "yes",
	AttrVNCListen:    "0.0.0.0",
}

// Attributes is the loosely typed key/value map describing a VM. Values
// arrive from YAML, flags or callers as strings, numbers or booleans.
type Attributes map[string]any

// Clone returns a shallow copy.
func (a Attributes) Clone() Attributes {
	return maps.Clone(a)
}

// Has reports whether key is present with a non-nil, non-empty value.
func (a Attributes) Has(key string) bool {
	v, ok := a[key]
	if !ok || v == nil {
		return false
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) != ""
	}
	return true
}

// String returns the value of key as a string, or "" when absent.
func (a Attributes) String(key string) string {
	if !a.Has(key) {
		return ""
	}
	return strings.TrimSpace(cast.ToString(a[key]))
}

// Required returns the string value of key or a Validation error.
func (a Attributes) Required(key string) (string, error) {
	s := a.String(key)
	if s == "" {
		return "", errdefs.Validationf("attribute %q is required", key)
	}
	return s, nil
}

// PositiveInt returns key as an integer greater than zero. Strings must
// be base-10 integers; floats must have no fractional part.
func (a Attributes) PositiveInt(key string) (int, error) {
	if !a.Has(key) {
		return 0, errdefs.Validationf("attribute %q is required", key)
	}
	n, ok := wholeNumber(a[key])
	if !ok {
		return 0, errdefs.Validationf("attribute %q must be an integer, got %v", key, a[key])
	}
	if n <= 0 || n > math.MaxInt {
		return 0, errdefs.Validationf("attribute %q must be a positive integer, got %v", key, a[key])
	}
	return int(n), nil
}

// wholeNumber converts v to an int64 when it is an integer value, a float
// without fraction (JSON numbers decode as float64) or a base-10 string.
// Booleans and anything else are rejected.
func wholeNumber(v any) (int64, bool) {
	switch x := v.(type) {
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
		return n, err == nil
	case float64:
		return wholeFloat(x)
	case float32:
		return wholeFloat(float64(x))
	case uint:
		return int64(x), uint64(x) <= math.MaxInt64
	case uint64:
		return int64(x), x <= math.MaxInt64
	case int, int8, int16, int32, int64, uint8, uint16, uint32:
		n, err := cast.ToInt64E(x)
		return n, err == nil
	}
	return 0, false
}

func wholeFloat(f float64) (int64, bool) {
	if math.IsNaN(f) || math.Trunc(f) != f || f < -(1<<63) || f >= 1<<63 {
		return 0, false
	}
	return int64(f), true
}

// Bool returns key as a boolean. Besides the forms strconv accepts,
// "yes", "y", "no" and "n" are understood. Absent keys are false.
func (a Attributes) Bool(key string) bool {
	if !a.Has(key) {
		return false
	}
	if s, ok := a[key].(string); ok {
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "yes", "y", "on":
			return true
		case "no", "n", "off":
			return false
		}
	}
	b, err := cast.ToBoolE(a[key])
	return err == nil && b
}

// templateMap converts the attributes into template input.
func (a Attributes) templateMap() map[string]any {
	return map[string]any(a)
}
