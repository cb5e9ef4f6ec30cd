package storage

import (
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/jbweber/anvil/internal/errdefs"
)

// unitShift maps the single-letter disk size units to powers of two.
var unitShift = map[string]uint{
	"k": 10,
	"K": 10,
	"M": 20,
	"G": 30,
	"T": 40,
}

// SizeToBytes converts size expressed in unit (k, K, M, G or T) to bytes.
func SizeToBytes(size uint64, unit string) (uint64, error) {
	shift, ok := unitShift[unit]
	if !ok {
		return 0, errdefs.Validationf("unknown disk size unit %q (expected k, K, M, G or T)", unit)
	}
	if size > (^uint64(0))>>shift {
		return 0, errdefs.Validationf("disk size %d%s overflows", size, unit)
	}
	return size << shift, nil
}

// ParseSize parses a human size such as "20G", "512M", "20 GiB" or
// "1.5TB". A bare integer followed by one of the single-letter units is
// binary, matching SizeToBytes; anything else is handed to go-humanize.
func ParseSize(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errdefs.Validationf("empty disk size")
	}

	if unit := s[len(s)-1:]; unitShift[unit] != 0 {
		if n, err := strconv.ParseUint(strings.TrimSpace(s[:len(s)-1]), 10, 64); err == nil {
			return SizeToBytes(n, unit)
		}
	}

	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, errdefs.Wrap(errdefs.Validation, err, "invalid disk size %q", s)
	}
	return n, nil
}
