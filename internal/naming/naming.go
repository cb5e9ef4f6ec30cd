// Package naming holds the naming conventions for resources anvil creates
// on a hypervisor: disk volumes, unattended-install media images, and
// derived MAC addresses.
package naming

import (
	"fmt"
	"net"
	"path/filepath"
	"strings"
)

// VolumeExt is the file extension of VM disk volumes.
const VolumeExt = ".img"

// mediaPrefix starts the file name of every unattended-install media image.
const mediaPrefix = "floppy-"

// VolumeName returns the pool volume name for a storage name.
// Format: {storageName}.img
func VolumeName(storageName string) string {
	return storageName + VolumeExt
}

// MediaImageName returns the file name of the persisted answer-file media
// for a storage name. ext is ".img" for floppies and ".iso" for CD images.
// Format: floppy-{storageName}{ext}
func MediaImageName(storageName, ext string) string {
	return mediaPrefix + storageName + ext
}

// IsMediaImage reports whether path names an answer-file media image.
func IsMediaImage(path string) bool {
	return strings.HasPrefix(filepath.Base(path), mediaPrefix)
}

// MACFromIP calculates a deterministic MAC address from an IPv4 address.
// Uses the locally administered prefix be:ef.
//
// Example: IP 10.55.22.22 → MAC be:ef:0a:37:16:16
func MACFromIP(ip string) (string, error) {
	addr := ip
	if strings.Contains(ip, "/") {
		parsed, _, err := net.ParseCIDR(ip)
		if err != nil {
			return "", fmt.Errorf("invalid IP/CIDR: %w", err)
		}
		addr = parsed.String()
	}

	parsed := net.ParseIP(addr)
	if parsed == nil {
		return "", fmt.Errorf("invalid IP address: %s", addr)
	}
	v4 := parsed.To4()
	if v4 == nil {
		return "", fmt.Errorf("not an IPv4 address: %s", addr)
	}

	return fmt.Sprintf("be:ef:%02x:%02x:%02x:%02x", v4[0], v4[1], v4[2], v4[3]), nil
}
