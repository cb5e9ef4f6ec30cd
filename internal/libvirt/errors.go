package libvirt

import (
	"errors"

	"github.com/digitalocean/go-libvirt"
)

// HasErrorCode reports whether err is a libvirt RPC error carrying one of
// the given codes.
func HasErrorCode(err error, codes ...libvirt.ErrorNumber) bool {
	var lerr libvirt.Error
	if !errors.As(err, &lerr) {
		return false
	}
	for _, code := range codes {
		if lerr.Code == uint32(code) {
			return true
		}
	}
	return false
}

// IsNoDomain reports whether err means the domain does not exist.
func IsNoDomain(err error) bool {
	return HasErrorCode(err, libvirt.ErrNoDomain)
}

// IsNoStorageVol reports whether err means the volume does not exist.
func IsNoStorageVol(err error) bool {
	return HasErrorCode(err, libvirt.ErrNoStorageVol)
}

// IsNoStoragePool reports whether err means the pool does not exist.
func IsNoStoragePool(err error) bool {
	return HasErrorCode(err, libvirt.ErrNoStoragePool)
}
