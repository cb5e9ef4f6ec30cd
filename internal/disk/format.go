package disk

import (
	"bytes"
	"fmt"
	"io"
	"os"
)

// Image formats understood by qemu-img.
const (
	FormatQCOW2 = "qcow2"
	FormatRaw   = "raw"
)

var (
	// qcow2Magic is "QFI" followed by 0xfb at offset 0.
	// Reference: https://www.qemu.org/docs/master/interop/qcow2.html
	qcow2Magic = []byte{0x51, 0x46, 0x49, 0xfb}

	// mbrSignature is the boot sector signature at offset 510. GPT disks
	// carry it too in their protective MBR.
	mbrSignature = []byte{0x55, 0xaa}
)

// DetectImageFormat reads magic bytes to identify the image format.
// Returns FormatQCOW2 for QCOW2 images and FormatRaw for images with a boot
// sector. Anything else is an error, so callers can fall back to letting
// qemu-img probe instead of guessing.
func DetectImageFormat(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer func() { _ = f.Close() }()

	magic := make([]byte, 4)
	if _, err := io.ReadFull(f, magic); err != nil {
		return "", fmt.Errorf("file too small to be valid image (< 4 bytes): %w", err)
	}
	if bytes.Equal(magic, qcow2Magic) {
		return FormatQCOW2, nil
	}

	sig := make([]byte, 2)
	if _, err := f.ReadAt(sig, 510); err != nil {
		return "", fmt.Errorf("file too small for boot sector (< 512 bytes): %w", err)
	}
	if bytes.Equal(sig, mbrSignature) {
		return FormatRaw, nil
	}

	return "", fmt.Errorf("unrecognized image format: not qcow2 and no boot sector signature")
}
