package unattend

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-logr/logr"
	"github.com/im7mortal/kmutex"
	"github.com/kdomanski/iso9660"
	"github.com/spf13/afero"

	"github.com/jbweber/anvil/internal/command"
	"github.com/jbweber/anvil/internal/disk"
	"github.com/jbweber/anvil/internal/errdefs"
	"github.com/jbweber/anvil/internal/naming"
)

// Format selects the kind of media image produced.
type Format string

const (
	// Floppy produces a FAT floppy image attached as a floppy device.
	Floppy Format = "floppy"
	// ISO produces an ISO9660 image attached as a CD-ROM.
	ISO Format = "iso"
)

const (
	// AnswerFileName is the file Windows Setup looks for on removable media.
	AnswerFileName = "Autounattend.xml"

	// VolumeLabel marks the ISO as an OEM driver/answer disc.
	VolumeLabel = "OEMDRV"

	// floppyBaseKB is the filesystem overhead of an empty floppy image.
	floppyBaseKB = 1044
)

// ParseFormat maps a configured media format name to a Format.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case "", Floppy:
		return Floppy, nil
	case ISO:
		return ISO, nil
	default:
		return "", errdefs.Validationf("unknown media format %q (expected floppy or iso)", s)
	}
}

// Ext returns the image file extension for f.
func (f Format) Ext() string {
	if f == ISO {
		return ".iso"
	}
	return naming.VolumeExt
}

// Device returns the libvirt disk device type media of format f attaches as.
func (f Format) Device() string {
	if f == ISO {
		return "cdrom"
	}
	return "floppy"
}

// FloppySizeKB returns the floppy image size for a payload of n bytes.
func FloppySizeKB(n int) int {
	return (n+1023)/1024 + floppyBaseKB
}

// Builder writes answer-file media images into an image directory.
type Builder struct {
	imageDir string
	format   Format
	fs       afero.Fs
	runner   command.Runner
	log      logr.Logger
	locks    *kmutex.Kmutex
	chown    func(fsys afero.Fs, path string) error
}

// Option configures a Builder.
type Option func(*Builder)

// WithFormat selects the media format. The default is Floppy.
func WithFormat(f Format) Option {
	return func(b *Builder) { b.format = f }
}

// WithFs sets the filesystem used for staging and publishing images.
func WithFs(fsys afero.Fs) Option {
	return func(b *Builder) { b.fs = fsys }
}

// WithRunner sets the runner used for mkfs.vfat, mount and umount.
func WithRunner(r command.Runner) Option {
	return func(b *Builder) { b.runner = r }
}

// WithLogger sets the logger.
func WithLogger(log logr.Logger) Option {
	return func(b *Builder) { b.log = log }
}

// WithLocks shares a keyed lock set between builders, so builders for
// different endpoints writing into one directory still serialise.
func WithLocks(km *kmutex.Kmutex) Option {
	return func(b *Builder) { b.locks = km }
}

// NewBuilder creates a Builder publishing into imageDir.
func NewBuilder(imageDir string, opts ...Option) *Builder {
	b := &Builder{
		imageDir: imageDir,
		format:   Floppy,
		fs:       afero.NewOsFs(),
		log:      logr.Discard(),
		chown:    disk.ChownToQEMU,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.runner == nil {
		b.runner = command.NewExec(b.log)
	}
	if b.locks == nil {
		b.locks = kmutex.New()
	}
	return b
}

// Format returns the media format this builder produces.
func (b *Builder) Format() Format {
	return b.format
}

// ImagePath returns where the media image for storageName is published.
func (b *Builder) ImagePath(storageName string) string {
	return filepath.Join(b.imageDir, naming.MediaImageName(storageName, b.format.Ext()))
}

// Build writes payload as Autounattend.xml onto a new media image for
// storageName and returns the published image path. Any failure is an
// errdefs.MediaBuild error.
func (b *Builder) Build(ctx context.Context, payload []byte, storageName string) (string, error) {
	if storageName == "" {
		return "", errdefs.Validationf("storage name is required to build media")
	}

	b.locks.Lock(storageName)
	defer b.locks.Unlock(storageName)

	var (
		image []byte
		err   error
	)
	switch b.format {
	case ISO:
		image, err = b.buildISO(payload)
	default:
		image, err = b.buildFloppy(ctx, payload)
	}
	if err != nil {
		return "", err
	}

	path := b.ImagePath(storageName)
	if err := b.publish(path, image); err != nil {
		return "", err
	}

	if err := b.chown(b.fs, path); err != nil {
		b.log.Info("Warning: could not hand media image to the QEMU user", "path", path, "error", err.Error())
	}

	b.log.V(1).Info("built unattended media", "format", string(b.format), "path", path, "payloadBytes", len(payload))
	return path, nil
}

// buildFloppy formats a FAT image in a private staging directory, loop
// mounts it, copies the answer file in and returns the image bytes.
func (b *Builder) buildFloppy(ctx context.Context, payload []byte) (image []byte, err error) {
	staging, err := afero.TempDir(b.fs, "", "anvil-unattend-")
	if err != nil {
		return nil, errdefs.Wrap(errdefs.MediaBuild, err, "failed to create staging directory")
	}

	imgPath := filepath.Join(staging, "floppy.img")
	mnt := filepath.Join(staging, "mnt")
	mounted := false

	defer func() {
		if mounted {
			if _, uerr := b.runner.Run(context.WithoutCancel(ctx), "umount", mnt); uerr != nil {
				b.log.Error(uerr, "failed to unmount staging mount point", "path", mnt)
			}
		}
		if rerr := b.fs.RemoveAll(staging); rerr != nil {
			b.log.Error(rerr, "failed to remove staging directory", "path", staging)
		}
	}()

	answer := filepath.Join(staging, AnswerFileName)
	if err := afero.WriteFile(b.fs, answer, payload, 0o644); err != nil {
		return nil, errdefs.Wrap(errdefs.MediaBuild, err, "failed to stage answer file")
	}
	if err := b.fs.MkdirAll(mnt, 0o755); err != nil {
		return nil, errdefs.Wrap(errdefs.MediaBuild, err, "failed to create mount point")
	}

	size := strconv.Itoa(FloppySizeKB(len(payload)))
	if _, err := b.runner.Run(ctx, "mkfs.vfat", "-C", imgPath, size); err != nil {
		return nil, errdefs.Wrap(errdefs.MediaBuild, err, "failed to format floppy image")
	}

	if _, err := b.runner.Run(ctx, "mount", "-o", "loop", imgPath, mnt); err != nil {
		return nil, errdefs.Wrap(errdefs.MediaBuild, err, "failed to mount floppy image")
	}
	mounted = true

	if err := copyFile(b.fs, answer, filepath.Join(mnt, AnswerFileName)); err != nil {
		return nil, errdefs.Wrap(errdefs.MediaBuild, err, "failed to copy answer file onto floppy")
	}

	if _, err := b.runner.Run(ctx, "umount", mnt); err != nil {
		return nil, errdefs.Wrap(errdefs.MediaBuild, err, "failed to unmount floppy image")
	}
	mounted = false

	image, err = afero.ReadFile(b.fs, imgPath)
	if err != nil {
		return nil, errdefs.Wrap(errdefs.MediaBuild, err, "failed to read floppy image")
	}
	return image, nil
}

// buildISO writes payload into an in-memory ISO9660 image.
func (b *Builder) buildISO(payload []byte) ([]byte, error) {
	writer, err := iso9660.NewWriter()
	if err != nil {
		return nil, errdefs.Wrap(errdefs.MediaBuild, err, "failed to create ISO writer")
	}
	defer func() {
		// The ISO is complete once WriteTo returns.
		_ = writer.Cleanup()
	}()

	if err := writer.AddFile(bytes.NewReader(payload), AnswerFileName); err != nil {
		return nil, errdefs.Wrap(errdefs.MediaBuild, err, "failed to add answer file")
	}

	var buf bytes.Buffer
	if err := writer.WriteTo(&buf, VolumeLabel); err != nil {
		return nil, errdefs.Wrap(errdefs.MediaBuild, err, "failed to write ISO image")
	}
	return buf.Bytes(), nil
}

// publish writes image next to path and renames it into place, so a
// failed write never leaves a truncated image at path.
func (b *Builder) publish(path string, image []byte) error {
	if err := b.fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errdefs.Wrap(errdefs.MediaBuild, err, "failed to create image directory")
	}

	partial := path + ".partial"
	if err := afero.WriteFile(b.fs, partial, image, 0o644); err != nil {
		_ = b.fs.Remove(partial)
		return errdefs.Wrap(errdefs.MediaBuild, err, "failed to write media image")
	}
	if err := b.fs.Rename(partial, path); err != nil {
		_ = b.fs.Remove(partial)
		return errdefs.Wrap(errdefs.MediaBuild, err, "failed to publish media image")
	}
	return nil
}

func copyFile(fsys afero.Fs, src, dst string) error {
	in, err := fsys.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := fsys.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to flush %s: %w", dst, err)
	}
	return nil
}
