// Package disk performs host-side operations on VM disk and media files:
// resizing images with qemu-img, removing files with an explicit outcome,
// detecting image formats, and handing files to the QEMU user.
//
// NOTE: These operations bypass libvirt storage pools. They are used when
// the pool API cannot serve a request (a path outside any pool, or an
// operation libvirt does not expose such as an in-place signed resize).
package disk

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strconv"

	"github.com/spf13/afero"

	"github.com/jbweber/anvil/internal/command"
	"github.com/jbweber/anvil/internal/errdefs"
)

// Outcome classifies a deletion that did not fail.
type Outcome int

const (
	// Deleted means the file or volume existed and was removed.
	Deleted Outcome = iota + 1
	// AlreadyAbsent means there was nothing to remove.
	AlreadyAbsent
)

func (o Outcome) String() string {
	switch o {
	case Deleted:
		return "deleted"
	case AlreadyAbsent:
		return "already absent"
	default:
		return "unknown"
	}
}

// RemoveFile deletes path. A missing file is reported as AlreadyAbsent;
// any other failure is returned.
func RemoveFile(fsys afero.Fs, path string) (Outcome, error) {
	err := fsys.Remove(path)
	switch {
	case err == nil:
		return Deleted, nil
	case errors.Is(err, fs.ErrNotExist):
		return AlreadyAbsent, nil
	default:
		return 0, fmt.Errorf("failed to remove %s: %w", path, err)
	}
}

// Resize grows or shrinks the image at path by delta bytes using
// qemu-img. format may be empty to let qemu-img probe. A zero delta runs
// nothing. A failing tool yields an errdefs.Resize error carrying its
// diagnostic output.
func Resize(ctx context.Context, runner command.Runner, path, format string, delta int64) error {
	if delta == 0 {
		return nil
	}

	args := []string{"resize"}
	if format != "" {
		args = append(args, "-f", format)
	}
	if delta < 0 {
		args = append(args, "--shrink")
	}
	args = append(args, path, signed(delta))

	if _, err := runner.Run(ctx, "qemu-img", args...); err != nil {
		if command.IsTimeout(err) {
			return errdefs.Wrap(errdefs.Resize, err, "timed out resizing %s; the image may be locked by a running VM", path)
		}
		return errdefs.Wrap(errdefs.Resize, err, "failed to resize %s by %s bytes", path, signed(delta))
	}
	return nil
}

func signed(n int64) string {
	if n > 0 {
		return "+" + strconv.FormatInt(n, 10)
	}
	return strconv.FormatInt(n, 10)
}
