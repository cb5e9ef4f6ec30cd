package command

import (
	"context"
	"errors"
	"os/exec"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingObserver struct {
	names []string
	errs  []error
}

func (o *recordingObserver) ObserveCommand(name string, err error) {
	o.names = append(o.names, name)
	o.errs = append(o.errs, err)
}

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestExecRun_Success(t *testing.T) {
	requireShell(t)
	obs := &recordingObserver{}
	r := &Exec{Log: logr.Discard(), Observer: obs}

	res, err := r.Run(context.Background(), "sh", "-c", "echo out; echo err >&2")
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, "out\n", res.Stdout)
	assert.Equal(t, "err\n", res.Stderr)
	assert.Equal(t, []string{"sh"}, obs.names)
	assert.Nil(t, obs.errs[0])
}

func TestExecRun_NonZeroExit(t *testing.T) {
	requireShell(t)
	r := NewExec(logr.Discard())

	res, err := r.Run(context.Background(), "sh", "-c", "echo 'disk is busy' >&2; exit 3")
	require.Error(t, err)
	assert.Equal(t, 3, res.ExitCode)

	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, 3, exitErr.Result.ExitCode)
	assert.Contains(t, err.Error(), "disk is busy")
	assert.Contains(t, err.Error(), "exit 3")
}

func TestExecRun_PrependAndEnv(t *testing.T) {
	requireShell(t)
	if _, err := exec.LookPath("env"); err != nil {
		t.Skip("env not available")
	}
	obs := &recordingObserver{}
	r := &Exec{
		Prepend:  []string{"env", "ANVIL_PREFIXED=1"},
		Env:      map[string]string{"LC_ALL": "C"},
		Log:      logr.Discard(),
		Observer: obs,
	}

	res, err := r.Run(context.Background(), "sh", "-c", `echo "$ANVIL_PREFIXED $LC_ALL"`)
	require.NoError(t, err)
	assert.Equal(t, "1 C\n", res.Stdout)
	assert.Equal(t, []string{"sh"}, obs.names, "observed by tool name, not prefix")
}

func TestExecRun_Timeout(t *testing.T) {
	requireShell(t)
	r := &Exec{Timeout: 50 * time.Millisecond, Log: logr.Discard()}

	_, err := r.Run(context.Background(), "sh", "-c", "sleep 5")
	require.Error(t, err)
	assert.True(t, IsTimeout(err))
}

func TestExecRun_Cancelled(t *testing.T) {
	requireShell(t)
	r := NewExec(logr.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Run(ctx, "sh", "-c", "sleep 5")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExecRun_MissingBinary(t *testing.T) {
	r := NewExec(logr.Discard())
	res, err := r.Run(context.Background(), "/nonexistent/anvil-tool")
	require.Error(t, err)
	assert.Equal(t, -1, res.ExitCode)
}

func TestFormat(t *testing.T) {
	tests := []struct {
		argv []string
		want string
	}{
		{[]string{"qemu-img", "resize", "/var/lib/libvirt/images/a.img", "+1073741824"}, "qemu-img resize /var/lib/libvirt/images/a.img +1073741824"},
		{[]string{"mount", "-o", "loop", "/tmp/my dir/floppy.img"}, "mount -o loop '/tmp/my dir/floppy.img'"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Format(tt.argv...))
	}
}
