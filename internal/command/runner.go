// Package command runs the external tools anvil depends on (mkfs.vfat,
// mount, umount, qemu-img) and returns their output as a structured Result.
//
// Every invocation is bounded by a timeout and honours context
// cancellation. A non-zero exit is reported as an *ExitError carrying the
// tool's stderr, so callers can surface the diagnostic text unchanged.
package command

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"github.com/kballard/go-shellquote"
)

// DefaultTimeout bounds a single tool invocation.
const DefaultTimeout = 2 * time.Minute

// Result is the outcome of one tool invocation.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Runner executes external commands.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (Result, error)
}

// Observer is notified after every invocation.
type Observer interface {
	ObserveCommand(name string, err error)
}

// ExitError is returned when a command exits non-zero, times out or is
// cancelled.
type ExitError struct {
	Command string
	Result  Result
	Err     error
}

func (e *ExitError) Error() string {
	diag := strings.TrimSpace(e.Result.Stderr)
	if diag == "" {
		diag = strings.TrimSpace(e.Result.Stdout)
	}
	if diag == "" && e.Err != nil {
		diag = e.Err.Error()
	}
	return fmt.Sprintf("%s (exit %d): %s", e.Command, e.Result.ExitCode, diag)
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// Exec runs commands on the local host with os/exec.
type Exec struct {
	// Timeout bounds each invocation. Zero means DefaultTimeout.
	Timeout time.Duration

	// Prepend is placed before every command, e.g. []string{"sudo", "-n"}.
	Prepend []string

	// Env adds variables to the inherited environment.
	Env map[string]string

	Log      logr.Logger
	Observer Observer
}

// NewExec returns an Exec with default settings.
func NewExec(log logr.Logger) *Exec {
	return &Exec{Timeout: DefaultTimeout, Log: log}
}

// Run executes name with args and waits for it to finish.
func (e *Exec) Run(ctx context.Context, name string, args ...string) (Result, error) {
	timeout := e.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	argv := append(append([]string{}, e.Prepend...), name)
	argv = append(argv, args...)
	line := Format(argv...)

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	if len(e.Env) > 0 {
		cmd.Env = os.Environ()
		for k, v := range e.Env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	e.Log.V(1).Info("Running command", "command", line)
	err := cmd.Run()

	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = fmt.Errorf("%w: %w", ctxErr, err)
		}
		if res.ExitCode == 0 {
			res.ExitCode = -1
		}
		err = &ExitError{Command: line, Result: res, Err: err}
	}

	if e.Observer != nil {
		e.Observer.ObserveCommand(name, err)
	}
	if err != nil {
		e.Log.V(1).Info("Command failed", "command", line, "exitCode", res.ExitCode, "stderr", strings.TrimSpace(res.Stderr))
		return res, err
	}
	return res, nil
}

// Format quotes argv for display in logs and error messages.
func Format(argv ...string) string {
	return shellquote.Join(argv...)
}

// IsTimeout reports whether err came from a command that hit its deadline.
func IsTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}
