package status

import (
	"github.com/jbweber/anvil/internal/errdefs"
)

// Transition is a user-requested lifecycle change.
type Transition string

const (
	TransitionStart    Transition = "start"
	TransitionShutdown Transition = "shutdown"
	TransitionShutoff  Transition = "shutoff"
	TransitionReboot   Transition = "reboot"
	TransitionPause    Transition = "pause"
	TransitionResume   Transition = "resume"
)

// Transitions lists every lifecycle change in a stable order.
var Transitions = []Transition{
	TransitionStart,
	TransitionShutdown,
	TransitionShutoff,
	TransitionReboot,
	TransitionPause,
	TransitionResume,
}

// Precondition messages.
const (
	MsgAlreadyRunning = "the VM is already running"
	MsgNotRunning     = "the VM is not running"
	MsgNotPaused      = "the VM is not paused"
	MsgAlreadyPaused  = "the VM is already paused"
	MsgMustBeStopped  = "the VM must be shut down first"
)

// Check returns an errdefs.Precondition error when t is not allowed for a
// VM whose activity and state are active and state.
//
//   - start requires an inactive VM
//   - shutdown, shutoff, reboot and pause require an active VM
//   - pause also rejects a VM that is already paused
//   - resume requires a paused VM
func Check(t Transition, active bool, state State) error {
	switch t {
	case TransitionStart:
		if active {
			return errdefs.Preconditionf("%s", MsgAlreadyRunning)
		}
	case TransitionShutdown, TransitionShutoff, TransitionReboot, TransitionPause:
		if !active {
			return errdefs.Preconditionf("%s", MsgNotRunning)
		}
		if t == TransitionPause && state == Paused {
			return errdefs.Preconditionf("%s", MsgAlreadyPaused)
		}
	case TransitionResume:
		if state != Paused {
			return errdefs.Preconditionf("%s", MsgNotPaused)
		}
	default:
		return errdefs.NotSupportedf("unknown transition %q", string(t))
	}
	return nil
}

// RequireInactive returns an errdefs.Precondition error when the VM is
// active. Used by configuration changes that only apply to a stopped VM.
func RequireInactive(active bool, what string) error {
	if active {
		return errdefs.Preconditionf("%s: %s", MsgMustBeStopped, what)
	}
	return nil
}

// RequireActive returns an errdefs.Precondition error when the VM is not
// active.
func RequireActive(active bool, what string) error {
	if !active {
		return errdefs.Preconditionf("%s: %s", MsgNotRunning, what)
	}
	return nil
}
