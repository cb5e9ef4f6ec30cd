// Package status provides the VM state model: libvirt domain state codes,
// their readable names, and the preconditions for lifecycle transitions.
package status

import (
	"strings"

	"github.com/jbweber/anvil/internal/errdefs"
)

// State is a libvirt domain state code.
type State int

const (
	Unknown     State = iota // no state, or the VM could not be observed
	Running                  // running
	Blocked                  // blocked on a resource
	Paused                   // paused by the user
	Shutdown                 // being shut down
	Shutoff                  // shut off
	Crashed                  // crashed
	PMSuspended              // suspended by guest power management
)

var stateNames = [...]string{
	Unknown:     "unknown",
	Running:     "running",
	Blocked:     "blocked",
	Paused:      "paused",
	Shutdown:    "shutdown",
	Shutoff:     "shutoff",
	Crashed:     "crashed",
	PMSuspended: "pmsuspended",
}

// FromCode converts a raw libvirt state code. Codes this package does not
// know map to Unknown.
func FromCode[T ~int32 | ~uint8 | ~int](code T) State {
	s := State(code)
	if s < Unknown || s > PMSuspended {
		return Unknown
	}
	return s
}

// String returns the readable state name.
func (s State) String() string {
	if s < Unknown || s > PMSuspended {
		return stateNames[Unknown]
	}
	return stateNames[s]
}

// ParseState converts a readable state name back to a State.
func ParseState(name string) (State, error) {
	for i, n := range stateNames {
		if strings.EqualFold(n, name) {
			return State(i), nil
		}
	}
	return Unknown, errdefs.Validationf("unknown VM state %q", name)
}

// IsRunning returns true if the VM is executing guest code.
func IsRunning(s State) bool {
	return s == Running || s == Blocked
}
