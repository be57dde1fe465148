package tof

import (
	"errors"
	"fmt"
	"time"

	"github.com/banshee-data/range.report/internal/regbus"
)

// State is the driver lifecycle state.
type State int

const (
	StateUninitialized State = iota
	StateResetting
	StateAwaitingBoot
	StateVerifying
	StateConfiguring
	StateStopped
	StateRanging
	StateFailed
)

var stateNames = [...]string{
	StateUninitialized: "Uninitialized",
	StateResetting:     "Resetting",
	StateAwaitingBoot:  "AwaitingBoot",
	StateVerifying:     "Verifying",
	StateConfiguring:   "Configuring",
	StateStopped:       "Stopped",
	StateRanging:       "Ranging",
	StateFailed:        "Failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

// Reason qualifies StateFailed.
type Reason int

const (
	ReasonNone Reason = iota
	ReasonTransport
	ReasonBootTimeout
	ReasonIdentityMismatch
)

func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return ""
	case ReasonTransport:
		return "TransportError"
	case ReasonBootTimeout:
		return "BootTimeout"
	case ReasonIdentityMismatch:
		return "IdentityMismatch"
	}
	return fmt.Sprintf("Reason(%d)", int(r))
}

var (
	// ErrBootTimeout means the firmware-ready bit was never observed within
	// the boot poll bound.
	ErrBootTimeout = errors.New("tof: firmware boot timeout")
	// ErrIdentityMismatch means the model id register did not hold SensorID.
	ErrIdentityMismatch = errors.New("tof: model identity mismatch")
	// ErrInvalidState is returned for an operation not allowed in the
	// current state.
	ErrInvalidState = errors.New("tof: invalid driver state")
	// ErrNotRanging is returned by Read outside StateRanging.
	ErrNotRanging = errors.New("tof: not ranging")
	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("tof: driver closed")
)

// IdentityError carries the model id actually read.
type IdentityError struct {
	Got uint16
}

func (e *IdentityError) Error() string {
	return fmt.Sprintf("tof: model id %#04x, want %#04x", e.Got, SensorID)
}

func (e *IdentityError) Is(target error) bool { return target == ErrIdentityMismatch }

// InitError is returned by Init. Stage is the state in which the failure
// happened; Reason is the Failed(reason) tag.
type InitError struct {
	Stage  State
	Reason Reason
	Err    error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("tof: init failed in %s (%s): %v", e.Stage, e.Reason, e.Err)
}

func (e *InitError) Unwrap() error { return e.Err }

func reasonFor(err error) Reason {
	switch {
	case errors.Is(err, ErrBootTimeout):
		return ReasonBootTimeout
	case errors.Is(err, ErrIdentityMismatch):
		return ReasonIdentityMismatch
	case errors.Is(err, regbus.ErrTransport):
		return ReasonTransport
	}
	return ReasonTransport
}

// Transition is the tagged result of one state change: either a success
// state or StateFailed with a Reason and the causing error.
type Transition struct {
	From   State
	To     State
	Reason Reason
	Err    error
	At     time.Time
}

// Failed reports whether the transition entered StateFailed.
func (t Transition) Failed() bool { return t.To == StateFailed }

func (t Transition) String() string {
	if t.Failed() {
		return fmt.Sprintf("%s -> Failed(%s): %v", t.From, t.Reason, t.Err)
	}
	return fmt.Sprintf("%s -> %s", t.From, t.To)
}
