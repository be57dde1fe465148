package regbus

import (
	"errors"
	"fmt"
)

var (
	// ErrPermission is matched by every failure to open or claim a bus.
	ErrPermission = errors.New("regbus: bus could not be opened")
	// ErrTransport is matched by every failed bus transaction (NAK, timeout,
	// short transfer).
	ErrTransport = errors.New("regbus: transaction failed")
	// ErrHandleInUse is returned when a (bus, address) pair is already owned
	// by a live Transport in this process.
	ErrHandleInUse = errors.New("regbus: bus address already claimed")
	// ErrClosed is returned by transactions issued after Close.
	ErrClosed = errors.New("regbus: transport closed")
	// ErrInvalidWidth is returned for register widths other than 8, 16 or 32 bits.
	ErrInvalidWidth = errors.New("regbus: invalid register width")
)

// TxError describes a failed register transaction. It matches ErrTransport
// with errors.Is and unwraps to the bus error.
type TxError struct {
	Op   string // "read" or "write"
	Bus  string
	Addr uint8
	Reg  uint16
	Err  error
}

func (e *TxError) Error() string {
	return fmt.Sprintf("regbus: %s %s@%#02x reg %#04x: %v", e.Op, e.Bus, e.Addr, e.Reg, e.Err)
}

func (e *TxError) Unwrap() error { return e.Err }

// Is reports ErrTransport so callers can classify without a type switch.
func (e *TxError) Is(target error) bool { return target == ErrTransport }

// OpenError describes a bus that could not be opened or claimed. It matches
// ErrPermission with errors.Is.
type OpenError struct {
	Bus  string
	Addr uint8
	Err  error
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("regbus: open %s@%#02x: %v", e.Bus, e.Addr, e.Err)
}

func (e *OpenError) Unwrap() error { return e.Err }

func (e *OpenError) Is(target error) bool { return target == ErrPermission }
