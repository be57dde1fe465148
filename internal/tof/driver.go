// Package tof drives a VL53L4CX time-of-flight ranging sensor through a
// register transport.
//
// The driver is an explicit state machine. Init walks Resetting,
// AwaitingBoot, Verifying and Configuring in order and ends in Stopped or in
// the terminal Failed state. Start and Stop move between Stopped and Ranging.
// Every step is reported to observers as a Transition.
//
// A Driver has a single owner goroutine. State, Reason and Err may be called
// from any goroutine.
package tof

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/range.report/internal/monitoring"
	"github.com/banshee-data/range.report/internal/regbus"
	"github.com/banshee-data/range.report/internal/timeutil"
)

// Registers is the register transport the driver needs. *regbus.Transport
// implements it.
type Registers interface {
	WriteRegister(reg uint16, value uint32, width regbus.Width) error
	ReadRegister(reg uint16, width regbus.Width) (uint32, error)
	Close() error
}

const (
	DefaultBootAttempts = 100
	DefaultBootInterval = 10 * time.Millisecond
	DefaultResetLow     = 1 * time.Millisecond
	DefaultResetHigh    = 2 * time.Millisecond
)

// Option configures a Driver.
type Option func(*Driver)

// WithClock sets the clock used for reset and boot waits.
func WithClock(c timeutil.Clock) Option {
	return func(d *Driver) { d.clock = c }
}

// WithBootWait sets the firmware boot poll bound and spacing.
func WithBootWait(attempts int, interval time.Duration) Option {
	return func(d *Driver) {
		if attempts > 0 {
			d.bootAttempts = attempts
		}
		if interval >= 0 {
			d.bootInterval = interval
		}
	}
}

// WithResetDelays sets the waits after driving soft reset low and high.
func WithResetDelays(low, high time.Duration) Option {
	return func(d *Driver) {
		d.resetLow, d.resetHigh = low, high
	}
}

// WithObserver adds fn to the functions called on every transition. It is
// called on the owner goroutine and must not block.
func WithObserver(fn func(Transition)) Option {
	return func(d *Driver) {
		if fn != nil {
			d.observers = append(d.observers, fn)
		}
	}
}

// Driver is a VL53L4CX on one register transport.
type Driver struct {
	regs      Registers
	clock     timeutil.Clock
	observers []func(Transition)

	bootAttempts int
	bootInterval time.Duration
	resetLow     time.Duration
	resetHigh    time.Duration

	mu        sync.Mutex
	state     State
	reason    Reason
	err       error
	closed    bool
	bootPolls int
}

// New returns a driver in StateUninitialized. It performs no bus traffic.
func New(regs Registers, opts ...Option) *Driver {
	d := &Driver{
		regs:         regs,
		clock:        timeutil.RealClock{},
		bootAttempts: DefaultBootAttempts,
		bootInterval: DefaultBootInterval,
		resetLow:     DefaultResetLow,
		resetHigh:    DefaultResetHigh,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// State returns the current state.
func (d *Driver) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Reason returns the failure reason, ReasonNone unless State is StateFailed.
func (d *Driver) Reason() Reason {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.reason
}

// Err returns the error that moved the driver to StateFailed.
func (d *Driver) Err() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.err
}

// BootPolls returns how many firmware status reads the last Init made.
func (d *Driver) BootPolls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.bootPolls
}

// Closed reports whether Close has been called.
func (d *Driver) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// Init resets, boots, verifies and configures the sensor. It is only valid
// from StateUninitialized. The first failure moves the driver to StateFailed
// and is returned as *InitError; nothing after the failing step is attempted.
func (d *Driver) Init() error {
	if err := d.require(StateUninitialized); err != nil {
		return err
	}

	steps := []struct {
		state State
		run   func() error
	}{
		{StateResetting, d.softReset},
		{StateAwaitingBoot, d.awaitBoot},
		{StateVerifying, d.verifyIdentity},
		{StateConfiguring, d.configure},
	}
	for _, step := range steps {
		d.transition(step.state, ReasonNone, nil)
		if err := step.run(); err != nil {
			reason := reasonFor(err)
			d.transition(StateFailed, reason, err)
			return &InitError{Stage: step.state, Reason: reason, Err: err}
		}
	}
	d.transition(StateStopped, ReasonNone, nil)
	return nil
}

func (d *Driver) softReset() error {
	if err := d.regs.WriteRegister(RegSoftReset, 0x00, regbus.Width8); err != nil {
		return fmt.Errorf("soft reset low: %w", err)
	}
	d.clock.Sleep(d.resetLow)
	if err := d.regs.WriteRegister(RegSoftReset, 0x01, regbus.Width8); err != nil {
		return fmt.Errorf("soft reset high: %w", err)
	}
	d.clock.Sleep(d.resetHigh)
	return nil
}

func (d *Driver) awaitBoot() error {
	for attempt := 1; attempt <= d.bootAttempts; attempt++ {
		d.mu.Lock()
		d.bootPolls = attempt
		d.mu.Unlock()

		v, err := d.regs.ReadRegister(RegFirmwareStatus, regbus.Width8)
		if err != nil {
			return fmt.Errorf("firmware status: %w", err)
		}
		if v&firmwareReady != 0 {
			monitoring.Debugf("tof: firmware ready after %d polls", attempt)
			return nil
		}
		d.clock.Sleep(d.bootInterval)
	}
	return fmt.Errorf("%w: bit 0 of %#04x clear after %d polls", ErrBootTimeout, RegFirmwareStatus, d.bootAttempts)
}

func (d *Driver) verifyIdentity() error {
	v, err := d.regs.ReadRegister(RegModelID, regbus.Width16)
	if err != nil {
		return fmt.Errorf("model id: %w", err)
	}
	if uint16(v) != SensorID {
		return &IdentityError{Got: uint16(v)}
	}
	return nil
}

func (d *Driver) configure() error {
	for i, w := range staticConfig {
		if err := d.regs.WriteRegister(w.reg, w.value, w.width); err != nil {
			return fmt.Errorf("static config %d/%d (%#04x): %w", i+1, len(staticConfig), w.reg, err)
		}
	}
	return nil
}

// Start clears any pending interrupt and starts continuous ranging.
// A failed write leaves the driver in StateStopped.
func (d *Driver) Start() error {
	if err := d.require(StateStopped); err != nil {
		return err
	}
	if err := d.regs.WriteRegister(RegInterruptClear, interruptClear, regbus.Width8); err != nil {
		return fmt.Errorf("tof: start: clear interrupt: %w", err)
	}
	if err := d.regs.WriteRegister(RegModeStart, modeContinuous, regbus.Width8); err != nil {
		return fmt.Errorf("tof: start: mode start: %w", err)
	}
	d.transition(StateRanging, ReasonNone, nil)
	return nil
}

// Stop halts ranging. A failed write leaves the driver in StateRanging.
func (d *Driver) Stop() error {
	if err := d.require(StateRanging); err != nil {
		return err
	}
	if err := d.regs.WriteRegister(RegModeStart, modeIdle, regbus.Width8); err != nil {
		return fmt.Errorf("tof: stop: %w", err)
	}
	d.transition(StateStopped, ReasonNone, nil)
	return nil
}

// Close stops ranging if needed and releases the transport. It is valid in
// every state and the transport is released even if Stop fails. Closing
// twice is a no-op.
func (d *Driver) Close() error {
	if d.Closed() {
		return nil
	}

	var errs []error
	if d.State() == StateRanging {
		if err := d.Stop(); err != nil {
			errs = append(errs, err)
		}
	}

	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	if err := d.regs.Close(); err != nil {
		errs = append(errs, fmt.Errorf("tof: release transport: %w", err))
	}
	return errors.Join(errs...)
}

func (d *Driver) require(want State) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	if d.state != want {
		return fmt.Errorf("%w: %s, want %s", ErrInvalidState, d.state, want)
	}
	return nil
}

func (d *Driver) transition(to State, reason Reason, err error) {
	d.mu.Lock()
	t := Transition{From: d.state, To: to, Reason: reason, Err: err, At: d.clock.Now()}
	d.state, d.reason, d.err = to, reason, err
	d.mu.Unlock()

	if t.Failed() {
		monitoring.Warnf("tof: %s", t)
	} else {
		monitoring.Debugf("tof: %s", t)
	}
	for _, fn := range d.observers {
		fn(t)
	}
}
