package tof

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/range.report/internal/regbus"
	"github.com/banshee-data/range.report/internal/timeutil"
)

var epoch = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// newDevice returns a register file that boots on the first poll and reports
// the expected model id.
func newDevice(t *testing.T) (*regbus.MemBus, *regbus.Transport) {
	t.Helper()
	bus := regbus.NewMemBus(regbus.DefaultAddress)
	bus.Set(RegFirmwareStatus, 0x01, regbus.Width8)
	bus.Set(RegModelID, uint32(SensorID), regbus.Width16)
	tr, err := regbus.New(bus, t.Name(), regbus.DefaultAddress, bus)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tr.Close() })
	return bus, tr
}

type recorder struct {
	transitions []Transition
}

func (r *recorder) observe(t Transition) { r.transitions = append(r.transitions, t) }

func (r *recorder) states() []State {
	var out []State
	for _, t := range r.transitions {
		out = append(out, t.To)
	}
	return out
}

func newDriver(t *testing.T, tr *regbus.Transport) (*Driver, *timeutil.MockClock, *recorder) {
	t.Helper()
	clock := timeutil.NewMockClock(epoch)
	rec := &recorder{}
	d := New(tr, WithClock(clock), WithObserver(rec.observe))
	return d, clock, rec
}

func rangingDriver(t *testing.T) (*Driver, *regbus.MemBus) {
	t.Helper()
	bus, tr := newDevice(t)
	d, _, _ := newDriver(t, tr)
	require.NoError(t, d.Init())
	require.NoError(t, d.Start())
	bus.ResetLog()
	return d, bus
}

func writes(accesses ...regbus.Access) []regbus.Access { return accesses }

func w(reg uint16, data ...byte) regbus.Access {
	return regbus.Access{Op: regbus.OpWrite, Reg: reg, Data: data}
}

func TestInit_Success(t *testing.T) {
	bus, tr := newDevice(t)
	d, clock, rec := newDriver(t, tr)

	require.NoError(t, d.Init())
	assert.Equal(t, StateStopped, d.State())
	assert.Equal(t, ReasonNone, d.Reason())
	assert.NoError(t, d.Err())
	assert.Equal(t, 1, d.BootPolls())

	want := writes(
		w(RegSoftReset, 0x00),
		w(RegSoftReset, 0x01),
		w(0x0008, 0x09),
		w(0x0030, 0x10),
		w(0x0060, 0x0B),
		w(0x0063, 0x09),
		w(0x0044, 0x0A, 0x00),
		w(0x005E, 0x00, 0xB1),
		w(0x0061, 0x00, 0x99),
		w(0x0064, 0x00, 0xC0),
		w(0x0066, 0x00, 0x40),
		w(0x006C, 0x00, 0x00, 0x0B, 0xB8),
	)
	if diff := cmp.Diff(want, bus.Writes()); diff != "" {
		t.Errorf("init writes mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []time.Duration{time.Millisecond, 2 * time.Millisecond}, clock.Sleeps())

	wantStates := []State{StateResetting, StateAwaitingBoot, StateVerifying, StateConfiguring, StateStopped}
	if diff := cmp.Diff(wantStates, rec.states()); diff != "" {
		t.Errorf("transitions mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, StateUninitialized, rec.transitions[0].From)
	for _, tr := range rec.transitions {
		assert.False(t, tr.Failed())
	}
}

func TestInit_NoConfigurationBeforeBootAndIdentity(t *testing.T) {
	bus, tr := newDevice(t)
	polls := 0
	bus.OnRead(RegFirmwareStatus, func(int) []byte {
		polls++
		if polls < 3 {
			return []byte{0x00}
		}
		return nil
	})
	d, _, _ := newDriver(t, tr)
	require.NoError(t, d.Init())

	log := bus.Log()
	lastBoot, identity, firstConfig := -1, -1, -1
	for i, a := range log {
		switch {
		case a.Op == regbus.OpRead && a.Reg == RegFirmwareStatus:
			lastBoot = i
		case a.Op == regbus.OpRead && a.Reg == RegModelID:
			identity = i
		case a.Op == regbus.OpWrite && a.Reg != RegSoftReset && firstConfig < 0:
			firstConfig = i
		}
	}
	require.NotEqual(t, -1, firstConfig)
	assert.Less(t, lastBoot, identity)
	assert.Less(t, identity, firstConfig)
	assert.Equal(t, []byte{0x01}, log[lastBoot].Data)
}

func TestInit_BootWait(t *testing.T) {
	tests := []struct {
		name      string
		readyAt   int // 0 = never
		wantReads int
		wantErr   error
		wantState State
	}{
		{"ready on fifth poll", 5, 5, nil, StateStopped},
		{"ready on last poll", 100, 100, nil, StateStopped},
		{"never ready", 0, 100, ErrBootTimeout, StateFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bus, tr := newDevice(t)
			polls := 0
			bus.OnRead(RegFirmwareStatus, func(int) []byte {
				polls++
				if tt.readyAt > 0 && polls >= tt.readyAt {
					return []byte{0x01}
				}
				return []byte{0x00}
			})
			d, clock, _ := newDriver(t, tr)

			err := d.Init()
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantReads, bus.ReadCount(RegFirmwareStatus))
			assert.Equal(t, tt.wantReads, d.BootPolls())
			assert.Equal(t, tt.wantState, d.State())

			// one boot interval per miss, after the two reset waits
			misses := tt.wantReads - 1
			if tt.readyAt == 0 {
				misses = tt.wantReads
			}
			assert.Equal(t, 3*time.Millisecond+time.Duration(misses)*DefaultBootInterval, clock.Slept())
		})
	}
}

func TestInit_BootTimeoutStopsBeforeIdentity(t *testing.T) {
	bus, tr := newDevice(t)
	bus.Set(RegFirmwareStatus, 0x00, regbus.Width8)
	d, _, rec := newDriver(t, tr)

	err := d.Init()
	require.ErrorIs(t, err, ErrBootTimeout)
	var initErr *InitError
	require.ErrorAs(t, err, &initErr)
	assert.Equal(t, StateAwaitingBoot, initErr.Stage)
	assert.Equal(t, ReasonBootTimeout, initErr.Reason)

	assert.Equal(t, StateFailed, d.State())
	assert.Equal(t, ReasonBootTimeout, d.Reason())
	assert.Zero(t, bus.ReadCount(RegModelID))
	assert.Len(t, bus.Writes(), 2, "only the soft reset pair")

	last := rec.transitions[len(rec.transitions)-1]
	assert.True(t, last.Failed())
	assert.Equal(t, StateAwaitingBoot, last.From)
	assert.Equal(t, ReasonBootTimeout, last.Reason)
}

func TestInit_IdentityMismatch(t *testing.T) {
	bus, tr := newDevice(t)
	bus.Set(RegModelID, 0xEEAC, regbus.Width16)
	d, _, _ := newDriver(t, tr)

	err := d.Init()
	require.ErrorIs(t, err, ErrIdentityMismatch)
	var idErr *IdentityError
	require.ErrorAs(t, err, &idErr)
	assert.Equal(t, uint16(0xEEAC), idErr.Got)

	assert.Equal(t, StateFailed, d.State())
	assert.Equal(t, ReasonIdentityMismatch, d.Reason())
	assert.Len(t, bus.Writes(), 2, "no configuration after a failed identity check")
}

func TestInit_TransportFailureAborts(t *testing.T) {
	nak := errors.New("i2c: nack")
	tests := []struct {
		name       string
		inject     func(*regbus.MemBus)
		wantStage  State
		wantWrites int
	}{
		{"soft reset", func(b *regbus.MemBus) { b.FailWrite(RegSoftReset, nak) }, StateResetting, 0},
		{"firmware status", func(b *regbus.MemBus) { b.FailRead(RegFirmwareStatus, nak) }, StateAwaitingBoot, 2},
		{"model id", func(b *regbus.MemBus) { b.FailRead(RegModelID, nak) }, StateVerifying, 2},
		{"sixth config write", func(b *regbus.MemBus) { b.FailWrite(RegTimeoutA, nak) }, StateConfiguring, 7},
		{"last config write", func(b *regbus.MemBus) { b.FailWrite(RegInterMeasurement, nak) }, StateConfiguring, 11},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bus, tr := newDevice(t)
			tt.inject(bus)
			d, _, rec := newDriver(t, tr)

			err := d.Init()
			require.ErrorIs(t, err, regbus.ErrTransport)
			require.ErrorIs(t, err, nak)
			var initErr *InitError
			require.ErrorAs(t, err, &initErr)
			assert.Equal(t, tt.wantStage, initErr.Stage)

			assert.Equal(t, StateFailed, d.State())
			assert.Equal(t, ReasonTransport, d.Reason())
			assert.ErrorIs(t, d.Err(), nak)
			assert.Len(t, bus.Writes(), tt.wantWrites)
			assert.Equal(t, StateFailed, rec.transitions[len(rec.transitions)-1].To)
		})
	}
}

func TestFailedIsTerminal(t *testing.T) {
	bus, tr := newDevice(t)
	bus.Set(RegModelID, 0x0000, regbus.Width16)
	d, _, _ := newDriver(t, tr)
	require.Error(t, d.Init())

	bus.Set(RegModelID, uint32(SensorID), regbus.Width16)
	assert.ErrorIs(t, d.Init(), ErrInvalidState)
	assert.ErrorIs(t, d.Start(), ErrInvalidState)
	assert.ErrorIs(t, d.Stop(), ErrInvalidState)
	_, _, err := d.Read()
	assert.ErrorIs(t, err, ErrNotRanging)
	assert.Equal(t, StateFailed, d.State())
}

func TestInit_OnlyOnce(t *testing.T) {
	_, tr := newDevice(t)
	d, _, _ := newDriver(t, tr)
	require.NoError(t, d.Init())
	assert.ErrorIs(t, d.Init(), ErrInvalidState)
	assert.Equal(t, StateStopped, d.State())
}

func TestStartStop(t *testing.T) {
	bus, tr := newDevice(t)
	d, _, rec := newDriver(t, tr)

	assert.ErrorIs(t, d.Start(), ErrInvalidState, "start before init")
	require.NoError(t, d.Init())
	bus.ResetLog()

	require.NoError(t, d.Start())
	assert.Equal(t, StateRanging, d.State())
	if diff := cmp.Diff(writes(w(RegInterruptClear, 0x01), w(RegModeStart, 0x40)), bus.Writes()); diff != "" {
		t.Errorf("start writes mismatch (-want +got):\n%s", diff)
	}
	assert.ErrorIs(t, d.Start(), ErrInvalidState)

	bus.ResetLog()
	require.NoError(t, d.Stop())
	assert.Equal(t, StateStopped, d.State())
	if diff := cmp.Diff(writes(w(RegModeStart, 0x00)), bus.Writes()); diff != "" {
		t.Errorf("stop writes mismatch (-want +got):\n%s", diff)
	}
	assert.ErrorIs(t, d.Stop(), ErrInvalidState)

	n := len(rec.states())
	assert.Equal(t, []State{StateRanging, StateStopped}, rec.states()[n-2:])
}

func TestStart_WriteFailureLeavesStopped(t *testing.T) {
	bus, tr := newDevice(t)
	d, _, _ := newDriver(t, tr)
	require.NoError(t, d.Init())

	bus.FailWrite(RegModeStart, errors.New("timeout"))
	require.ErrorIs(t, d.Start(), regbus.ErrTransport)
	assert.Equal(t, StateStopped, d.State())

	bus.ClearFaults()
	require.NoError(t, d.Start())
	assert.Equal(t, StateRanging, d.State())
}

func TestClose(t *testing.T) {
	t.Run("from ranging stops first", func(t *testing.T) {
		d, bus := rangingDriver(t)

		require.NoError(t, d.Close())
		if diff := cmp.Diff(writes(w(RegModeStart, 0x00)), bus.Writes()); diff != "" {
			t.Errorf("close writes mismatch (-want +got):\n%s", diff)
		}
		assert.True(t, bus.Closed())
		assert.False(t, regbus.Claimed(t.Name(), regbus.DefaultAddress))
		assert.True(t, d.Closed())
		assert.Equal(t, StateStopped, d.State())

		assert.ErrorIs(t, d.Start(), ErrClosed)
		_, _, err := d.Read()
		assert.ErrorIs(t, err, ErrClosed)
		assert.NoError(t, d.Close())
	})

	t.Run("from uninitialized", func(t *testing.T) {
		bus, tr := newDevice(t)
		d, _, _ := newDriver(t, tr)
		require.NoError(t, d.Close())
		assert.Empty(t, bus.Log())
		assert.True(t, bus.Closed())
		assert.ErrorIs(t, d.Init(), ErrClosed)
	})

	t.Run("from failed", func(t *testing.T) {
		bus, tr := newDevice(t)
		bus.Set(RegFirmwareStatus, 0, regbus.Width8)
		d, _, _ := newDriver(t, tr)
		d.bootAttempts = 2
		require.Error(t, d.Init())
		require.NoError(t, d.Close())
		assert.True(t, bus.Closed())
	})

	t.Run("stop failure still releases", func(t *testing.T) {
		d, bus := rangingDriver(t)
		bus.FailWrite(RegModeStart, errors.New("timeout"))

		err := d.Close()
		require.ErrorIs(t, err, regbus.ErrTransport)
		assert.True(t, bus.Closed())
		assert.False(t, regbus.Claimed(t.Name(), regbus.DefaultAddress))
	})
}

func TestOptions(t *testing.T) {
	bus, tr := newDevice(t)
	bus.Set(RegFirmwareStatus, 0, regbus.Width8)
	clock := timeutil.NewMockClock(epoch)
	d := New(tr,
		WithClock(clock),
		WithBootWait(3, 5*time.Millisecond),
		WithResetDelays(0, 0),
		WithObserver(nil),
	)

	require.ErrorIs(t, d.Init(), ErrBootTimeout)
	assert.Equal(t, 3, bus.ReadCount(RegFirmwareStatus))
	assert.Equal(t, []time.Duration{0, 0, 5 * time.Millisecond, 5 * time.Millisecond, 5 * time.Millisecond}, clock.Sleeps())
}

func TestTransitionTimestamps(t *testing.T) {
	_, tr := newDevice(t)
	d, _, rec := newDriver(t, tr)
	require.NoError(t, d.Init())

	// the reset waits happen while Resetting, so later transitions are stamped after them
	assert.Equal(t, epoch, rec.transitions[0].At)
	assert.Equal(t, epoch.Add(3*time.Millisecond), rec.transitions[1].At)
}

func TestStateStrings(t *testing.T) {
	assert.Equal(t, "AwaitingBoot", StateAwaitingBoot.String())
	assert.Equal(t, "Failed", StateFailed.String())
	assert.Equal(t, "State(42)", State(42).String())
	assert.Equal(t, "BootTimeout", ReasonBootTimeout.String())
	assert.Equal(t, "", ReasonNone.String())

	tr := Transition{From: StateVerifying, To: StateFailed, Reason: ReasonIdentityMismatch, Err: &IdentityError{Got: 1}}
	assert.Contains(t, tr.String(), "Verifying -> Failed(IdentityMismatch)")
}
