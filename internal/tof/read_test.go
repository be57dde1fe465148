package tof

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/range.report/internal/regbus"
)

func TestRead_EndToEnd(t *testing.T) {
	d, bus := rangingDriver(t)
	bus.Set(RegGPIOStatus, 0x01, regbus.Width8)
	bus.Set(RegRangeStatus, 0x02, regbus.Width8)
	bus.Set(RegRangeMM, 0x0384, regbus.Width16)
	bus.Set(RegSignalRate, 0x0100, regbus.Width16)

	r, ok, err := d.Read()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, Reading{DistanceMM: 900, SignalRate: 2.0, RangeStatus: 2}, r)
	assert.Equal(t, ClassWeak, r.Class())

	if diff := cmp.Diff(writes(w(RegInterruptClear, 0x01)), bus.Writes()); diff != "" {
		t.Errorf("read writes mismatch (-want +got):\n%s", diff)
	}
	var order []uint16
	for _, a := range bus.Reads() {
		order = append(order, a.Reg)
	}
	assert.Equal(t, []uint16{RegGPIOStatus, RegRangeStatus, RegRangeMM, RegSignalRate}, order)
}

func TestRead_PollMissIgnoresStaleRegisters(t *testing.T) {
	d, bus := rangingDriver(t)
	bus.Set(RegGPIOStatus, 0xFE, regbus.Width8)
	bus.Set(RegRangeStatus, 0x00, regbus.Width8)
	bus.Set(RegRangeMM, 1234, regbus.Width16)
	bus.Set(RegSignalRate, 0x0400, regbus.Width16)

	r, ok, err := d.Read()
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, Reading{}, r)
	assert.Empty(t, bus.Writes())
	assert.Equal(t, 1, len(bus.Reads()))
	assert.Zero(t, bus.ReadCount(RegRangeMM))
}

func TestRead_StatusMasked(t *testing.T) {
	d, bus := rangingDriver(t)
	bus.Set(RegGPIOStatus, 0x01, regbus.Width8)
	bus.Set(RegRangeStatus, 0xE3, regbus.Width8)

	r, ok, err := d.Read()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint8(3), r.RangeStatus)
	assert.Equal(t, ClassErr, r.Class())
}

func TestRead_PartialFailureDiscardsReading(t *testing.T) {
	timeout := errors.New("timeout")
	for _, reg := range []uint16{RegGPIOStatus, RegRangeStatus, RegRangeMM, RegSignalRate} {
		d, bus := rangingDriver(t)
		bus.Set(RegGPIOStatus, 0x01, regbus.Width8)
		bus.Set(RegRangeMM, 500, regbus.Width16)
		bus.FailRead(reg, timeout)

		r, ok, err := d.Read()
		require.ErrorIs(t, err, regbus.ErrTransport, "reg %#04x", reg)
		assert.False(t, ok)
		assert.Equal(t, Reading{}, r)
		assert.Empty(t, bus.Writes(), "interrupt must not be cleared after a failed read")
		assert.Equal(t, StateRanging, d.State())

		bus.ClearFaults()
		r, ok, err = d.Read()
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, uint16(500), r.DistanceMM)
		require.NoError(t, d.Close())
	}
}

func TestRead_InterruptClearFailure(t *testing.T) {
	d, bus := rangingDriver(t)
	bus.Set(RegGPIOStatus, 0x01, regbus.Width8)
	bus.FailWrite(RegInterruptClear, errors.New("nack"))

	_, ok, err := d.Read()
	require.ErrorIs(t, err, regbus.ErrTransport)
	assert.False(t, ok)
	assert.Equal(t, StateRanging, d.State())
}

func TestRead_RequiresRanging(t *testing.T) {
	bus, tr := newDevice(t)
	d, _, _ := newDriver(t, tr)

	_, _, err := d.Read()
	assert.ErrorIs(t, err, ErrNotRanging)

	require.NoError(t, d.Init())
	bus.ResetLog()
	_, _, err = d.Read()
	assert.ErrorIs(t, err, ErrNotRanging)
	assert.Empty(t, bus.Log())
}
