package tof

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/range.report/internal/regbus"
	"github.com/banshee-data/range.report/internal/timeutil"
)

func newSimDriver(t *testing.T, opts SimOptions) (*Simulator, *Driver) {
	t.Helper()
	sim := NewSimulator(opts)
	tr, err := regbus.New(sim.Bus, t.Name(), regbus.DefaultAddress, sim.Bus)
	require.NoError(t, err)
	d := New(tr, WithClock(timeutil.NewMockClock(epoch)))
	t.Cleanup(func() { _ = d.Close() })
	return sim, d
}

func TestSimulator_BootsAfterConfiguredPolls(t *testing.T) {
	sim, d := newSimDriver(t, SimOptions{BootPolls: 4})
	require.NoError(t, d.Init())
	assert.Equal(t, 5, d.BootPolls())
	assert.Equal(t, 5, sim.Bus.ReadCount(RegFirmwareStatus))
}

func TestSimulator_Ranging(t *testing.T) {
	sim, d := newSimDriver(t, SimOptions{ReadyEvery: 3, MinMM: 1000, MaxMM: 1100, StepMM: 50})
	require.NoError(t, d.Init())

	assert.False(t, sim.Ranging())
	require.NoError(t, d.Start())
	assert.True(t, sim.Ranging())

	var got []uint16
	misses := 0
	for len(got) < 5 {
		r, ok, err := d.Read()
		require.NoError(t, err)
		if !ok {
			misses++
			continue
		}
		got = append(got, r.DistanceMM)
		assert.Greater(t, r.SignalRate, 0.0)
	}
	assert.Equal(t, []uint16{1000, 1050, 1100, 1050, 1000}, got)
	assert.Equal(t, 10, misses)
	assert.Equal(t, 5, sim.Samples())

	require.NoError(t, d.Stop())
	assert.False(t, sim.Ranging())
	_, _, err := d.Read()
	assert.ErrorIs(t, err, ErrNotRanging)
}

func TestSimulator_PendingUntilCleared(t *testing.T) {
	sim := NewSimulator(SimOptions{ReadyEvery: 1})
	tr, err := regbus.New(sim.Bus, t.Name(), regbus.DefaultAddress, sim.Bus)
	require.NoError(t, err)
	defer tr.Close()

	require.NoError(t, tr.WriteRegister(RegModeStart, 0x40, regbus.Width8))
	for i := 0; i < 3; i++ {
		v, err := tr.ReadRegister(RegGPIOStatus, regbus.Width8)
		require.NoError(t, err)
		assert.Equal(t, uint32(1), v, fmt.Sprintf("poll %d", i))
	}
	assert.Equal(t, 1, sim.Samples(), "no new sample while the interrupt is pending")

	require.NoError(t, tr.WriteRegister(RegInterruptClear, 0x01, regbus.Width8))
	_, err = tr.ReadRegister(RegGPIOStatus, regbus.Width8)
	require.NoError(t, err)
	assert.Equal(t, 2, sim.Samples())
}
