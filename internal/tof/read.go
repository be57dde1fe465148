package tof

import (
	"fmt"

	"github.com/banshee-data/range.report/internal/regbus"
)

// Reading is one completed range measurement.
type Reading struct {
	DistanceMM  uint16
	SignalRate  float64 // Mcps
	RangeStatus uint8   // 0..31
}

// Class classifies RangeStatus.
func (r Reading) Class() StatusClass { return Classify(r.RangeStatus) }

// Read polls the data-ready bit once. If no measurement is ready it returns
// ok=false and a nil error without touching the range registers. Otherwise it
// reads status, distance and signal rate and then clears the interrupt.
//
// A transport failure at any point discards the partial reading; the driver
// stays in StateRanging so the next poll may succeed.
func (d *Driver) Read() (r Reading, ok bool, err error) {
	if err := d.require(StateRanging); err != nil {
		if d.Closed() {
			return Reading{}, false, err
		}
		return Reading{}, false, fmt.Errorf("%w (%s)", ErrNotRanging, d.State())
	}

	gpio, err := d.regs.ReadRegister(RegGPIOStatus, regbus.Width8)
	if err != nil {
		return Reading{}, false, fmt.Errorf("tof: read data ready: %w", err)
	}
	if gpio&dataReadyBit == 0 {
		return Reading{}, false, nil
	}

	status, err := d.regs.ReadRegister(RegRangeStatus, regbus.Width8)
	if err != nil {
		return Reading{}, false, fmt.Errorf("tof: read range status: %w", err)
	}
	distance, err := d.regs.ReadRegister(RegRangeMM, regbus.Width16)
	if err != nil {
		return Reading{}, false, fmt.Errorf("tof: read distance: %w", err)
	}
	signal, err := d.regs.ReadRegister(RegSignalRate, regbus.Width16)
	if err != nil {
		return Reading{}, false, fmt.Errorf("tof: read signal rate: %w", err)
	}
	if err := d.regs.WriteRegister(RegInterruptClear, interruptClear, regbus.Width8); err != nil {
		return Reading{}, false, fmt.Errorf("tof: clear interrupt: %w", err)
	}

	return Reading{
		DistanceMM:  uint16(distance),
		SignalRate:  float64(signal) / signalRateScale,
		RangeStatus: uint8(status) & rangeStatusMask,
	}, true, nil
}
