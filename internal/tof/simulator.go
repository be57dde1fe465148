package tof

import (
	"math"
	"sync"

	"github.com/banshee-data/range.report/internal/regbus"
)

// SimOptions shapes the behaviour of a Simulator.
type SimOptions struct {
	// BootPolls is how many firmware status reads report "not ready" after
	// a soft reset.
	BootPolls int
	// ReadyEvery is how many data-ready polls pass between measurements.
	ReadyEvery int
	// MinMM and MaxMM bound the distance sweep; StepMM is the change per
	// measurement.
	MinMM, MaxMM, StepMM uint16
}

// DefaultSimOptions sweeps 200..4000 mm in 25 mm steps.
var DefaultSimOptions = SimOptions{
	BootPolls:  3,
	ReadyEvery: 2,
	MinMM:      200,
	MaxMM:      4000,
	StepMM:     25,
}

// Simulator is an in-memory VL53L4CX. Its Bus answers at
// regbus.DefaultAddress with the sensor's model id, boots a few polls after a
// soft reset, and produces a triangular distance sweep while ranging.
type Simulator struct {
	Bus *regbus.MemBus

	opts SimOptions

	mu          sync.Mutex
	statusReads int
	ranging     bool
	pending     bool
	polls       int
	distance    int
	dir         int
	samples     int
}

// NewSimulator returns a powered-up simulator. Zero ReadyEvery, MaxMM and
// StepMM take their DefaultSimOptions value; BootPolls is used as given.
func NewSimulator(opts SimOptions) *Simulator {
	if opts.BootPolls < 0 {
		opts.BootPolls = 0
	}
	if opts.ReadyEvery <= 0 {
		opts.ReadyEvery = DefaultSimOptions.ReadyEvery
	}
	if opts.MaxMM == 0 {
		opts.MinMM, opts.MaxMM = DefaultSimOptions.MinMM, DefaultSimOptions.MaxMM
	}
	if opts.StepMM == 0 {
		opts.StepMM = DefaultSimOptions.StepMM
	}
	if opts.MinMM > opts.MaxMM {
		opts.MinMM, opts.MaxMM = opts.MaxMM, opts.MinMM
	}

	s := &Simulator{
		Bus:      regbus.NewMemBus(regbus.DefaultAddress),
		opts:     opts,
		distance: int(opts.MinMM),
		dir:      1,
	}
	s.Bus.Set(RegModelID, uint32(SensorID), regbus.Width16)
	s.Bus.OnWrite(RegSoftReset, s.onSoftReset)
	s.Bus.OnRead(RegFirmwareStatus, s.onFirmwareStatus)
	s.Bus.OnWrite(RegModeStart, s.onModeStart)
	s.Bus.OnRead(RegGPIOStatus, s.onDataReady)
	s.Bus.OnWrite(RegInterruptClear, s.onInterruptClear)
	return s
}

// Samples returns how many measurements have been produced.
func (s *Simulator) Samples() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.samples
}

// Ranging reports whether continuous ranging was started.
func (s *Simulator) Ranging() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ranging
}

func (s *Simulator) onSoftReset(data []byte) {
	if len(data) == 0 || data[0] != 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statusReads = 0
	s.ranging = false
	s.pending = false
}

func (s *Simulator) onFirmwareStatus(int) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statusReads++
	if s.statusReads <= s.opts.BootPolls {
		return []byte{0x00}
	}
	return []byte{byte(firmwareReady)}
}

func (s *Simulator) onModeStart(data []byte) {
	if len(data) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ranging = uint32(data[0]) == modeContinuous
	s.polls = 0
}

func (s *Simulator) onInterruptClear(data []byte) {
	if len(data) == 0 || uint32(data[0])&interruptClear == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = false
}

func (s *Simulator) onDataReady(int) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ranging {
		return []byte{0x00}
	}
	if s.pending {
		return []byte{byte(dataReadyBit)}
	}
	s.polls++
	if s.polls < s.opts.ReadyEvery {
		return []byte{0x00}
	}
	s.polls = 0
	s.measure()
	s.pending = true
	return []byte{byte(dataReadyBit)}
}

// measure loads the next sample into the result registers. Caller holds mu.
func (s *Simulator) measure() {
	s.samples++

	d := s.distance
	var status uint32
	switch {
	case s.samples%37 == 0:
		status = 4 // phase out of bounds
	case d > 3500:
		status = 2
	case d < 250:
		status = 1
	}
	signal := math.Min(0xFFFF, 128*20000/float64(d))

	s.Bus.Set(RegRangeStatus, status, regbus.Width8)
	s.Bus.Set(RegRangeMM, uint32(d), regbus.Width16)
	s.Bus.Set(RegSignalRate, uint32(signal), regbus.Width16)

	next := d + s.dir*int(s.opts.StepMM)
	if next > int(s.opts.MaxMM) || next < int(s.opts.MinMM) {
		s.dir = -s.dir
		next = d + s.dir*int(s.opts.StepMM)
		if next > int(s.opts.MaxMM) || next < int(s.opts.MinMM) {
			next = d
		}
	}
	s.distance = next
}
