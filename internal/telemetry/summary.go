package telemetry

import (
	"fmt"
	"math"
	"sync"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/range.report/internal/tof"
)

// summaryWindow bounds the distances kept for mean and deviation.
const summaryWindow = 4096

// Summary accumulates decoded frames for an end-of-run report. Mean and
// standard deviation cover the most recent summaryWindow frames; counts,
// minimum and maximum cover the whole run.
type Summary struct {
	mu        sync.Mutex
	frames    int
	malformed int
	classes   map[tof.StatusClass]int
	window    []float64
	next      int
	min, max  float64
}

// NewSummary returns an empty summary.
func NewSummary() *Summary {
	return &Summary{
		classes: make(map[tof.StatusClass]int),
		window:  make([]float64, 0, summaryWindow),
		min:     math.Inf(1),
		max:     math.Inf(-1),
	}
}

// Add records a decoded frame.
func (s *Summary) Add(f Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.frames++
	s.classes[f.Class()]++

	d := float64(f.DistanceMM)
	if len(s.window) < summaryWindow {
		s.window = append(s.window, d)
	} else {
		s.window[s.next] = d
		s.next = (s.next + 1) % summaryWindow
	}
	s.min = math.Min(s.min, d)
	s.max = math.Max(s.max, d)
}

// AddMalformed records a line that failed to decode.
func (s *Summary) AddMalformed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.malformed++
}

// Report is a point-in-time summary.
type Report struct {
	Frames    int
	Malformed int
	OK        int
	Weak      int
	Err       int
	MeanMM    float64
	StdDevMM  float64
	MinMM     float64
	MaxMM     float64
}

// Report computes the current summary. Distance fields are zero until a
// frame has been added.
func (s *Summary) Report() Report {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := Report{
		Frames:    s.frames,
		Malformed: s.malformed,
		OK:        s.classes[tof.ClassOK],
		Weak:      s.classes[tof.ClassWeak],
		Err:       s.classes[tof.ClassErr],
	}
	if len(s.window) == 0 {
		return r
	}
	r.MeanMM, r.StdDevMM = stat.MeanStdDev(s.window, nil)
	if len(s.window) == 1 {
		r.StdDevMM = 0
	}
	r.MinMM, r.MaxMM = s.min, s.max
	return r
}

func (r Report) String() string {
	return fmt.Sprintf("frames=%d malformed=%d ok=%d weak=%d err=%d distance mean=%.1fmm sd=%.1fmm min=%.0fmm max=%.0fmm",
		r.Frames, r.Malformed, r.OK, r.Weak, r.Err, r.MeanMM, r.StdDevMM, r.MinMM, r.MaxMM)
}
