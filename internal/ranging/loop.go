// Package ranging runs the sensor poll loop: read the driver, frame each
// sample and publish it.
package ranging

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/range.report/internal/monitoring"
	"github.com/banshee-data/range.report/internal/telemetry"
	"github.com/banshee-data/range.report/internal/timeutil"
	"github.com/banshee-data/range.report/internal/tof"
)

const (
	// DefaultInterval caps polling at 100 Hz.
	DefaultInterval               = 10 * time.Millisecond
	DefaultMaxConsecutiveFailures = 50
)

// ErrTooManyFailures is returned by Run when the consecutive failure bound
// is reached.
var ErrTooManyFailures = errors.New("ranging: too many consecutive poll failures")

// Reader is the part of the driver the loop polls.
type Reader interface {
	Read() (tof.Reading, bool, error)
}

// Publisher accepts frames. *telemetry.Hub implements it.
type Publisher interface {
	PublishFrame(telemetry.Frame) int
}

// Config controls a Loop.
type Config struct {
	Topic    string
	Interval time.Duration
	// MaxConsecutiveFailures ends Run after this many failed cycles in a
	// row. Zero means never.
	MaxConsecutiveFailures int
}

// Outcome is the result kind of one poll cycle.
type Outcome int

const (
	OutcomeMiss Outcome = iota
	OutcomeSample
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeMiss:
		return "miss"
	case OutcomeSample:
		return "sample"
	case OutcomeFailed:
		return "failed"
	}
	return fmt.Sprintf("Outcome(%d)", int(o))
}

// TickResult describes one poll cycle. Frame and Delivered are set for
// OutcomeSample, Err for OutcomeFailed.
type TickResult struct {
	Outcome   Outcome
	Frame     telemetry.Frame
	Delivered int
	Err       error
}

// Stats are the loop counters.
type Stats struct {
	Samples     uint64 `json:"samples"`
	Misses      uint64 `json:"misses"`
	Failures    uint64 `json:"failures"`
	Consecutive int    `json:"consecutive_failures"`
}

// Option configures a Loop.
type Option func(*Loop)

// WithClock sets the clock whose ticker paces Run.
func WithClock(c timeutil.Clock) Option {
	return func(l *Loop) { l.clock = c }
}

// WithMetrics records every cycle in m.
func WithMetrics(m *monitoring.Metrics) Option {
	return func(l *Loop) { l.metrics = m }
}

// Loop polls a Reader and publishes each sample. Tick and Run must be called
// from the goroutine that owns the driver.
type Loop struct {
	reader  Reader
	pub     Publisher
	cfg     Config
	clock   timeutil.Clock
	metrics *monitoring.Metrics

	mu    sync.Mutex
	stats Stats
}

// New returns a loop. Zero Interval and empty Topic take their defaults.
func New(r Reader, pub Publisher, cfg Config, opts ...Option) *Loop {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Topic == "" {
		cfg.Topic = telemetry.DefaultTopic
	}
	if cfg.MaxConsecutiveFailures < 0 {
		cfg.MaxConsecutiveFailures = 0
	}
	l := &Loop{
		reader: r,
		pub:    pub,
		cfg:    cfg,
		clock:  timeutil.RealClock{},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Tick runs one poll cycle. A failed read is reported in the result and
// never published.
func (l *Loop) Tick() TickResult {
	r, ok, err := l.reader.Read()
	switch {
	case err != nil:
		l.mu.Lock()
		l.stats.Failures++
		l.stats.Consecutive++
		l.mu.Unlock()
		l.metrics.ObserveFailure()
		return TickResult{Outcome: OutcomeFailed, Err: err}

	case !ok:
		l.mu.Lock()
		l.stats.Misses++
		l.stats.Consecutive = 0
		l.mu.Unlock()
		l.metrics.ObserveMiss()
		return TickResult{Outcome: OutcomeMiss}
	}

	f := telemetry.FromReading(l.cfg.Topic, r)
	n := l.pub.PublishFrame(f)

	l.mu.Lock()
	l.stats.Samples++
	l.stats.Consecutive = 0
	l.mu.Unlock()
	l.metrics.ObserveReading(r.DistanceMM, r.SignalRate, r.RangeStatus, string(r.Class()))
	monitoring.Debugf("ranging: %4dmm signal %6.2f status %d (%s) to %d subscribers",
		r.DistanceMM, r.SignalRate, r.RangeStatus, r.Class(), n)

	return TickResult{Outcome: OutcomeSample, Frame: f, Delivered: n}
}

// Run ticks every Interval until ctx is done, which returns nil. Failed
// cycles are logged and skipped; once MaxConsecutiveFailures of them happen
// in a row Run returns an error wrapping ErrTooManyFailures and the last
// read error.
func (l *Loop) Run(ctx context.Context) error {
	ticker := l.clock.NewTicker(l.cfg.Interval)
	defer ticker.Stop()

	monitoring.Logf("ranging: polling every %s, topic %q", l.cfg.Interval, l.cfg.Topic)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C():
		}

		res := l.Tick()
		if res.Outcome != OutcomeFailed {
			continue
		}
		n := l.Stats().Consecutive
		monitoring.Warnf("ranging: poll failed (%d in a row): %v", n, res.Err)
		if limit := l.cfg.MaxConsecutiveFailures; limit > 0 && n >= limit {
			return fmt.Errorf("%w (%d): %w", ErrTooManyFailures, n, res.Err)
		}
	}
}

// Stats returns a snapshot of the counters.
func (l *Loop) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats
}

// Config returns the effective configuration.
func (l *Loop) Config() Config { return l.cfg }
