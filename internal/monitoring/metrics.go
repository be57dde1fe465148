package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "tof"

// Metrics exposes the ranging pipeline to Prometheus. A nil *Metrics is
// valid and records nothing, so library code never needs a registry.
type Metrics struct {
	readings     *prometheus.CounterVec
	pollMisses   prometheus.Counter
	pollFailures prometheus.Counter
	distance     prometheus.Gauge
	signalRate   prometheus.Gauge
	rangeStatus  prometheus.Gauge
	driverState  prometheus.Gauge
	transitions  *prometheus.CounterVec
	malformed    prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		readings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "readings_total",
			Help:      "Ranging samples collected, by status class (OK, WEAK, ERR).",
		}, []string{"class"}),
		pollMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_misses_total",
			Help:      "Polls that found the data-ready flag clear.",
		}),
		pollFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_failures_total",
			Help:      "Poll cycles aborted by a bus transaction failure.",
		}),
		distance: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "distance_mm",
			Help:      "Last measured distance (units: mm).",
		}),
		signalRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "signal_rate",
			Help:      "Last signal rate (units: MCPS).",
		}),
		rangeStatus: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "range_status",
			Help:      "Last raw range status code (0-31).",
		}),
		driverState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "driver_state",
			Help:      "Current driver state as its numeric code.",
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "driver_transitions_total",
			Help:      "Driver state transitions, by destination state.",
		}, []string{"to"}),
		malformed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "malformed_frames_total",
			Help:      "Telemetry lines dropped because they failed to decode.",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.readings, m.pollMisses, m.pollFailures,
			m.distance, m.signalRate, m.rangeStatus,
			m.driverState, m.transitions, m.malformed,
		)
	}
	return m
}

// ObserveReading records one collected sample.
func (m *Metrics) ObserveReading(distanceMM uint16, signalRate float64, status uint8, class string) {
	if m == nil {
		return
	}
	m.readings.WithLabelValues(class).Inc()
	m.distance.Set(float64(distanceMM))
	m.signalRate.Set(signalRate)
	m.rangeStatus.Set(float64(status))
}

// ObserveMiss records a poll that found no sample.
func (m *Metrics) ObserveMiss() {
	if m == nil {
		return
	}
	m.pollMisses.Inc()
}

// ObserveFailure records a poll cycle aborted by a transport error.
func (m *Metrics) ObserveFailure() {
	if m == nil {
		return
	}
	m.pollFailures.Inc()
}

// ObserveTransition records a driver state change.
func (m *Metrics) ObserveTransition(code int, name string) {
	if m == nil {
		return
	}
	m.driverState.Set(float64(code))
	m.transitions.WithLabelValues(name).Inc()
}

// ObserveMalformed records a telemetry line that failed to decode.
func (m *Metrics) ObserveMalformed() {
	if m == nil {
		return
	}
	m.malformed.Inc()
}
