package telemetry

import "github.com/prometheus/client_golang/prometheus"

var (
	publishedDesc = prometheus.NewDesc("tof_telemetry_published_total",
		"Lines published to the telemetry hub.", nil, nil)
	sentDesc = prometheus.NewDesc("tof_telemetry_sent_total",
		"Lines queued to subscribers.", nil, nil)
	droppedDesc = prometheus.NewDesc("tof_telemetry_dropped_total",
		"Lines dropped because a subscriber queue was full.", nil, nil)
	subscribersDesc = prometheus.NewDesc("tof_telemetry_subscribers",
		"Live telemetry subscribers.", nil, nil)
)

// Collector exposes hub counters to Prometheus.
type Collector struct {
	hub *Hub
}

// NewCollector returns a collector reading h.
func NewCollector(h *Hub) *Collector { return &Collector{hub: h} }

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- publishedDesc
	ch <- sentDesc
	ch <- droppedDesc
	ch <- subscribersDesc
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	st := c.hub.Stats()
	ch <- prometheus.MustNewConstMetric(publishedDesc, prometheus.CounterValue, float64(st.Published))
	ch <- prometheus.MustNewConstMetric(sentDesc, prometheus.CounterValue, float64(st.Sent))
	ch <- prometheus.MustNewConstMetric(droppedDesc, prometheus.CounterValue, float64(st.Dropped))
	ch <- prometheus.MustNewConstMetric(subscribersDesc, prometheus.GaugeValue, float64(len(st.Subscribers)))
}
