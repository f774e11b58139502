package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/fluxorio/conduit/pkg/channel"
)

// ChannelSnapshot is a point-in-time view of one channel, produced by
// whoever owns the channel endpoints.
type ChannelSnapshot struct {
	Name     string
	Length   int
	Capacity int
	Stats    channel.Stats
}

// ChannelCollector exposes channel snapshots as Prometheus metrics.
// Totals come from the channel's own operation counters, read at scrape
// time, so the send and receive hot paths carry no extra instrumentation.
type ChannelCollector struct {
	snapshot func() []ChannelSnapshot

	depth    *prometheus.Desc
	capacity *prometheus.Desc
	sends    *prometheus.Desc
	recvs    *prometheus.Desc
	full     *prometheus.Desc
	empty    *prometheus.Desc
	timeouts *prometheus.Desc
}

// NewChannelCollector creates a collector that calls snapshot on every
// scrape. Register it with a prometheus.Registerer to expose it.
func NewChannelCollector(snapshot func() []ChannelSnapshot) *ChannelCollector {
	labels := []string{"channel"}
	return &ChannelCollector{
		snapshot: snapshot,
		depth: prometheus.NewDesc(
			"conduit_channel_depth",
			"Messages currently buffered in the channel",
			labels, nil,
		),
		capacity: prometheus.NewDesc(
			"conduit_channel_capacity",
			"Channel capacity, 0 for rendezvous channels",
			labels, nil,
		),
		sends: prometheus.NewDesc(
			"conduit_channel_sends_total",
			"Messages accepted into the channel",
			labels, nil,
		),
		recvs: prometheus.NewDesc(
			"conduit_channel_recvs_total",
			"Messages taken out of the channel",
			labels, nil,
		),
		full: prometheus.NewDesc(
			"conduit_channel_full_total",
			"Non-blocking sends rejected for lack of room",
			labels, nil,
		),
		empty: prometheus.NewDesc(
			"conduit_channel_empty_total",
			"Non-blocking receives rejected for lack of messages",
			labels, nil,
		),
		timeouts: prometheus.NewDesc(
			"conduit_channel_timeouts_total",
			"Blocking operations that gave up waiting",
			labels, nil,
		),
	}
}

// Describe implements prometheus.Collector
func (c *ChannelCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.depth
	ch <- c.capacity
	ch <- c.sends
	ch <- c.recvs
	ch <- c.full
	ch <- c.empty
	ch <- c.timeouts
}

// Collect implements prometheus.Collector
func (c *ChannelCollector) Collect(ch chan<- prometheus.Metric) {
	for _, s := range c.snapshot() {
		ch <- prometheus.MustNewConstMetric(c.depth, prometheus.GaugeValue, float64(s.Length), s.Name)
		ch <- prometheus.MustNewConstMetric(c.capacity, prometheus.GaugeValue, float64(s.Capacity), s.Name)
		ch <- prometheus.MustNewConstMetric(c.sends, prometheus.CounterValue, float64(s.Stats.Sends), s.Name)
		ch <- prometheus.MustNewConstMetric(c.recvs, prometheus.CounterValue, float64(s.Stats.Recvs), s.Name)
		ch <- prometheus.MustNewConstMetric(c.full, prometheus.CounterValue, float64(s.Stats.Full), s.Name)
		ch <- prometheus.MustNewConstMetric(c.empty, prometheus.CounterValue, float64(s.Stats.Empty), s.Name)
		ch <- prometheus.MustNewConstMetric(c.timeouts, prometheus.CounterValue, float64(s.Stats.Timeouts), s.Name)
	}
}
