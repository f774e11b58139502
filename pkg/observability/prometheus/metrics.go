package prometheus

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DefaultRegistry is the default Prometheus registry
	DefaultRegistry = prometheus.NewRegistry()

	// DefaultRegisterer is the default Prometheus registerer
	DefaultRegisterer = prometheus.WrapRegistererWith(prometheus.Labels{"service": "conduit"}, DefaultRegistry)

	// Metrics collection
	metricsOnce sync.Once
	metrics     *Metrics
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Channel operation metrics
	OpsTotal   *prometheus.CounterVec
	OpDuration *prometheus.HistogramVec

	// Load run metrics
	RunMessagesTotal *prometheus.CounterVec
	RunBytesTotal    *prometheus.CounterVec
	RunActiveWorkers *prometheus.GaugeVec
	RunDuration      prometheus.Histogram

	// Custom metrics registry
	CustomCounters   map[string]*prometheus.CounterVec
	CustomGauges     map[string]*prometheus.GaugeVec
	CustomHistograms map[string]*prometheus.HistogramVec
	customMu         sync.RWMutex

	registerer prometheus.Registerer
}

// GetMetrics returns the global metrics instance
func GetMetrics() *Metrics {
	metricsOnce.Do(func() {
		metrics = NewMetrics(DefaultRegisterer)
	})
	return metrics
}

// NewMetrics creates a new metrics collection
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = DefaultRegisterer
	}

	m := &Metrics{
		// Channel operation metrics
		OpsTotal: promauto.With(registerer).NewCounterVec(
			prometheus.CounterOpts{
				Name: "conduit_channel_ops_total",
				Help: "Total number of channel operations by outcome",
			},
			[]string{"channel", "op", "result"}, // op: send, recv; result: ok, full, empty, timeout, closed
		),
		OpDuration: promauto.With(registerer).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "conduit_channel_op_duration_seconds",
				Help:    "Channel operation duration in seconds",
				Buckets: prometheus.ExponentialBuckets(0.000001, 4, 12), // 1us to ~4s
			},
			[]string{"channel", "op"},
		),

		// Load run metrics
		RunMessagesTotal: promauto.With(registerer).NewCounterVec(
			prometheus.CounterOpts{
				Name: "conduit_run_messages_total",
				Help: "Total number of messages moved during a load run",
			},
			[]string{"run", "role"}, // role: producer, consumer
		),
		RunBytesTotal: promauto.With(registerer).NewCounterVec(
			prometheus.CounterOpts{
				Name: "conduit_run_bytes_total",
				Help: "Total payload bytes moved during a load run",
			},
			[]string{"run", "role"},
		),
		RunActiveWorkers: promauto.With(registerer).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "conduit_run_active_workers",
				Help: "Number of live workers in a load run",
			},
			[]string{"run", "role"},
		),
		RunDuration: promauto.With(registerer).NewHistogram(
			prometheus.HistogramOpts{
				Name:    "conduit_run_duration_seconds",
				Help:    "Wall clock duration of completed load runs",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 12), // 100ms to ~200s
			},
		),

		// Custom metrics
		CustomCounters:   make(map[string]*prometheus.CounterVec),
		CustomGauges:     make(map[string]*prometheus.GaugeVec),
		CustomHistograms: make(map[string]*prometheus.HistogramVec),

		registerer: registerer,
	}

	return m
}

// RecordOp records one channel operation outcome
func (m *Metrics) RecordOp(channel, op, result string, duration time.Duration) {
	m.OpsTotal.WithLabelValues(channel, op, result).Inc()
	m.OpDuration.WithLabelValues(channel, op).Observe(duration.Seconds())
}

// AddRunMessages adds a batch of moved messages to a run's counters
func (m *Metrics) AddRunMessages(run, role string, messages, bytes int64) {
	if messages > 0 {
		m.RunMessagesTotal.WithLabelValues(run, role).Add(float64(messages))
	}
	if bytes > 0 {
		m.RunBytesTotal.WithLabelValues(run, role).Add(float64(bytes))
	}
}

// SetActiveWorkers updates the live worker gauge for a run
func (m *Metrics) SetActiveWorkers(run, role string, count int) {
	m.RunActiveWorkers.WithLabelValues(run, role).Set(float64(count))
}

// ObserveRunDuration records the wall clock duration of a finished run
func (m *Metrics) ObserveRunDuration(duration time.Duration) {
	m.RunDuration.Observe(duration.Seconds())
}

// Counter creates or returns a custom counter metric
func (m *Metrics) Counter(name, help string, labels ...string) *prometheus.CounterVec {
	m.customMu.RLock()
	if counter, exists := m.CustomCounters[name]; exists {
		m.customMu.RUnlock()
		return counter
	}
	m.customMu.RUnlock()

	m.customMu.Lock()
	defer m.customMu.Unlock()

	// Double-check after acquiring write lock
	if counter, exists := m.CustomCounters[name]; exists {
		return counter
	}

	counter := promauto.With(m.registerer).NewCounterVec(
		prometheus.CounterOpts{
			Name: name,
			Help: help,
		},
		labels,
	)
	m.CustomCounters[name] = counter
	return counter
}

// Gauge creates or returns a custom gauge metric
func (m *Metrics) Gauge(name, help string, labels ...string) *prometheus.GaugeVec {
	m.customMu.RLock()
	if gauge, exists := m.CustomGauges[name]; exists {
		m.customMu.RUnlock()
		return gauge
	}
	m.customMu.RUnlock()

	m.customMu.Lock()
	defer m.customMu.Unlock()

	// Double-check after acquiring write lock
	if gauge, exists := m.CustomGauges[name]; exists {
		return gauge
	}

	gauge := promauto.With(m.registerer).NewGaugeVec(
		prometheus.GaugeOpts{
			Name: name,
			Help: help,
		},
		labels,
	)
	m.CustomGauges[name] = gauge
	return gauge
}

// Histogram creates or returns a custom histogram metric
func (m *Metrics) Histogram(name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
	m.customMu.RLock()
	if histogram, exists := m.CustomHistograms[name]; exists {
		m.customMu.RUnlock()
		return histogram
	}
	m.customMu.RUnlock()

	m.customMu.Lock()
	defer m.customMu.Unlock()

	// Double-check after acquiring write lock
	if histogram, exists := m.CustomHistograms[name]; exists {
		return histogram
	}

	opts := prometheus.HistogramOpts{
		Name:    name,
		Help:    help,
		Buckets: buckets,
	}
	if buckets == nil {
		opts.Buckets = prometheus.DefBuckets
	}

	histogram := promauto.With(m.registerer).NewHistogramVec(opts, labels)
	m.CustomHistograms[name] = histogram
	return histogram
}

// Convenience functions for global metrics

// Counter returns a custom counter metric (creates if doesn't exist)
func Counter(name, help string, labels ...string) *prometheus.CounterVec {
	return GetMetrics().Counter(name, help, labels...)
}

// Gauge returns a custom gauge metric (creates if doesn't exist)
func Gauge(name, help string, labels ...string) *prometheus.GaugeVec {
	return GetMetrics().Gauge(name, help, labels...)
}

// Histogram returns a custom histogram metric (creates if doesn't exist)
func Histogram(name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
	return GetMetrics().Histogram(name, help, buckets, labels...)
}
