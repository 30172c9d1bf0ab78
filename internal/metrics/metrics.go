// Package metrics provides Prometheus metrics for udpblast.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "udpblast"
)

// Metrics contains all Prometheus metrics for the blaster.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Session metrics
	SessionsActive prometheus.Gauge
	SessionsTotal  prometheus.Counter
	SessionErrors  *prometheus.CounterVec

	// Resolution metrics
	Resolutions    *prometheus.CounterVec
	ResolveLatency prometheus.Histogram

	// Datagram metrics
	DatagramsSent  prometheus.Counter
	BytesSent      prometheus.Counter
	ShortDatagrams prometheus.Counter
	SendErrors     prometheus.Counter
	DatagramSize   prometheus.Histogram

	// Receiver metrics
	DatagramsReceived prometheus.Counter
	BytesReceived     prometheus.Counter
}

var (
	defaultMetrics *Metrics
	metricsOnce    sync.Once
)

// Default returns the default metrics instance.
func Default() *Metrics {
	metricsOnce.Do(func() {
		defaultMetrics = NewMetrics()
	})
	return defaultMetrics
}

// NewMetrics creates a new Metrics instance registered with the default registerer.
func NewMetrics() *Metrics {
	return NewMetricsWithRegistry(prometheus.DefaultRegisterer)
}

// NewMetricsWithRegistry creates a new Metrics instance with a custom registry.
func NewMetricsWithRegistry(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	m := &Metrics{
		SessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of blasters that have not reached a terminal state",
		}),
		SessionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Total number of blasters created",
		}),
		SessionErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_errors_total",
			Help:      "Total terminal blaster errors by type",
		}, []string{"error_type"}),

		Resolutions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resolutions_total",
			Help:      "Total destination resolutions by result",
		}, []string{"result"}),
		ResolveLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "resolve_latency_seconds",
			Help:      "Histogram of destination resolution latency",
			Buckets:   []float64{.0001, .001, .005, .01, .025, .05, .1, .25, .5, 1, 5},
		}),

		DatagramsSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "datagrams_sent_total",
			Help:      "Total datagrams sent",
		}),
		BytesSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_sent_total",
			Help:      "Total payload bytes sent",
		}),
		ShortDatagrams: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "short_datagrams_total",
			Help:      "Total final datagrams shorter than the packet size",
		}),
		SendErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "send_errors_total",
			Help:      "Total failed datagram sends",
		}),
		DatagramSize: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "datagram_size_bytes",
			Help:      "Histogram of sent datagram payload sizes",
			Buckets:   []float64{64, 128, 256, 512, 1024, 1472, 4096, 8192, 65507},
		}),

		DatagramsReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "datagrams_received_total",
			Help:      "Total datagrams received by the listener",
		}),
		BytesReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_received_total",
			Help:      "Total payload bytes received by the listener",
		}),
	}

	return m
}

// RecordSessionOpen records a new blaster.
func (m *Metrics) RecordSessionOpen() {
	if m == nil {
		return
	}
	m.SessionsActive.Inc()
	m.SessionsTotal.Inc()
}

// RecordSessionClose records a blaster reaching a terminal state.
func (m *Metrics) RecordSessionClose() {
	if m == nil {
		return
	}
	m.SessionsActive.Dec()
}

// RecordSessionError records a terminal error.
func (m *Metrics) RecordSessionError(errorType string) {
	if m == nil {
		return
	}
	m.SessionErrors.WithLabelValues(errorType).Inc()
}

// RecordResolve records one resolution attempt.
func (m *Metrics) RecordResolve(latencySeconds float64, ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.Resolutions.WithLabelValues(result).Inc()
	m.ResolveLatency.Observe(latencySeconds)
}

// RecordDatagram records a sent datagram. short marks a final datagram
// smaller than the packet size.
func (m *Metrics) RecordDatagram(size int, short bool) {
	if m == nil {
		return
	}
	m.DatagramsSent.Inc()
	m.BytesSent.Add(float64(size))
	m.DatagramSize.Observe(float64(size))
	if short {
		m.ShortDatagrams.Inc()
	}
}

// RecordSendError records a failed send.
func (m *Metrics) RecordSendError() {
	if m == nil {
		return
	}
	m.SendErrors.Inc()
}

// RecordReceived records a datagram seen by the listener.
func (m *Metrics) RecordReceived(size int) {
	if m == nil {
		return
	}
	m.DatagramsReceived.Inc()
	m.BytesReceived.Add(float64(size))
}
