// Package metrics holds the Prometheus collectors for the stream server.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Close reasons recorded on camstream_streams_closed_total.
const (
	ReasonEndOfStream = "end_of_stream"
	ReasonCancelled   = "cancelled"
	ReasonClientGone  = "client_gone"
	ReasonEncodeError = "encode_error"
	ReasonSourceError = "source_error"
)

// Metrics holds all Prometheus metrics. A nil *Metrics records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	// Stream metrics
	ActiveStreams  prometheus.Gauge
	StreamsOpened  prometheus.Counter
	StreamsClosed  *prometheus.CounterVec
	StreamDuration prometheus.Histogram

	// Frame metrics
	FramesServed   prometheus.Counter
	FrameSize      prometheus.Histogram
	EncodeDuration prometheus.Histogram
}

// New creates all metrics on a fresh registry, along with the Go runtime
// and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		ActiveStreams: f.NewGauge(prometheus.GaugeOpts{
			Name: "camstream_active_streams",
			Help: "Number of currently open stream connections",
		}),
		StreamsOpened: f.NewCounter(prometheus.CounterOpts{
			Name: "camstream_streams_opened_total",
			Help: "Total number of stream connections accepted",
		}),
		StreamsClosed: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "camstream_streams_closed_total",
				Help: "Total number of stream connections closed, by reason",
			},
			[]string{"reason"},
		),
		StreamDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "camstream_stream_duration_seconds",
			Help:    "Lifetime of stream connections in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8), // 1s to ~4.5h
		}),

		FramesServed: f.NewCounter(prometheus.CounterOpts{
			Name: "camstream_frames_served_total",
			Help: "Total number of JPEG parts written to clients",
		}),
		FrameSize: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "camstream_frame_size_bytes",
			Help:    "Size of encoded frames in bytes",
			Buckets: prometheus.ExponentialBuckets(4096, 2, 10), // 4KB to 2MB
		}),
		EncodeDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "camstream_encode_duration_seconds",
			Help:    "Time spent encoding one frame",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
	}
}

// RecordStreamOpen records a newly accepted stream.
func (m *Metrics) RecordStreamOpen() {
	if m == nil {
		return
	}
	m.ActiveStreams.Inc()
	m.StreamsOpened.Inc()
}

// RecordStreamClose records a stream ending for the given reason.
func (m *Metrics) RecordStreamClose(reason string, lifetime time.Duration) {
	if m == nil {
		return
	}
	m.ActiveStreams.Dec()
	m.StreamsClosed.WithLabelValues(reason).Inc()
	m.StreamDuration.Observe(lifetime.Seconds())
}

// RecordFrame records one encoded frame written to a client.
func (m *Metrics) RecordFrame(size int, encode time.Duration) {
	if m == nil {
		return
	}
	m.FramesServed.Inc()
	m.FrameSize.Observe(float64(size))
	m.EncodeDuration.Observe(encode.Seconds())
}
