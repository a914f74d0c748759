package stats

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is the optional Prometheus surface for a running sender or
// receiver, enabled with --metrics on either CLI.
type Metrics struct {
	FramesTotal     prometheus.Counter
	FrameSizeBytes  prometheus.Histogram
	TargetBitrate   prometheus.Gauge
	EWMARTTMs       prometheus.Gauge
	RecoveryTotal   prometheus.Counter
	FramesLostTotal prometheus.Counter
}

// NewMetrics registers a fresh set of collectors under reg, tagged with
// role ("sender" or "receiver").
func NewMetrics(reg prometheus.Registerer, role string) *Metrics {
	m := &Metrics{
		FramesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vstream", Subsystem: role, Name: "frames_total",
			Help: "Frames processed since startup.",
		}),
		FrameSizeBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "vstream", Subsystem: role, Name: "frame_size_bytes",
			Help:    "Encoded frame size in bytes.",
			Buckets: prometheus.ExponentialBuckets(256, 2, 12),
		}),
		TargetBitrate: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "vstream", Subsystem: role, Name: "target_bitrate_kbps",
			Help: "Current CBR target bitrate in kbps.",
		}),
		EWMARTTMs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "vstream", Subsystem: role, Name: "ewma_rtt_ms",
			Help: "Current EWMA round-trip time estimate in milliseconds.",
		}),
		RecoveryTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vstream", Subsystem: role, Name: "recovery_total",
			Help: "Times key-frame give-up recovery has fired.",
		}),
		FramesLostTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vstream", Subsystem: role, Name: "frames_lost_total",
			Help: "Frames the receiver gave up reassembling and skipped.",
		}),
	}
	reg.MustRegister(m.FramesTotal, m.FrameSizeBytes, m.TargetBitrate, m.EWMARTTMs, m.RecoveryTotal, m.FramesLostTotal)
	return m
}

// ObserveSender updates the metric set from one sender Stats-shaped row.
func (m *Metrics) ObserveSender(row SenderRow) {
	m.FramesTotal.Inc()
	m.FrameSizeBytes.Observe(float64(row.FrameSizeBytes))
	m.TargetBitrate.Set(float64(row.TargetBitrateKbps))
	m.EWMARTTMs.Set(row.EWMARTTMs)
	if row.RecoveryFired {
		m.RecoveryTotal.Inc()
	}
}

// ObserveReceiver updates the metric set from one receiver telemetry row.
func (m *Metrics) ObserveReceiver(row ReceiverRow) {
	m.FramesTotal.Inc()
	m.FrameSizeBytes.Observe(float64(row.FrameSizeBytes))
	if row.FramesLost > 0 {
		for i := 0; i < row.FramesLost; i++ {
			m.FramesLostTotal.Inc()
		}
	}
}

// ServeMetrics starts an HTTP server exposing reg's metrics at /metrics on
// addr, in a background goroutine. It never blocks; server errors are
// logged since a metrics listener failing is not fatal to the stream.
func ServeMetrics(addr string, reg *prometheus.Registry, log *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true}))
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Error("metrics server stopped", "error", fmt.Errorf("stats: %w", err))
		}
	}()
}
