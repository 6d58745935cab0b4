// Package metrics provides Prometheus collectors for the recorder and the
// components that react to it.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tphakala/longrec/internal/recorder"
)

// RecorderMetrics tracks capture sessions and flushes. It is a
// recorder.Observer.
type RecorderMetrics struct {
	Recording      prometheus.Gauge
	SessionsTotal  *prometheus.CounterVec
	FlushesTotal   *prometheus.CounterVec
	BytesWritten   prometheus.Counter
	BlocksWritten  prometheus.Counter
	BlocksSkipped  prometheus.Counter
	FlushDuration  prometheus.Histogram
	MemoryEstimate prometheus.GaugeFunc

	registry *prometheus.Registry
}

// NewRecorderMetrics registers the recorder collectors. memoryEstimate is
// sampled on every scrape; nil reports zero.
func NewRecorderMetrics(registry *prometheus.Registry, memoryEstimate func() int64) (*RecorderMetrics, error) {
	m := &RecorderMetrics{registry: registry}
	m.initMetrics(memoryEstimate)
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register recorder metrics: %w", err)
	}
	return m, nil
}

func (m *RecorderMetrics) initMetrics(memoryEstimate func() int64) {
	m.Recording = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "longrec_recording",
		Help: "1 while a recording session is active",
	})
	m.SessionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "longrec_sessions_total",
		Help: "Finished recording sessions by stop reason and result",
	}, []string{"reason", "status"})
	m.FlushesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "longrec_flushes_total",
		Help: "Flushes by trigger and result",
	}, []string{"trigger", "status"})
	m.BytesWritten = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "longrec_bytes_written_total",
		Help: "PCM bytes handed to the disk writer",
	})
	m.BlocksWritten = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "longrec_blocks_written_total",
		Help: "Captured blocks persisted or discarded on purpose",
	})
	m.BlocksSkipped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "longrec_blocks_skipped_total",
		Help: "Malformed blocks dropped during fusion",
	})
	m.FlushDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "longrec_flush_duration_seconds",
		Help:    "Time spent fusing and writing one flush",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	})
	m.MemoryEstimate = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "longrec_memory_estimate_bytes",
		Help: "Bytes queued in memory awaiting the next flush",
	}, func() float64 {
		if memoryEstimate == nil {
			return 0
		}
		return float64(memoryEstimate())
	})
}

func (m *RecorderMetrics) SessionStarted(recorder.SessionInfo) {
	m.Recording.Set(1)
}

func (m *RecorderMetrics) Flushed(e recorder.FlushEvent) {
	trigger := "threshold"
	if e.Final {
		trigger = "stop"
	}
	m.FlushesTotal.WithLabelValues(trigger, status(e.Err)).Inc()
	m.FlushDuration.Observe(e.Duration.Seconds())
	m.BlocksSkipped.Add(float64(e.Skipped))
	if e.Err == nil {
		m.BytesWritten.Add(float64(e.Bytes))
		m.BlocksWritten.Add(float64(e.Blocks))
	}
}

func (m *RecorderMetrics) SessionStopped(e recorder.StopEvent) {
	m.Recording.Set(0)
	m.SessionsTotal.WithLabelValues(string(e.Reason), status(e.Err)).Inc()
}

// Describe implements prometheus.Collector.
func (m *RecorderMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.Recording.Describe(ch)
	m.SessionsTotal.Describe(ch)
	m.FlushesTotal.Describe(ch)
	m.BytesWritten.Describe(ch)
	m.BlocksWritten.Describe(ch)
	m.BlocksSkipped.Describe(ch)
	m.FlushDuration.Describe(ch)
	m.MemoryEstimate.Describe(ch)
}

// Collect implements prometheus.Collector.
func (m *RecorderMetrics) Collect(ch chan<- prometheus.Metric) {
	m.Recording.Collect(ch)
	m.SessionsTotal.Collect(ch)
	m.FlushesTotal.Collect(ch)
	m.BytesWritten.Collect(ch)
	m.BlocksWritten.Collect(ch)
	m.BlocksSkipped.Collect(ch)
	m.FlushDuration.Collect(ch)
	m.MemoryEstimate.Collect(ch)
}

func status(err error) string {
	if err != nil {
		return StatusError
	}
	return StatusSuccess
}
