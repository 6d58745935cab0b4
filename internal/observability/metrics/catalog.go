package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CatalogMetrics tracks session catalog writes.
type CatalogMetrics struct {
	registry *prometheus.Registry

	dbOperationsTotal   *prometheus.CounterVec
	dbOperationDuration *prometheus.HistogramVec
}

// NewCatalogMetrics creates and registers the catalog collectors.
func NewCatalogMetrics(registry *prometheus.Registry) (*CatalogMetrics, error) {
	m := &CatalogMetrics{registry: registry}
	m.dbOperationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "longrec_catalog_operations_total",
		Help: "Catalog database operations by operation and status",
	}, []string{"operation", "status"})
	m.dbOperationDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "longrec_catalog_operation_duration_seconds",
		Help:    "Catalog database operation latency",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
	}, []string{"operation"})

	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register catalog metrics: %w", err)
	}
	return m, nil
}

// RecordOperation records one database operation.
func (m *CatalogMetrics) RecordOperation(operation string, d time.Duration, err error) {
	m.dbOperationsTotal.WithLabelValues(operation, status(err)).Inc()
	m.dbOperationDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// Describe implements prometheus.Collector.
func (m *CatalogMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.dbOperationsTotal.Describe(ch)
	m.dbOperationDuration.Describe(ch)
}

// Collect implements prometheus.Collector.
func (m *CatalogMetrics) Collect(ch chan<- prometheus.Metric) {
	m.dbOperationsTotal.Collect(ch)
	m.dbOperationDuration.Collect(ch)
}
