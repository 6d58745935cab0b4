package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// NotificationMetrics tracks shoutrrr deliveries.
type NotificationMetrics struct {
	DeliveriesTotal  *prometheus.CounterVec   // by service and status
	DeliveryDuration *prometheus.HistogramVec // by service
	registry         *prometheus.Registry
}

// NewNotificationMetrics creates and registers the notification collectors.
func NewNotificationMetrics(registry *prometheus.Registry) (*NotificationMetrics, error) {
	m := &NotificationMetrics{registry: registry}
	m.DeliveriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "longrec_notification_deliveries_total",
		Help: "Notification deliveries by service and status",
	}, []string{"service", "status"})
	m.DeliveryDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "longrec_notification_delivery_duration_seconds",
		Help:    "Time spent delivering one notification",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 10),
	}, []string{"service"})

	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register notification metrics: %w", err)
	}
	return m, nil
}

// RecordDelivery records one delivery attempt.
func (m *NotificationMetrics) RecordDelivery(service string, d time.Duration, err error) {
	m.DeliveriesTotal.WithLabelValues(service, status(err)).Inc()
	m.DeliveryDuration.WithLabelValues(service).Observe(d.Seconds())
}

// Describe implements prometheus.Collector.
func (m *NotificationMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.DeliveriesTotal.Describe(ch)
	m.DeliveryDuration.Describe(ch)
}

// Collect implements prometheus.Collector.
func (m *NotificationMetrics) Collect(ch chan<- prometheus.Metric) {
	m.DeliveriesTotal.Collect(ch)
	m.DeliveryDuration.Collect(ch)
}
