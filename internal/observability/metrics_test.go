package observability

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/longrec/internal/recorder"
)

func findFamily(t *testing.T, m *Metrics, name string) *dto.MetricFamily {
	t.Helper()
	families, err := m.Registry().Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() == name {
			return f
		}
	}
	t.Fatalf("metric family %s not found", name)
	return nil
}

func TestRecorderMetricsFollowEvents(t *testing.T) {
	queued := int64(4096)
	m, err := NewMetrics(func() int64 { return queued })
	require.NoError(t, err)

	var obs recorder.Observer = m.Recorder
	obs.SessionStarted(recorder.SessionInfo{ID: "s1"})
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.Recorder.Recording), 1e-9)

	obs.Flushed(recorder.FlushEvent{Blocks: 4, Skipped: 1, Bytes: 400, Duration: 3 * time.Millisecond})
	obs.Flushed(recorder.FlushEvent{Blocks: 2, Bytes: 200, Final: true, Err: errors.New("disk full")})
	obs.SessionStopped(recorder.StopEvent{Reason: recorder.StopAutoStop})

	assert.InDelta(t, 0.0, testutil.ToFloat64(m.Recorder.Recording), 1e-9)
	assert.InDelta(t, 400.0, testutil.ToFloat64(m.Recorder.BytesWritten), 1e-9)
	assert.InDelta(t, 4.0, testutil.ToFloat64(m.Recorder.BlocksWritten), 1e-9)
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.Recorder.BlocksSkipped), 1e-9)
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.Recorder.FlushesTotal.WithLabelValues("threshold", "success")), 1e-9)
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.Recorder.FlushesTotal.WithLabelValues("stop", "error")), 1e-9)
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.Recorder.SessionsTotal.WithLabelValues("max_duration", "success")), 1e-9)

	mem := findFamily(t, m, "longrec_memory_estimate_bytes")
	require.Len(t, mem.GetMetric(), 1)
	assert.InDelta(t, 4096.0, mem.GetMetric()[0].GetGauge().GetValue(), 1e-9)

	queued = 0
	mem = findFamily(t, m, "longrec_memory_estimate_bytes")
	assert.InDelta(t, 0.0, mem.GetMetric()[0].GetGauge().GetValue(), 1e-9)

	hist := findFamily(t, m, "longrec_flush_duration_seconds")
	assert.Equal(t, dto.MetricType_HISTOGRAM, hist.GetType())
	assert.Equal(t, uint64(2), hist.GetMetric()[0].GetHistogram().GetSampleCount())
}

func TestMetricsHandlerServesExposition(t *testing.T) {
	m, err := NewMetrics(nil)
	require.NoError(t, err)
	m.MQTT.UpdateConnectionStatus(true)
	m.Notification.RecordDelivery("ntfy", 10*time.Millisecond, nil)
	m.Catalog.RecordOperation("segment_add", time.Millisecond, nil)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))

	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "longrec_mqtt_connection_status 1")
	assert.Contains(t, body, `longrec_notification_deliveries_total{service="ntfy",status="success"} 1`)
	assert.Contains(t, body, `longrec_catalog_operations_total{operation="segment_add",status="success"} 1`)
	assert.Contains(t, body, "longrec_memory_estimate_bytes 0")
}
