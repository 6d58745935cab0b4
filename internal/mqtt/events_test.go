package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/tphakala/longrec/internal/conf"
	"github.com/tphakala/longrec/internal/logger"
	"github.com/tphakala/longrec/internal/observability/metrics"
	"github.com/tphakala/longrec/internal/recorder"
)

func newTestMetrics(t *testing.T) *metrics.MQTTMetrics {
	t.Helper()
	m, err := metrics.NewMQTTMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	return m
}

func eventCount(m *metrics.MQTTMetrics, eventType, status string) int {
	return int(testutil.ToFloat64(m.Events.WithLabelValues(eventType, status)))
}

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type published struct {
	topic   string
	payload []byte
}

type fakeClient struct {
	mu        sync.Mutex
	connected bool
	failWith  error
	block     chan struct{}
	messages  []published
}

func (f *fakeClient) Connect(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = true
	return nil
}

func (f *fakeClient) Publish(ctx context.Context, topic string, payload []byte) error {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return f.failWith
	}
	f.messages = append(f.messages, published{topic: topic, payload: payload})
	return nil
}

func (f *fakeClient) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeClient) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
}

func (f *fakeClient) sent() []published {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]published(nil), f.messages...)
}

func quietLogger() logger.Logger {
	return logger.NewSlogLogger(io.Discard, logger.LogLevelInfo, nil)
}

func TestPublisherSendsLifecycleEvents(t *testing.T) {
	fc := &fakeClient{connected: true}
	cfg := DefaultConfig()
	cfg.Topic = "studio"
	p := NewPublisher(fc, cfg, quietLogger(), nil)

	var obs recorder.Observer = p
	obs.SessionStarted(recorder.SessionInfo{ID: "s1", Path: "/rec/take.wav", Format: "wav", SampleRate: 48000, Channels: 1, Started: time.Now()})
	obs.Flushed(recorder.FlushEvent{SessionID: "s1", File: "/rec/take.wav", Blocks: 20, Bytes: 96000})
	obs.SessionStopped(recorder.StopEvent{SessionID: "s1", Reason: recorder.StopAutoStop, Elapsed: time.Second, BlocksCaptured: 20, BlocksWritten: 20, Err: errors.New("device lost")})
	p.Close()

	msgs := fc.sent()
	require.Len(t, msgs, 3)
	types := make([]string, 0, len(msgs))
	for _, m := range msgs {
		assert.Equal(t, "studio/events", m.topic)
		var ev Event
		require.NoError(t, json.Unmarshal(m.payload, &ev))
		assert.Equal(t, "s1", ev.SessionID)
		types = append(types, ev.Type)
	}
	assert.Equal(t, []string{EventSessionStarted, EventFlush, EventSessionStopped}, types)

	var stopped Event
	require.NoError(t, json.Unmarshal(msgs[2].payload, &stopped))
	assert.Equal(t, "max_duration", stopped.Reason)
	assert.InDelta(t, 1.0, stopped.ElapsedSeconds, 1e-9)
	assert.Equal(t, "device lost", stopped.Error)
}

func TestPublisherSkipsWhenDisconnected(t *testing.T) {
	fc := &fakeClient{}
	m := newTestMetrics(t)
	p := NewPublisher(fc, DefaultConfig(), quietLogger(), m)
	p.Flushed(recorder.FlushEvent{SessionID: "s1"})
	p.Close()
	assert.Empty(t, fc.sent())
	assert.Equal(t, 1, eventCount(m, EventFlush, metrics.EventSkipped))
}

func TestPublisherDropsWhenQueueFull(t *testing.T) {
	fc := &fakeClient{connected: true, block: make(chan struct{})}
	m := newTestMetrics(t)
	p := NewPublisher(fc, DefaultConfig(), quietLogger(), m)

	for range eventQueueSize * 2 {
		p.Flushed(recorder.FlushEvent{SessionID: "s1"})
	}
	close(fc.block)
	p.Close()

	n := len(fc.sent())
	assert.Positive(t, n)
	assert.LessOrEqual(t, n, eventQueueSize+1)
	assert.Equal(t, n, eventCount(m, EventFlush, metrics.EventPublished))
	assert.Equal(t, eventQueueSize*2, n+eventCount(m, EventFlush, metrics.EventDropped))
}

func TestPublisherLogsPublishErrors(t *testing.T) {
	fc := &fakeClient{connected: true, failWith: errors.New("broker gone")}
	p := NewPublisher(fc, DefaultConfig(), quietLogger(), nil)
	p.SessionStopped(recorder.StopEvent{SessionID: "s1"})
	p.Close()
	assert.Empty(t, fc.sent())
}

func TestPublisherIgnoresEventsAfterClose(t *testing.T) {
	fc := &fakeClient{connected: true}
	p := NewPublisher(fc, DefaultConfig(), quietLogger(), nil)
	p.Close()
	p.Close()
	p.Flushed(recorder.FlushEvent{SessionID: "late"})
	assert.Empty(t, fc.sent())
}

func TestConfigFromSettings(t *testing.T) {
	cfg := ConfigFromSettings(conf.MQTTSettings{Broker: "tcp://broker:1883", Username: "u", Retain: true})
	assert.Equal(t, "tcp://broker:1883", cfg.Broker)
	assert.Equal(t, "longrec", cfg.ClientID)
	assert.Equal(t, "longrec", cfg.Topic)
	assert.True(t, cfg.Retain)
	assert.Equal(t, 10*time.Second, cfg.PublishTimeout)
}

func TestNewClientRequiresBroker(t *testing.T) {
	_, err := NewClient(DefaultConfig(), quietLogger(), nil)
	require.Error(t, err)
}

func TestConnectRejectsBadURL(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Broker = "://bad"
	c, err := NewClient(cfg, quietLogger(), nil)
	require.NoError(t, err)
	require.Error(t, c.Connect(context.Background()))
	assert.False(t, c.IsConnected())
	c.Disconnect()
}
