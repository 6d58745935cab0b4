package mqtt

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/tphakala/longrec/internal/logger"
	"github.com/tphakala/longrec/internal/observability/metrics"
	"github.com/tphakala/longrec/internal/recorder"
)

const eventQueueSize = 64

// Event types published on <topic>/events.
const (
	EventSessionStarted = "session_started"
	EventFlush          = "flush"
	EventSessionStopped = "session_stopped"
)

// Event is the JSON payload published for every recorder lifecycle event.
type Event struct {
	Type       string    `json:"type"`
	SessionID  string    `json:"session_id"`
	Timestamp  time.Time `json:"timestamp"`
	Path       string    `json:"path,omitempty"`
	Format     string    `json:"format,omitempty"`
	SampleRate int       `json:"sample_rate,omitempty"`
	Channels   int       `json:"channels,omitempty"`

	// flush
	File    string `json:"file,omitempty"`
	Blocks  int    `json:"blocks,omitempty"`
	Skipped int    `json:"skipped,omitempty"`
	Bytes   int64  `json:"bytes,omitempty"`
	Final   bool   `json:"final,omitempty"`

	// session_stopped
	Reason         string  `json:"reason,omitempty"`
	ElapsedSeconds float64 `json:"elapsed_seconds,omitempty"`
	BlocksCaptured int64   `json:"blocks_captured,omitempty"`
	BlocksWritten  int64   `json:"blocks_written,omitempty"`
	BlocksSkipped  int64   `json:"blocks_skipped,omitempty"`

	Error string `json:"error,omitempty"`
}

// Publisher forwards recorder events to MQTT. Events are queued and sent
// by a single worker so the recorder never waits on the broker; when the
// queue is full new events are dropped.
type Publisher struct {
	client  Client
	topic   string
	log     logger.Logger
	metrics *metrics.MQTTMetrics

	events  chan Event
	stop    chan struct{}
	done    chan struct{}
	closing sync.Once
	timeout time.Duration
}

// NewPublisher starts the publish worker. Close must be called to stop it.
// m may be nil.
func NewPublisher(client Client, cfg Config, log logger.Logger, m *metrics.MQTTMetrics) *Publisher {
	if log == nil {
		log = logger.Global().Module(componentName)
	}
	p := &Publisher{
		client:  client,
		topic:   cfg.Topic + "/events",
		log:     log,
		metrics: m,
		events:  make(chan Event, eventQueueSize),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
		timeout: cfg.PublishTimeout,
	}
	if p.timeout <= 0 {
		p.timeout = DefaultConfig().PublishTimeout
	}
	go p.run()
	return p
}

// Topic returns the topic events are published on.
func (p *Publisher) Topic() string { return p.topic }

func (p *Publisher) SessionStarted(s recorder.SessionInfo) {
	p.enqueue(Event{
		Type:       EventSessionStarted,
		SessionID:  s.ID,
		Timestamp:  s.Started,
		Path:       s.Path,
		Format:     s.Format,
		SampleRate: s.SampleRate,
		Channels:   s.Channels,
	})
}

func (p *Publisher) Flushed(e recorder.FlushEvent) {
	p.enqueue(Event{
		Type:      EventFlush,
		SessionID: e.SessionID,
		Timestamp: time.Now(),
		File:      e.File,
		Blocks:    e.Blocks,
		Skipped:   e.Skipped,
		Bytes:     e.Bytes,
		Final:     e.Final,
		Error:     errText(e.Err),
	})
}

func (p *Publisher) SessionStopped(e recorder.StopEvent) {
	p.enqueue(Event{
		Type:           EventSessionStopped,
		SessionID:      e.SessionID,
		Timestamp:      time.Now(),
		Path:           e.Path,
		Reason:         string(e.Reason),
		ElapsedSeconds: e.Elapsed.Seconds(),
		BlocksCaptured: e.BlocksCaptured,
		BlocksWritten:  e.BlocksWritten,
		BlocksSkipped:  e.BlocksSkipped,
		Error:          errText(e.Err),
	})
}

func (p *Publisher) enqueue(ev Event) {
	select {
	case <-p.stop:
		return
	default:
	}
	select {
	case p.events <- ev:
	default:
		p.metrics.RecordEvent(ev.Type, metrics.EventDropped)
		p.log.Warn("mqtt event queue full, dropping event",
			logger.String("type", ev.Type),
			logger.String("session_id", ev.SessionID))
	}
}

func (p *Publisher) run() {
	defer close(p.done)
	for {
		select {
		case ev := <-p.events:
			p.publish(ev)
		case <-p.stop:
			// send what is already queued, then exit
			for {
				select {
				case ev := <-p.events:
					p.publish(ev)
				default:
					return
				}
			}
		}
	}
}

func (p *Publisher) publish(ev Event) {
	if !p.client.IsConnected() {
		p.metrics.RecordEvent(ev.Type, metrics.EventSkipped)
		p.log.Debug("mqtt not connected, skipping event", logger.String("type", ev.Type))
		return
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		p.log.Error("failed to encode mqtt event", logger.String("type", ev.Type), logger.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	if err := p.client.Publish(ctx, p.topic, payload); err != nil {
		p.log.Warn("failed to publish mqtt event",
			logger.String("type", ev.Type),
			logger.String("topic", p.topic),
			logger.Error(err))
		return
	}
	p.metrics.RecordEvent(ev.Type, metrics.EventPublished)
}

// Close stops the worker after it has sent the events already queued.
func (p *Publisher) Close() {
	p.closing.Do(func() { close(p.stop) })
	<-p.done
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
