package notify

import (
	"fmt"
	"sync"
	"time"

	units "github.com/docker/go-units"
	"golang.org/x/time/rate"

	"github.com/tphakala/longrec/internal/logger"
	"github.com/tphakala/longrec/internal/observability/metrics"
	"github.com/tphakala/longrec/internal/recorder"
)

const queueSize = 16

type message struct {
	title string
	body  string
}

// Notifier turns recorder events into notifications. It reports finished
// sessions and failed writes; successful flushes are not sent. Delivery
// happens on a worker goroutine and failure messages are rate limited so
// a broken disk does not flood the services.
type Notifier struct {
	sender  Sender
	log     logger.Logger
	metrics *metrics.NotificationMetrics // optional
	limiter *rate.Limiter

	queue   chan message
	stop    chan struct{}
	done    chan struct{}
	closing sync.Once
}

// New starts the delivery worker. m may be nil.
func New(sender Sender, log logger.Logger, m *metrics.NotificationMetrics) *Notifier {
	if log == nil {
		log = logger.Global().Module(componentName)
	}
	n := &Notifier{
		sender:  sender,
		log:     log,
		metrics: m,
		limiter: rate.NewLimiter(rate.Every(time.Minute), 3),
		queue:   make(chan message, queueSize),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go n.run()
	return n
}

func (n *Notifier) SessionStarted(recorder.SessionInfo) {}

func (n *Notifier) Flushed(e recorder.FlushEvent) {
	if e.Err == nil || e.Final {
		// the final flush is reported with the stop summary
		return
	}
	if !n.limiter.Allow() {
		n.log.Debug("write failure notification suppressed", logger.String("session_id", e.SessionID))
		return
	}
	n.enqueue(message{
		title: "Recording write failed",
		body: fmt.Sprintf("Session %s could not write %d blocks to %s: %v",
			e.SessionID, e.Blocks, displayPath(e.File), e.Err),
	})
}

func (n *Notifier) SessionStopped(e recorder.StopEvent) {
	title := "Recording finished"
	if e.Err != nil {
		title = "Recording finished with errors"
	}
	body := fmt.Sprintf("%s\nLength: %s\nStopped: %s\nBlocks: %d captured, %d written, %d skipped",
		displayPath(e.Path),
		units.HumanDuration(e.Elapsed),
		e.Reason,
		e.BlocksCaptured, e.BlocksWritten, e.BlocksSkipped)
	if e.Err != nil {
		body += fmt.Sprintf("\nError: %v", e.Err)
	}
	n.enqueue(message{title: title, body: body})
}

func (n *Notifier) enqueue(msg message) {
	select {
	case <-n.stop:
		return
	default:
	}
	select {
	case n.queue <- msg:
	default:
		n.log.Warn("notification queue full, dropping message", logger.String("title", msg.title))
	}
}

func (n *Notifier) run() {
	defer close(n.done)
	for {
		select {
		case msg := <-n.queue:
			n.deliver(msg)
		case <-n.stop:
			for {
				select {
				case msg := <-n.queue:
					n.deliver(msg)
				default:
					return
				}
			}
		}
	}
}

func (n *Notifier) deliver(msg message) {
	start := time.Now()
	err := n.sender.Send(msg.title, msg.body)
	if n.metrics != nil {
		n.metrics.RecordDelivery(n.sender.Name(), time.Since(start), err)
	}
	if err != nil {
		n.log.Warn("notification delivery failed",
			logger.String("service", n.sender.Name()),
			logger.String("title", msg.title),
			logger.Error(err))
		return
	}
	n.log.Debug("notification sent", logger.String("title", msg.title))
}

// Close waits for queued messages to be delivered and stops the worker.
func (n *Notifier) Close() {
	n.closing.Do(func() { close(n.stop) })
	<-n.done
}

func displayPath(p string) string {
	if p == "" {
		return "(discarded)"
	}
	return p
}
