package recorder

import (
	"context"
	"encoding/binary"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/tphakala/longrec/internal/logger"
)

const (
	statusEventBuffer = 64
	statusLogEvery    = time.Second
	statusLogBurst    = 5
)

type statusEvent struct {
	status StreamStatus
	frames int
	at     time.Time
}

// capture is the producer side of a session. onBlock runs on the driver's
// real-time thread: it copies the input, publishes it and returns. It takes
// no lock other than the queue push and never touches the disk or the log.
type capture struct {
	queue    *Queue
	frames   int
	channels int

	blocks  atomic.Int64
	last    atomic.Pointer[Block]
	events  chan statusEvent
	dropped atomic.Int64
}

func newCapture(q *Queue, frames, channels int) *capture {
	return &capture{
		queue:    q,
		frames:   frames,
		channels: channels,
		events:   make(chan statusEvent, statusEventBuffer),
	}
}

func (c *capture) onBlock(out, in []byte, frames int, status StreamStatus) {
	if frames != c.frames {
		status |= StatusFrameMismatch
	}

	samples := make([]int16, len(in)/sampleWidth)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(in[i*sampleWidth:]))
	}
	b := &Block{
		Samples:  samples,
		Frames:   frames,
		Channels: c.channels,
		Captured: time.Now(),
		Status:   status,
	}

	c.last.Store(b)
	c.queue.Push(b)
	c.blocks.Add(1)

	if out != nil {
		copy(out, in)
	}

	if status != 0 {
		select {
		case c.events <- statusEvent{status: status, frames: frames, at: b.Captured}:
		default:
			c.dropped.Add(1)
		}
	}
}

// logStatus reports driver status flags off the real-time thread until ctx
// is cancelled.
func (c *capture) logStatus(ctx context.Context, log logger.Logger) {
	limiter := rate.NewLimiter(rate.Every(statusLogEvery), statusLogBurst)
	suppressed := 0
	for {
		select {
		case <-ctx.Done():
			if n := suppressed + int(c.dropped.Load()); n > 0 {
				log.Warn("stream status events not logged", logger.Int("count", n))
			}
			return
		case ev := <-c.events:
			if !limiter.Allow() {
				suppressed++
				continue
			}
			log.Warn("audio stream status",
				logger.String("status", ev.status.String()),
				logger.Int("frames", ev.frames),
				logger.Int("suppressed", suppressed),
				logger.Time("at", ev.at))
			suppressed = 0
		}
	}
}
