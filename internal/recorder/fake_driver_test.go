package recorder

import (
	"encoding/binary"
	"sync"
	"time"
)

const (
	testRate        = 1000
	testBlockLength = 50 * time.Millisecond
	testBlockFrames = 50
	testBlockBytes  = testBlockFrames * sampleWidth
)

// manualDriver delivers blocks only when the test calls push.
type manualDriver struct {
	desc    DeviceDescriptor
	openErr error

	mu      sync.Mutex
	cb      CaptureFunc
	cfg     StreamConfig
	running bool
	opens   int
}

func newManualDriver() *manualDriver {
	return &manualDriver{desc: DeviceDescriptor{
		ID: "fake", Name: "fake input", SampleRate: testRate, Channels: 1, DefaultFormat: "wav",
	}}
}

func (d *manualDriver) Descriptor() DeviceDescriptor { return d.desc }

func (d *manualDriver) Open(cfg StreamConfig, cb CaptureFunc) (Stream, error) {
	if d.openErr != nil {
		return nil, d.openErr
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cb, d.cfg = cb, cfg
	d.opens++
	return &manualStream{d: d}, nil
}

// push delivers one block filled with value. It returns the output buffer
// the callback filled when the stream is in monitor mode.
func (d *manualDriver) push(value int16, frames int, status StreamStatus) []byte {
	d.mu.Lock()
	cb, cfg, running := d.cb, d.cfg, d.running
	d.mu.Unlock()
	if !running {
		return nil
	}

	in := make([]byte, frames*cfg.Channels*sampleWidth)
	for i := 0; i < len(in); i += sampleWidth {
		binary.LittleEndian.PutUint16(in[i:], uint16(value))
	}
	var out []byte
	if cfg.Monitor {
		out = make([]byte, len(in))
	}
	cb(out, in, frames, status)
	return out
}

type manualStream struct{ d *manualDriver }

func (s *manualStream) Start() error {
	s.d.mu.Lock()
	s.d.running = true
	s.d.mu.Unlock()
	return nil
}

func (s *manualStream) Stop() error {
	s.d.mu.Lock()
	s.d.running = false
	s.d.mu.Unlock()
	return nil
}

func (s *manualStream) Close() error { return nil }

// tickingDriver feeds a block every block length from its own goroutine,
// like a real device.
type tickingDriver struct {
	desc DeviceDescriptor
}

func newTickingDriver() *tickingDriver {
	return &tickingDriver{desc: DeviceDescriptor{
		ID: "tick", Name: "ticking input", SampleRate: testRate, Channels: 1, DefaultFormat: "wav",
	}}
}

func (d *tickingDriver) Descriptor() DeviceDescriptor { return d.desc }

func (d *tickingDriver) Open(cfg StreamConfig, cb CaptureFunc) (Stream, error) {
	return &tickingStream{cfg: cfg, cb: cb}, nil
}

type tickingStream struct {
	cfg  StreamConfig
	cb   CaptureFunc
	stop chan struct{}
	done chan struct{}
}

func (s *tickingStream) Start() error {
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	interval := time.Duration(s.cfg.BlockFrames) * time.Second / time.Duration(s.cfg.SampleRate)
	go func() {
		defer close(s.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		var n int16
		for {
			select {
			case <-s.stop:
				return
			case <-ticker.C:
				in := make([]byte, s.cfg.BlockFrames*s.cfg.Channels*sampleWidth)
				for i := 0; i < len(in); i += sampleWidth {
					binary.LittleEndian.PutUint16(in[i:], uint16(n))
				}
				s.cb(nil, in, s.cfg.BlockFrames, 0)
				n++
			}
		}
	}()
	return nil
}

func (s *tickingStream) Stop() error {
	if s.stop != nil {
		close(s.stop)
		<-s.done
		s.stop = nil
	}
	return nil
}

func (s *tickingStream) Close() error { return nil }

// eventRecorder is an Observer that keeps every event.
type eventRecorder struct {
	mu      sync.Mutex
	started []SessionInfo
	flushes []FlushEvent
	stopped []StopEvent
}

func (e *eventRecorder) SessionStarted(s SessionInfo) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.started = append(e.started, s)
}

func (e *eventRecorder) Flushed(f FlushEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.flushes = append(e.flushes, f)
}

func (e *eventRecorder) SessionStopped(s StopEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopped = append(e.stopped, s)
}

func (e *eventRecorder) flushCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.flushes)
}

func (e *eventRecorder) stops() []StopEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]StopEvent(nil), e.stopped...)
}
