// Package recorder implements a memory-bounded audio recorder.
//
// A driver callback copies every captured block into an unbounded queue.
// A background memory manager watches the bytes held by the queue and,
// once they reach the configured threshold, drains the queue, concatenates
// the blocks and hands the buffer to a disk writer. Stopping always runs a
// final synchronous flush, so everything captured before stop is written.
//
//	rec, err := recorder.New(driver, recorder.Options{Threshold: 64 << 20}, log)
//	if err != nil {
//	    return err
//	}
//	if err := rec.Start("session.wav", time.Hour); err != nil {
//	    return err
//	}
//	defer rec.Stop()
package recorder

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/tphakala/longrec/internal/audiofile"
	"github.com/tphakala/longrec/internal/errors"
	"github.com/tphakala/longrec/internal/logger"
)

const (
	DefaultBlockLength   = 50 * time.Millisecond
	DefaultCheckInterval = 50 * time.Millisecond

	// Unbounded disables threshold flushing; data is written at stop only.
	Unbounded int64 = -1
)

// Options configures a Recorder.
type Options struct {
	BlockLength   time.Duration
	CheckInterval time.Duration
	// Threshold is the queued byte count that triggers a flush. A negative
	// value means Unbounded.
	Threshold int64
	Partition bool
	Monitor   bool
	// Registry resolves containers from file suffixes. Nil means WAV only.
	Registry  *audiofile.Registry
	Observers []Observer
}

// Metadata is the recorder's query surface as a single value.
type Metadata struct {
	SampleRate    int     `json:"samplerate"`
	BlockSize     int     `json:"blocksize"`
	BlockLength   float64 `json:"blocklength"`
	Recording     bool    `json:"recording"`
	RecordingTime float64 `json:"recording_time"`
	MemoryUsage   int64   `json:"memory_usage"`
}

// Status extends Metadata with the current session's counters.
type Status struct {
	Metadata
	SessionID      string `json:"session_id,omitempty"`
	Path           string `json:"path,omitempty"`
	BlocksCaptured int64  `json:"blocks_captured"`
	BlocksWritten  int64  `json:"blocks_written"`
	BlocksSkipped  int64  `json:"blocks_skipped"`
	Flushes        int64  `json:"flushes"`
	QueuedBlocks   int    `json:"queued_blocks"`
}

type session struct {
	id      string
	started time.Time
	writer  *diskWriter
	queue   *Queue
	capture *capture
	stream  Stream
	timer   *time.Timer
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	flushMu sync.Mutex
	written atomic.Int64
	skipped atomic.Int64
	flushes atomic.Int64
}

// Recorder owns the capture lifecycle of one device. Start and Stop are
// serialized; the query methods never block on them.
type Recorder struct {
	driver      Driver
	desc        DeviceDescriptor
	opts        Options
	log         logger.Logger
	blockFrames int

	mu       sync.Mutex
	current  atomic.Pointer[session]
	lastStop atomic.Pointer[StopEvent]
}

// New returns an idle recorder for driver. The device descriptor is read
// once and kept for the recorder's lifetime.
func New(driver Driver, opts Options, log logger.Logger) (*Recorder, error) {
	if log == nil {
		log = logger.Global().Module(componentName)
	}
	if opts.BlockLength <= 0 {
		opts.BlockLength = DefaultBlockLength
	}
	if opts.CheckInterval <= 0 {
		opts.CheckInterval = DefaultCheckInterval
	}
	if opts.Threshold < 0 {
		opts.Threshold = Unbounded
	}
	if opts.Registry == nil {
		opts.Registry = audiofile.NewRegistry(audiofile.NewWAVFormat())
	}

	desc := driver.Descriptor()
	if desc.SampleRate <= 0 || desc.Channels <= 0 {
		return nil, errors.Newf("device %q reports %d Hz with %d channels", desc.Name, desc.SampleRate, desc.Channels).
			Component(componentName).
			Category(errors.CategoryAudioDevice).
			Context("operation", "resolve_device").
			Build()
	}

	if fallback := opts.Registry.Fallback().Name(); desc.DefaultFormat != fallback {
		if desc.DefaultFormat != "" {
			log.Debug("device default format replaced by registry fallback",
				logger.String("device_format", desc.DefaultFormat),
				logger.String("fallback", fallback))
		}
		desc.DefaultFormat = fallback
	}

	frames := int(int64(desc.SampleRate) * int64(opts.BlockLength) / int64(time.Second))
	if frames <= 0 {
		return nil, errors.Newf("block length %s is shorter than one frame at %d Hz", opts.BlockLength, desc.SampleRate).
			Component(componentName).
			Category(errors.CategoryConfiguration).
			Build()
	}

	return &Recorder{
		driver:      driver,
		desc:        desc,
		opts:        opts,
		log:         log,
		blockFrames: frames,
	}, nil
}

// Start begins a session writing to path, or discarding audio when path is
// empty. A positive maxDuration stops the session automatically. Start is a
// no-op while a session is active.
func (r *Recorder) Start(path string, maxDuration time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.current.Load() != nil {
		r.log.Debug("start ignored, already recording")
		return nil
	}

	writer, err := newDiskWriter(r.opts.Registry, path, r.opts.Partition, r.opts.Threshold >= 0, r.log)
	if err != nil {
		return err
	}

	q := &Queue{}
	s := &session{
		id:      uuid.NewString(),
		started: time.Now(),
		writer:  writer,
		queue:   q,
		capture: newCapture(q, r.blockFrames, r.desc.Channels),
	}

	stream, err := r.driver.Open(StreamConfig{
		SampleRate:  r.desc.SampleRate,
		Channels:    r.desc.Channels,
		BlockFrames: r.blockFrames,
		Monitor:     r.opts.Monitor,
	}, s.capture.onBlock)
	if err != nil {
		return deviceError(err, "open_stream")
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return deviceError(err, "start_stream")
	}
	s.stream = stream

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.capture.logStatus(ctx, r.log)
	}()

	if r.opts.Threshold >= 0 {
		s.wg.Add(1)
		go r.memoryLoop(ctx, s)
	}

	r.current.Store(s)

	if maxDuration > 0 {
		s.timer = time.AfterFunc(maxDuration, func() {
			if err := r.stop(s, StopAutoStop); err != nil {
				r.log.Error("auto-stop failed", logger.String("session_id", s.id), logger.Error(err))
			}
		})
	}

	info := SessionInfo{
		ID:          s.id,
		Path:        writer.Path(),
		Partition:   r.opts.Partition,
		SampleRate:  r.desc.SampleRate,
		Channels:    r.desc.Channels,
		BlockFrames: r.blockFrames,
		MaxDuration: maxDuration,
		Started:     s.started,
	}
	if writer.format != nil {
		info.Format = writer.format.Name()
	}
	for _, o := range r.opts.Observers {
		o.SessionStarted(info)
	}
	return nil
}

// Stop ends the active session: it cancels the auto-stop timer, stops the
// stream, joins the memory manager and writes whatever is still queued.
// The final flush error is returned. Stop is a no-op when idle.
func (r *Recorder) Stop() error {
	return r.stop(nil, StopManual)
}

// stop ends s, or the current session when s is nil. A stale s, such as one
// captured by an auto-stop timer that fired late, is ignored.
func (r *Recorder) stop(s *session, reason StopReason) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.current.Load()
	if cur == nil || (s != nil && cur != s) {
		return nil
	}
	s = cur

	if s.timer != nil {
		s.timer.Stop()
	}

	var errs []error
	if err := s.stream.Stop(); err != nil {
		errs = append(errs, deviceError(err, "stop_stream"))
	}
	s.cancel()
	s.wg.Wait()

	if err := r.flush(s, true); err != nil {
		errs = append(errs, err)
	}
	if err := s.stream.Close(); err != nil {
		r.log.Warn("closing audio stream failed", logger.Error(err))
	}

	captured := s.capture.blocks.Load()
	r.current.Store(nil)

	err := errors.Join(errs...)
	ev := StopEvent{
		SessionID:      s.id,
		Path:           s.writer.Path(),
		Reason:         reason,
		Elapsed:        time.Duration(captured) * r.opts.BlockLength,
		BlocksCaptured: captured,
		BlocksWritten:  s.written.Load(),
		BlocksSkipped:  s.skipped.Load(),
		Flushes:        s.flushes.Load(),
		Err:            err,
	}
	r.lastStop.Store(&ev)
	for _, o := range r.opts.Observers {
		o.SessionStopped(ev)
	}
	return err
}

// LastStop returns the summary of the most recently finished session, taken
// after its final flush.
func (r *Recorder) LastStop() (StopEvent, bool) {
	ev := r.lastStop.Load()
	if ev == nil {
		return StopEvent{}, false
	}
	return *ev, true
}

func (r *Recorder) emitFlushed(ev FlushEvent) {
	for _, o := range r.opts.Observers {
		o.Flushed(ev)
	}
}

// IsRecording reports whether a session is active.
func (r *Recorder) IsRecording() bool {
	return r.current.Load() != nil
}

// ElapsedTime returns the captured duration in seconds, or -1 when idle.
func (r *Recorder) ElapsedTime() float64 {
	s := r.current.Load()
	if s == nil {
		return -1
	}
	return float64(s.capture.blocks.Load()) * r.opts.BlockLength.Seconds()
}

// MemoryEstimate returns the bytes currently queued for the next flush.
func (r *Recorder) MemoryEstimate() int64 {
	s := r.current.Load()
	if s == nil {
		return 0
	}
	return s.queue.Bytes()
}

// LastBlock returns a copy of the most recently captured block, or nil.
func (r *Recorder) LastBlock() *Block {
	s := r.current.Load()
	if s == nil {
		return nil
	}
	b := s.capture.last.Load()
	if b == nil {
		return nil
	}
	cp := *b
	cp.Samples = append([]int16(nil), b.Samples...)
	return &cp
}

// Descriptor returns the resolved device.
func (r *Recorder) Descriptor() DeviceDescriptor {
	return r.desc
}

// Metadata returns the current recorder state.
func (r *Recorder) Metadata() Metadata {
	return Metadata{
		SampleRate:    r.desc.SampleRate,
		BlockSize:     r.blockFrames,
		BlockLength:   r.opts.BlockLength.Seconds(),
		Recording:     r.IsRecording(),
		RecordingTime: r.ElapsedTime(),
		MemoryUsage:   r.MemoryEstimate(),
	}
}

// Status returns Metadata plus the counters of the active session.
func (r *Recorder) Status() Status {
	st := Status{Metadata: r.Metadata()}
	s := r.current.Load()
	if s == nil {
		return st
	}
	st.SessionID = s.id
	st.Path = s.writer.Path()
	st.BlocksCaptured = s.capture.blocks.Load()
	st.BlocksWritten = s.written.Load()
	st.BlocksSkipped = s.skipped.Load()
	st.Flushes = s.flushes.Load()
	st.QueuedBlocks = s.queue.Len()
	return st
}
