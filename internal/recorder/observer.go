package recorder

import (
	"time"

	"github.com/tphakala/longrec/internal/logger"
)

// StopReason tells why a session ended.
type StopReason string

const (
	StopManual   StopReason = "manual"
	StopAutoStop StopReason = "max_duration"
)

// SessionInfo describes a session when it starts.
type SessionInfo struct {
	ID          string
	Path        string // resolved target, empty when discarding
	Format      string
	Partition   bool
	SampleRate  int
	Channels    int
	BlockFrames int
	MaxDuration time.Duration
	Started     time.Time
}

// FlushEvent describes one drain, fuse and write cycle.
type FlushEvent struct {
	SessionID     string
	File          string // file written, empty when discarding
	Blocks        int
	Skipped       int
	Frames        int
	Bytes         int64
	FirstCaptured time.Time // capture time of the first block written
	LastCaptured  time.Time
	Duration      time.Duration
	Final         bool
	Err           error
}

// StopEvent summarizes a finished session.
type StopEvent struct {
	SessionID      string
	Path           string
	Reason         StopReason
	Elapsed        time.Duration
	BlocksCaptured int64
	BlocksWritten  int64
	BlocksSkipped  int64
	Flushes        int64
	Err            error
}

// Observer receives session lifecycle events. Calls are made from the
// memory manager or from whoever stops the session, never from the capture
// callback, so implementations may do I/O but should not block for long.
type Observer interface {
	SessionStarted(SessionInfo)
	Flushed(FlushEvent)
	SessionStopped(StopEvent)
}

// LogObserver writes lifecycle events to a logger.
type LogObserver struct {
	log logger.Logger
}

// NewLogObserver returns an observer logging to log.
func NewLogObserver(log logger.Logger) *LogObserver {
	return &LogObserver{log: log}
}

func (o *LogObserver) SessionStarted(s SessionInfo) {
	o.log.Info("recording started",
		logger.String("session_id", s.ID),
		logger.String("path", s.Path),
		logger.String("format", s.Format),
		logger.Bool("partition", s.Partition),
		logger.Int("sample_rate", s.SampleRate),
		logger.Int("channels", s.Channels),
		logger.Duration("max_duration", s.MaxDuration))
}

func (o *LogObserver) Flushed(e FlushEvent) {
	fields := []logger.Field{
		logger.String("session_id", e.SessionID),
		logger.String("file", e.File),
		logger.Int("blocks", e.Blocks),
		logger.Int("skipped", e.Skipped),
		logger.Int64("bytes", e.Bytes),
		logger.Duration("duration", e.Duration),
		logger.Bool("final", e.Final),
	}
	if e.Err != nil {
		o.log.Error("flush failed", append(fields, logger.Error(e.Err))...)
		return
	}
	o.log.Debug("flush completed", fields...)
}

func (o *LogObserver) SessionStopped(e StopEvent) {
	fields := []logger.Field{
		logger.String("session_id", e.SessionID),
		logger.String("path", e.Path),
		logger.String("reason", string(e.Reason)),
		logger.Duration("elapsed", e.Elapsed),
		logger.Int64("blocks_captured", e.BlocksCaptured),
		logger.Int64("blocks_written", e.BlocksWritten),
		logger.Int64("blocks_skipped", e.BlocksSkipped),
		logger.Int64("flushes", e.Flushes),
	}
	if e.Err != nil {
		o.log.Error("recording stopped with error", append(fields, logger.Error(e.Err))...)
		return
	}
	o.log.Info("recording stopped", fields...)
}
