package recorder

import (
	"context"
	"time"

	"github.com/tphakala/longrec/internal/logger"
)

// memoryLoop polls the queue every check interval and flushes once the
// queued bytes reach the threshold. It returns when ctx is cancelled; the
// final flush is left to stop.
func (r *Recorder) memoryLoop(ctx context.Context, s *session) {
	defer s.wg.Done()

	ticker := time.NewTicker(r.opts.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.queue.Bytes() < r.opts.Threshold {
				continue
			}
			if err := r.flush(s, false); err != nil {
				r.log.Error("background flush failed",
					logger.String("session_id", s.id),
					logger.Error(err))
			}
		}
	}
}

// flush drains the queue, fuses the snapshot and writes it. Flushes of one
// session are serialized. An empty snapshot is skipped.
func (r *Recorder) flush(s *session, final bool) error {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	blocks := s.queue.Drain()
	if len(blocks) == 0 {
		return nil
	}

	start := time.Now()
	f := fuse(blocks, r.blockFrames, r.desc.Channels, r.desc.SampleRate, r.log)
	s.skipped.Add(int64(f.skipped))
	if f.blocks == 0 {
		return nil
	}

	file, err := s.writer.Write(context.Background(), f.pcm)
	if err == nil {
		s.written.Add(int64(f.blocks))
	}
	s.flushes.Add(1)

	r.emitFlushed(FlushEvent{
		SessionID:     s.id,
		File:          file,
		Blocks:        f.blocks,
		Skipped:       f.skipped,
		Frames:        f.pcm.Frames(),
		Bytes:         f.pcm.Bytes(),
		FirstCaptured: f.first,
		LastCaptured:  f.last,
		Duration:      time.Since(start),
		Final:         final,
		Err:           err,
	})
	return err
}
