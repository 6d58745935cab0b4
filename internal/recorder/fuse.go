package recorder

import (
	"time"

	"github.com/tphakala/longrec/internal/audiofile"
	"github.com/tphakala/longrec/internal/logger"
)

// fused is one contiguous buffer built from a queue snapshot.
type fused struct {
	pcm     audiofile.PCM
	blocks  int
	skipped int
	first   time.Time
	last    time.Time
}

// fuse concatenates blocks in order into a single buffer. Blocks whose
// shape differs from the session's are logged and skipped. Blocks are
// joined back to back with no padding frame between them.
func fuse(blocks []*Block, frames, channels, sampleRate int, log logger.Logger) fused {
	blockLen := frames * channels
	valid := 0
	for _, b := range blocks {
		if wellFormed(b, frames, channels) {
			valid++
		}
	}

	out := fused{
		pcm: audiofile.PCM{
			Samples:    make([]int16, 0, valid*blockLen),
			SampleRate: sampleRate,
			Channels:   channels,
		},
	}
	for i, b := range blocks {
		if b == nil {
			out.skipped++
			log.Warn("skipping nil block", logger.Int("index", i))
			continue
		}
		if !wellFormed(b, frames, channels) {
			out.skipped++
			log.Warn("skipping malformed block",
				logger.Int("index", i),
				logger.Int("frames", b.Frames),
				logger.Int("channels", b.Channels),
				logger.Int("samples", len(b.Samples)),
				logger.Int("want_frames", frames))
			continue
		}
		if out.blocks == 0 {
			out.first = b.Captured
		}
		out.last = b.Captured
		out.pcm.Samples = append(out.pcm.Samples, b.Samples...)
		out.blocks++
	}
	return out
}

func wellFormed(b *Block, frames, channels int) bool {
	return b != nil &&
		b.Frames == frames &&
		b.Channels == channels &&
		len(b.Samples) == frames*channels
}
