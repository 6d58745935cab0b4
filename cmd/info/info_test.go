package info

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/longrec/internal/audiofile"
)

func TestPrintInfo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tone.wav")
	pcm := audiofile.PCM{SampleRate: 8000, Channels: 1, Samples: make([]int16, 16000)}
	require.NoError(t, audiofile.NewWAVFormat().Create(context.Background(), path, pcm))

	var buf bytes.Buffer
	require.NoError(t, printInfo(&buf, path))
	out := buf.String()
	assert.Contains(t, out, "Sample rate: 8000 Hz")
	assert.Contains(t, out, "Channels:    1")
	assert.Contains(t, out, "Bit depth:   16")
	assert.Contains(t, out, "Duration:    2s")
}

func TestPrintInfoMissingFile(t *testing.T) {
	var buf bytes.Buffer
	require.Error(t, printInfo(&buf, filepath.Join(t.TempDir(), "missing.wav")))
}
