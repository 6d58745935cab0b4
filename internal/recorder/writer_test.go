package recorder

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/longrec/internal/audiofile"
	"github.com/tphakala/longrec/internal/errors"
	"github.com/tphakala/longrec/internal/logger"
)

func quietLogger() logger.Logger {
	return logger.NewSlogLogger(io.Discard, logger.LogLevelError, nil)
}

func wavRegistry() *audiofile.Registry {
	return audiofile.NewRegistry(audiofile.NewWAVFormat())
}

// writeOnceFormat stands in for an ffmpeg container.
type writeOnceFormat struct{ created []string }

func (f *writeOnceFormat) Name() string     { return "once" }
func (f *writeOnceFormat) Ext() string      { return ".once" }
func (f *writeOnceFormat) Appendable() bool { return false }

func (f *writeOnceFormat) Create(_ context.Context, path string, _ audiofile.PCM) error {
	f.created = append(f.created, path)
	return os.WriteFile(path, []byte("x"), 0o600)
}

func (f *writeOnceFormat) Append(context.Context, string, audiofile.PCM) error {
	return errors.NewStd("append not supported")
}

func pcm(values ...int16) audiofile.PCM {
	return audiofile.PCM{Samples: values, SampleRate: testRate, Channels: 1}
}

func TestDiskWriterDiscardsWithoutPath(t *testing.T) {
	w, err := newDiskWriter(wavRegistry(), "", false, true, quietLogger())
	require.NoError(t, err)

	file, err := w.Write(context.Background(), pcm(1, 2))
	require.NoError(t, err)
	assert.Empty(t, file)
}

func TestDiskWriterPartitionNames(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "take(1).wav"), []byte("keep"), 0o600))

	w, err := newDiskWriter(wavRegistry(), filepath.Join(dir, "take.wav"), true, true, quietLogger())
	require.NoError(t, err)

	var got []string
	for range 3 {
		file, err := w.Write(context.Background(), pcm(1, 2, 3))
		require.NoError(t, err)
		got = append(got, filepath.Base(file))
	}
	assert.Equal(t, []string{"take(0).wav", "take(2).wav", "take(3).wav"}, got)

	kept, err := os.ReadFile(filepath.Join(dir, "take(1).wav"))
	require.NoError(t, err)
	assert.Equal(t, "keep", string(kept))
}

func TestDiskWriterCreatesThenAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "single.WAV")
	w, err := newDiskWriter(wavRegistry(), path, false, true, quietLogger())
	require.NoError(t, err)

	_, err = w.Write(context.Background(), pcm(1, 2))
	require.NoError(t, err)
	_, err = w.Write(context.Background(), pcm(3))
	require.NoError(t, err)

	info, err := audiofile.ReadInfo(path)
	require.NoError(t, err)
	assert.Equal(t, int64(3), info.Frames)

	st, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(44+6), st.Size())
}

func TestDiskWriterFallbackSuffix(t *testing.T) {
	dir := t.TempDir()

	w, err := newDiskWriter(wavRegistry(), filepath.Join(dir, "take.xyz"), false, true, quietLogger())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "take.wav"), w.Path())

	require.NoError(t, os.WriteFile(filepath.Join(dir, "clash.wav"), []byte("x"), 0o600))
	_, err = newDiskWriter(wavRegistry(), filepath.Join(dir, "clash.mp9"), false, true, quietLogger())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAlreadyExists)
	assert.True(t, errors.IsCategory(err, errors.CategoryFileExists))
}

func TestDiskWriterRejectsGrowingWriteOnceFormat(t *testing.T) {
	dir := t.TempDir()
	once := &writeOnceFormat{}
	reg := audiofile.NewRegistry(audiofile.NewWAVFormat(), once)

	_, err := newDiskWriter(reg, filepath.Join(dir, "a.once"), false, true, quietLogger())
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryFormat))

	// a single write at stop is fine when nothing is flushed before it
	_, err = newDiskWriter(reg, filepath.Join(dir, "a.once"), false, false, quietLogger())
	require.NoError(t, err)

	w, err := newDiskWriter(reg, filepath.Join(dir, "b.once"), true, true, quietLogger())
	require.NoError(t, err)
	_, err = w.Write(context.Background(), pcm(1))
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "b(0).once")}, once.created)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "c.once"), []byte("x"), 0o600))
	_, err = newDiskWriter(reg, filepath.Join(dir, "c.once"), false, false, quietLogger())
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryFormat))
}
