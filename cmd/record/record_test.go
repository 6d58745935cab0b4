package record

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/longrec/internal/recorder"
)

func TestStopWatcherKeepsFirstEvent(t *testing.T) {
	w := newStopWatcher()
	w.SessionStopped(recorder.StopEvent{Reason: recorder.StopAutoStop, BlocksCaptured: 10})
	w.SessionStopped(recorder.StopEvent{Reason: recorder.StopManual})

	select {
	case <-w.done:
	default:
		t.Fatal("watcher not signalled")
	}
	assert.Equal(t, recorder.StopAutoStop, w.last.Reason)
	assert.Equal(t, int64(10), w.last.BlocksCaptured)
}

func TestPrintSummary(t *testing.T) {
	path := filepath.Join(t.TempDir(), "take.wav")
	require.NoError(t, os.WriteFile(path, make([]byte, 2048), 0o644))

	var buf bytes.Buffer
	printSummary(&buf, recorder.StopEvent{
		Reason:         recorder.StopManual,
		Elapsed:        1500 * time.Millisecond,
		Path:           path,
		BlocksCaptured: 30,
		BlocksWritten:  29,
		BlocksSkipped:  1,
		Flushes:        2,
	}, false)

	out := buf.String()
	assert.Contains(t, out, "Stopped (manual) after 1.5s")
	assert.Contains(t, out, "30 captured, 29 written, 1 skipped in 2 flush(es)")
	assert.Contains(t, out, "File: "+path)
}

func TestPrintSummaryDiscard(t *testing.T) {
	var buf bytes.Buffer
	printSummary(&buf, recorder.StopEvent{Reason: recorder.StopManual}, false)
	assert.NotContains(t, buf.String(), "File:")
}
