package recorder

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/tphakala/longrec/internal/audiofile"
	"github.com/tphakala/longrec/internal/errors"
	"github.com/tphakala/longrec/internal/logger"
)

// diskWriter persists fused buffers for one session. The target path and
// container are resolved once, before the first write.
type diskWriter struct {
	log       logger.Logger
	path      string // empty discards every buffer
	format    audiofile.Format
	partition bool
	next      int
}

// newDiskWriter resolves path against the registry. An unsupported suffix is
// replaced by the registry's fallback container. When partitioning is off
// and the threshold is finite the container must support appending.
func newDiskWriter(reg *audiofile.Registry, path string, partition, bounded bool, log logger.Logger) (*diskWriter, error) {
	w := &diskWriter{log: log, partition: partition}
	if path == "" {
		return w, nil
	}

	if !partition && fileExists(path) {
		format, ok := reg.ForPath(path)
		if !ok || !format.Appendable() {
			return nil, errors.Newf("cannot append to existing %s file, enable partitioning or choose a new path",
				strings.ToLower(filepath.Ext(path))).
				Component(componentName).
				Category(errors.CategoryFormat).
				FileContext(path).
				Build()
		}
		w.path, w.format = path, format
		return w, nil
	}

	format, ok := reg.ForPath(path)
	if !ok {
		format = reg.Fallback()
		rewritten := strings.TrimSuffix(path, filepath.Ext(path)) + format.Ext()
		log.Warn("unsupported file suffix, using default container",
			logger.String("suffix", filepath.Ext(path)),
			logger.String("format", format.Name()),
			logger.String("path", rewritten))
		if fileExists(rewritten) {
			return nil, errors.New(fmt.Errorf("%w: %s", ErrAlreadyExists, rewritten)).
				Component(componentName).
				Category(errors.CategoryFileExists).
				FileContext(rewritten).
				Build()
		}
		path = rewritten
	}

	if !partition && bounded && !format.Appendable() {
		return nil, errors.Newf("%s files cannot grow across flushes, enable partitioning or use an unbounded memory threshold",
			format.Name()).
			Component(componentName).
			Category(errors.CategoryFormat).
			FileContext(path).
			Build()
	}

	w.path, w.format = path, format
	return w, nil
}

// Path returns the resolved target, empty when discarding.
func (w *diskWriter) Path() string {
	return w.path
}

// Write stores pcm and returns the file it went to. Partitioned sessions
// always create a new numbered file; otherwise the target is created on the
// first write and appended to afterwards.
func (w *diskWriter) Write(ctx context.Context, pcm audiofile.PCM) (string, error) {
	if w.path == "" {
		return "", nil
	}

	if err := os.MkdirAll(filepath.Dir(w.path), 0o755); err != nil {
		return "", errors.New(err).
			Component(componentName).
			Category(errors.CategoryFileIO).
			FileContext(w.path).
			Context("operation", "create_output_dir").
			Build()
	}

	if w.partition {
		target := w.nextPartition()
		return target, w.format.Create(ctx, target, pcm)
	}
	if fileExists(w.path) {
		return w.path, w.format.Append(ctx, w.path, pcm)
	}
	return w.path, w.format.Create(ctx, w.path, pcm)
}

// nextPartition returns dir/stem(N).ext for the lowest unused N at or after
// the session counter. Indexes are zero based and strictly increasing.
func (w *diskWriter) nextPartition() string {
	dir := filepath.Dir(w.path)
	ext := filepath.Ext(w.path)
	stem := strings.TrimSuffix(filepath.Base(w.path), ext)
	for {
		candidate := filepath.Join(dir, stem+"("+strconv.Itoa(w.next)+")"+ext)
		w.next++
		if !fileExists(candidate) {
			return candidate
		}
		w.log.Debug("partition exists, skipping", logger.String("path", candidate))
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
