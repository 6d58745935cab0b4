// Package audiofile writes and inspects recording containers.
//
// WAV is handled natively and is the only format that can grow in place.
// Other containers are encoded by an external ffmpeg process and are
// written once per file.
package audiofile

import (
	"context"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/tphakala/longrec/internal/errors"
)

const (
	componentName = "audiofile"

	// BitDepth is the sample width of every container written by this package.
	BitDepth = 16
)

// PCM is interleaved signed 16-bit audio.
type PCM struct {
	Samples    []int16
	SampleRate int
	Channels   int
}

// Frames returns the number of sample frames in p.
func (p PCM) Frames() int {
	if p.Channels <= 0 {
		return 0
	}
	return len(p.Samples) / p.Channels
}

// Bytes returns the encoded size of the samples.
func (p PCM) Bytes() int64 {
	return int64(len(p.Samples)) * 2
}

// Format writes one container type.
type Format interface {
	// Name is the lower-case container name, e.g. "wav".
	Name() string
	// Ext is the file suffix including the dot.
	Ext() string
	// Appendable reports whether Append can extend an existing file.
	Appendable() bool
	// Create writes pcm to a new file at path, replacing it atomically.
	Create(ctx context.Context, path string, pcm PCM) error
	// Append adds pcm to the end of an existing file.
	Append(ctx context.Context, path string, pcm PCM) error
}

// Registry maps file suffixes to formats.
type Registry struct {
	mu       sync.RWMutex
	formats  map[string]Format
	fallback Format
}

// NewRegistry creates a registry whose fallback is also registered.
func NewRegistry(fallback Format, formats ...Format) *Registry {
	r := &Registry{
		formats:  make(map[string]Format),
		fallback: fallback,
	}
	r.Register(fallback)
	for _, f := range formats {
		r.Register(f)
	}
	return r
}

// Register adds f, replacing any format with the same name.
func (r *Registry) Register(f Format) {
	if f == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.formats[f.Name()] = f
}

// Lookup resolves a suffix such as ".WAV" or "flac", case-insensitively.
func (r *Registry) Lookup(ext string) (Format, bool) {
	name := strings.ToLower(strings.TrimPrefix(ext, "."))
	if name == "" {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.formats[name]
	return f, ok
}

// ForPath resolves the format for path's suffix.
func (r *Registry) ForPath(path string) (Format, bool) {
	return r.Lookup(filepath.Ext(path))
}

// Fallback returns the format used for unsupported suffixes.
func (r *Registry) Fallback() Format {
	return r.fallback
}

// Names returns the registered format names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.formats))
	for n := range r.formats {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// RegistryOptions configures DefaultRegistry.
type RegistryOptions struct {
	DefaultFormat string   // fallback container name
	Formats       []string // ffmpeg-backed formats to register
	FfmpegPath    string   // resolved ffmpeg binary, empty when unavailable
	Bitrate       string   // bitrate for lossy formats
}

// DefaultRegistry builds the WAV registry and adds the requested ffmpeg
// formats when ffmpeg is usable.
func DefaultRegistry(opts RegistryOptions) (*Registry, error) {
	wav := NewWAVFormat()

	var extra []Format
	ffmpegOK := opts.FfmpegPath != "" && FFmpegAvailable(opts.FfmpegPath)
	if ffmpegOK {
		for _, name := range opts.Formats {
			f, err := NewFFmpegFormat(name, opts.FfmpegPath, opts.Bitrate)
			if err != nil {
				return nil, err
			}
			extra = append(extra, f)
		}
	}

	var fallback Format = wav
	if name := strings.ToLower(opts.DefaultFormat); name != "" && name != wav.Name() {
		found := false
		for _, f := range extra {
			if f.Name() == name {
				fallback, found = f, true
				break
			}
		}
		if !found {
			return nil, errors.Newf("default format %q is not available", opts.DefaultFormat).
				Component(componentName).
				Category(errors.CategoryConfiguration).
				Context("ffmpeg_available", ffmpegOK).
				Build()
		}
	}

	r := NewRegistry(fallback, extra...)
	r.Register(wav)
	return r, nil
}
