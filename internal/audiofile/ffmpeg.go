package audiofile

import (
	"bytes"
	"context"
	"encoding/binary"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/tphakala/longrec/internal/errors"
)

const (
	ffmpegTimeout    = 5 * time.Minute
	probeCacheTTL    = 5 * time.Minute
	probeTimeout     = 5 * time.Second
	maxStderrInError = 512
)

type ffmpegSpec struct {
	codec     string
	container string
	lossy     bool
	extraArgs []string
	maxKbps   int
}

var ffmpegSpecs = map[string]ffmpegSpec{
	"flac": {codec: "flac", container: "flac"},
	"mp3":  {codec: "libmp3lame", container: "mp3", lossy: true, maxKbps: 320},
	"ogg":  {codec: "libvorbis", container: "ogg", lossy: true, maxKbps: 500},
	"opus": {codec: "libopus", container: "opus", lossy: true, maxKbps: 256},
	"aac":  {codec: "aac", container: "mp4", lossy: true, maxKbps: 320, extraArgs: []string{"-movflags", "+faststart"}},
}

// probeCache remembers whether an ffmpeg binary runs. Expired entries are
// dropped on read, so no janitor goroutine is started.
var probeCache = cache.New(probeCacheTTL, 0)

// FFmpegAvailable reports whether ffmpegPath runs "-version" successfully.
// Results are cached per path.
func FFmpegAvailable(ffmpegPath string) bool {
	if v, ok := probeCache.Get(ffmpegPath); ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()
	//nolint:gosec // G204: path comes from configuration or exec.LookPath
	err := exec.CommandContext(ctx, ffmpegPath, "-version").Run()

	ok := err == nil
	probeCache.Set(ffmpegPath, ok, cache.DefaultExpiration)
	return ok
}

// FFmpegFormat encodes PCM through an ffmpeg subprocess. Files are written
// once and cannot be appended to.
type FFmpegFormat struct {
	name       string
	spec       ffmpegSpec
	ffmpegPath string
	bitrate    string
}

// NewFFmpegFormat returns the ffmpeg encoder for a container name.
func NewFFmpegFormat(name, ffmpegPath, bitrate string) (*FFmpegFormat, error) {
	spec, ok := ffmpegSpecs[name]
	if !ok {
		return nil, errors.Newf("unsupported ffmpeg format %q", name).
			Component(componentName).
			Category(errors.CategoryConfiguration).
			Build()
	}
	return &FFmpegFormat{
		name:       name,
		spec:       spec,
		ffmpegPath: ffmpegPath,
		bitrate:    clampBitrate(bitrate, spec.maxKbps),
	}, nil
}

func (f *FFmpegFormat) Name() string     { return f.name }
func (f *FFmpegFormat) Ext() string      { return "." + f.name }
func (f *FFmpegFormat) Appendable() bool { return false }

// Append always fails: compressed containers are written in one pass.
func (f *FFmpegFormat) Append(_ context.Context, path string, _ PCM) error {
	return errors.Newf("%s files cannot be appended to, enable partitioning", f.name).
		Component(componentName).
		Category(errors.CategoryFormat).
		FileContext(path).
		Context("operation", "append_"+f.name).
		Build()
}

// Create pipes pcm into ffmpeg, writing to a temporary file that is renamed
// to path when encoding succeeds.
func (f *FFmpegFormat) Create(ctx context.Context, path string, pcm PCM) error {
	if err := validatePCM(pcm); err != nil {
		return err
	}

	tmpPath := filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+".tmp")
	defer func() { _ = os.Remove(tmpPath) }()

	ctx, cancel := context.WithTimeout(ctx, ffmpegTimeout)
	defer cancel()

	//nolint:gosec // G204: binary path comes from configuration or exec.LookPath
	cmd := exec.CommandContext(ctx, f.ffmpegPath, f.buildArgs(pcm, tmpPath)...)
	cmd.Stdin = bytes.NewReader(encodeS16LE(pcm.Samples))
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Run(); err != nil {
		return errors.New(err).
			Component(componentName).
			Category(errors.CategoryCommand).
			FileContext(path).
			Timing("ffmpeg_encode_"+f.name, time.Since(start)).
			Context("stderr", tail(stderr.String(), maxStderrInError)).
			Build()
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fileError(err, path, "rename_"+f.name)
	}
	return nil
}

func (f *FFmpegFormat) buildArgs(pcm PCM, outputPath string) []string {
	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-f", "s16le",
		"-ar", strconv.Itoa(pcm.SampleRate),
		"-ac", strconv.Itoa(pcm.Channels),
		"-i", "-",
		"-c:a", f.spec.codec,
	}
	if f.spec.lossy && f.bitrate != "" {
		args = append(args, "-b:a", f.bitrate)
	}
	args = append(args, f.spec.extraArgs...)
	return append(args, "-f", f.spec.container, "-y", outputPath)
}

// clampBitrate caps "NNNk" bitrates at the codec maximum.
func clampBitrate(bitrate string, maxKbps int) string {
	if maxKbps == 0 || len(bitrate) < 2 || bitrate[len(bitrate)-1] != 'k' {
		return bitrate
	}
	n, err := strconv.Atoi(bitrate[:len(bitrate)-1])
	if err != nil || n <= maxKbps {
		return bitrate
	}
	return strconv.Itoa(maxKbps) + "k"
}

func encodeS16LE(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
