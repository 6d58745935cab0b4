package audiofile

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-audio/wav"
	"github.com/tphakala/flac"

	"github.com/tphakala/longrec/internal/errors"
)

// Info describes an audio file on disk.
type Info struct {
	Format     string
	SampleRate int
	Channels   int
	BitDepth   int
	Frames     int64
}

// Duration returns the playback length.
func (i Info) Duration() time.Duration {
	if i.SampleRate <= 0 {
		return 0
	}
	return time.Duration(i.Frames) * time.Second / time.Duration(i.SampleRate)
}

// ReadInfo reads the header of a WAV or FLAC file.
func ReadInfo(path string) (Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return Info{}, fileError(err, path, "open_for_info")
	}
	defer f.Close()

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".wav":
		return readWAVInfo(f, path)
	case ".flac":
		return readFLACInfo(f, path)
	default:
		return Info{}, errors.Newf("cannot read header of %q files", ext).
			Component(componentName).
			Category(errors.CategoryFormat).
			FileContext(path).
			Build()
	}
}

func readWAVInfo(f *os.File, path string) (Info, error) {
	dec := wav.NewDecoder(f)
	dec.ReadInfo()
	if dec.Err() != nil || dec.NumChans == 0 {
		return Info{}, formatError(path, "invalid wav header")
	}
	if err := dec.FwdToPCM(); err != nil || dec.PCMChunk == nil {
		return Info{}, formatError(path, "wav data chunk not found")
	}

	info := Info{
		Format:     "wav",
		SampleRate: int(dec.SampleRate),
		Channels:   int(dec.NumChans),
		BitDepth:   int(dec.BitDepth),
	}
	if frameBytes := int64(info.Channels) * int64(info.BitDepth/8); frameBytes > 0 {
		info.Frames = int64(dec.PCMSize) / frameBytes
	}
	return info, nil
}

func readFLACInfo(f *os.File, path string) (Info, error) {
	dec, err := flac.NewDecoder(f)
	if err != nil {
		return Info{}, errors.New(err).
			Component(componentName).
			Category(errors.CategoryFormat).
			FileContext(path).
			Context("operation", "decode_flac_header").
			Build()
	}
	return Info{
		Format:     "flac",
		SampleRate: dec.SampleRate,
		Channels:   dec.NChannels,
		BitDepth:   dec.BitsPerSample,
		Frames:     int64(dec.TotalSamples),
	}, nil
}

func formatError(path, msg string) error {
	return errors.Newf("%s", msg).
		Component(componentName).
		Category(errors.CategoryFormat).
		FileContext(path).
		Build()
}
