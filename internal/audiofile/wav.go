package audiofile

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/tphakala/longrec/internal/errors"
)

const (
	wavPCMFormat    = 1
	riffSizeOffset  = 4
	chunkHeaderSize = 8
)

// WAVFormat writes 16-bit PCM WAV files and can append to them.
type WAVFormat struct{}

// NewWAVFormat returns the WAV container.
func NewWAVFormat() *WAVFormat { return &WAVFormat{} }

func (*WAVFormat) Name() string     { return "wav" }
func (*WAVFormat) Ext() string      { return ".wav" }
func (*WAVFormat) Appendable() bool { return true }

// Create encodes pcm into a temporary file next to path and renames it
// into place.
func (w *WAVFormat) Create(_ context.Context, path string, pcm PCM) error {
	if err := validatePCM(pcm); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".longrec-*.wav.tmp")
	if err != nil {
		return fileError(err, path, "create_temp")
	}
	tmpPath := tmp.Name()
	defer func() {
		// no-op after a successful rename
		_ = os.Remove(tmpPath)
	}()

	enc := wav.NewEncoder(tmp, pcm.SampleRate, BitDepth, pcm.Channels, wavPCMFormat)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: pcm.Channels, SampleRate: pcm.SampleRate},
		Data:           toInts(pcm.Samples),
		SourceBitDepth: BitDepth,
	}
	if err := enc.Write(buf); err != nil {
		_ = tmp.Close()
		return fileError(err, path, "encode_wav")
	}
	if err := enc.Close(); err != nil {
		_ = tmp.Close()
		return fileError(err, path, "finalize_wav")
	}
	if err := tmp.Chmod(0o644); err != nil {
		_ = tmp.Close()
		return fileError(err, path, "chmod_temp")
	}
	if err := tmp.Close(); err != nil {
		return fileError(err, path, "close_temp")
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fileError(err, path, "rename_wav")
	}
	return nil
}

// Append writes pcm after the existing data chunk and patches the RIFF and
// data sizes. The file must be 16-bit PCM with the same rate and channel
// count, and its data chunk must be the last chunk.
func (w *WAVFormat) Append(_ context.Context, path string, pcm PCM) error {
	if err := validatePCM(pcm); err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return fileError(err, path, "open_for_append")
	}
	defer f.Close()

	dataStart, dataSize, err := locateAppendableData(f, pcm)
	if err != nil {
		return errors.New(err).
			Component(componentName).
			Category(errors.CategoryFormat).
			FileContext(path).
			Context("operation", "append_wav").
			Build()
	}

	newDataSize := dataSize + pcm.Bytes()
	if newDataSize > math.MaxUint32-chunkHeaderSize-riffSizeOffset {
		return errors.Newf("wav data chunk would exceed 4 GiB").
			Component(componentName).
			Category(errors.CategoryFormat).
			FileContext(path).
			Context("operation", "append_wav").
			Build()
	}

	if _, err := f.WriteAt(encodeS16LE(pcm.Samples), dataStart+dataSize); err != nil {
		return fileError(err, path, "write_samples")
	}

	var size [4]byte
	binary.LittleEndian.PutUint32(size[:], uint32(newDataSize))
	if _, err := f.WriteAt(size[:], dataStart-4); err != nil {
		return fileError(err, path, "patch_data_size")
	}
	binary.LittleEndian.PutUint32(size[:], uint32(dataStart+newDataSize-chunkHeaderSize))
	if _, err := f.WriteAt(size[:], riffSizeOffset); err != nil {
		return fileError(err, path, "patch_riff_size")
	}

	if err := f.Sync(); err != nil {
		return fileError(err, path, "sync")
	}
	return nil
}

// locateAppendableData validates the header of f against pcm and returns
// the offset and size of its data chunk.
func locateAppendableData(f *os.File, pcm PCM) (dataStart, dataSize int64, err error) {
	dec := wav.NewDecoder(f)
	dec.ReadInfo()
	if err := dec.Err(); err != nil {
		return 0, 0, fmt.Errorf("not a readable wav file: %w", err)
	}

	switch {
	case dec.WavAudioFormat != wavPCMFormat:
		return 0, 0, fmt.Errorf("wav audio format %d is not PCM", dec.WavAudioFormat)
	case int(dec.BitDepth) != BitDepth:
		return 0, 0, fmt.Errorf("wav bit depth %d, want %d", dec.BitDepth, BitDepth)
	case int(dec.SampleRate) != pcm.SampleRate:
		return 0, 0, fmt.Errorf("wav sample rate %d, recording uses %d", dec.SampleRate, pcm.SampleRate)
	case int(dec.NumChans) != pcm.Channels:
		return 0, 0, fmt.Errorf("wav has %d channels, recording uses %d", dec.NumChans, pcm.Channels)
	}

	if err := dec.FwdToPCM(); err != nil {
		return 0, 0, fmt.Errorf("wav data chunk not found: %w", err)
	}
	if dec.Err() != nil || dec.PCMChunk == nil {
		return 0, 0, fmt.Errorf("wav data chunk not found")
	}

	dataStart, err = f.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, 0, err
	}
	info, err := f.Stat()
	if err != nil {
		return 0, 0, err
	}
	dataSize = int64(dec.PCMSize)
	if dataStart+dataSize != info.Size() {
		return 0, 0, fmt.Errorf("wav data chunk is not the last chunk (data ends at %d, file size %d)",
			dataStart+dataSize, info.Size())
	}
	return dataStart, dataSize, nil
}

func validatePCM(pcm PCM) error {
	if pcm.SampleRate <= 0 || pcm.Channels <= 0 || len(pcm.Samples)%pcm.Channels != 0 {
		return errors.Newf("invalid pcm buffer: rate %d, channels %d, samples %d",
			pcm.SampleRate, pcm.Channels, len(pcm.Samples)).
			Component(componentName).
			Category(errors.CategoryValidation).
			Build()
	}
	return nil
}

func toInts(samples []int16) []int {
	out := make([]int, len(samples))
	for i, s := range samples {
		out[i] = int(s)
	}
	return out
}

func fileError(err error, path, op string) error {
	return errors.New(err).
		Component(componentName).
		Category(errors.CategoryFileIO).
		FileContext(path).
		Context("operation", op).
		Build()
}
