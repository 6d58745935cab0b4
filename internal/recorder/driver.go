package recorder

// DeviceDescriptor is the capture device as resolved once at construction.
// DefaultFormat names the fallback container; New replaces the driver's
// value with the name of Options.Registry's fallback.
type DeviceDescriptor struct {
	ID            string
	Name          string
	SampleRate    int
	Channels      int // at most one input channel
	DefaultFormat string
}

// StreamConfig describes the stream the recorder asks the driver to open.
type StreamConfig struct {
	SampleRate  int
	Channels    int
	BlockFrames int
	// Monitor opens a duplex stream whose output the callback fills with
	// the captured input.
	Monitor bool
}

// StreamStatus carries driver status flags for a single callback.
type StreamStatus uint32

const (
	StatusInputOverflow StreamStatus = 1 << iota
	StatusOutputUnderflow
	StatusFrameMismatch
)

// String lists the set flags.
func (s StreamStatus) String() string {
	if s == 0 {
		return "ok"
	}
	out := ""
	add := func(name string) {
		if out != "" {
			out += "|"
		}
		out += name
	}
	if s&StatusInputOverflow != 0 {
		add("input_overflow")
	}
	if s&StatusOutputUnderflow != 0 {
		add("output_underflow")
	}
	if s&StatusFrameMismatch != 0 {
		add("frame_mismatch")
	}
	return out
}

// CaptureFunc is invoked by the driver on its real-time thread. in holds
// interleaved signed 16-bit little-endian samples. out is nil unless the
// stream was opened with Monitor and must be filled before returning.
type CaptureFunc func(out, in []byte, frames int, status StreamStatus)

// Stream is an opened audio stream.
type Stream interface {
	Start() error
	Stop() error
	Close() error
}

// Driver opens capture streams on one resolved device.
type Driver interface {
	Descriptor() DeviceDescriptor
	Open(cfg StreamConfig, cb CaptureFunc) (Stream, error)
}
