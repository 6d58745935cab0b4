package audiodev

import (
	"sync/atomic"

	"github.com/gen2brain/malgo"

	"github.com/tphakala/longrec/internal/conf"
	"github.com/tphakala/longrec/internal/errors"
	"github.com/tphakala/longrec/internal/logger"
	"github.com/tphakala/longrec/internal/recorder"
)

const fallbackSampleRate = conf.DefaultSampleRate

// Driver opens malgo streams on one device, resolved when the driver is
// created.
type Driver struct {
	backend string
	device  Device
	desc    recorder.DeviceDescriptor
	log     logger.Logger
}

// New resolves settings.Source to a capture device and reads its native
// format. Failing to find a device is fatal.
func New(settings conf.AudioSettings, log logger.Logger) (*Driver, error) {
	ctx, err := initContext(settings.Backend)
	if err != nil {
		return nil, err
	}
	defer releaseContext(ctx)

	infos, err := ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, errors.New(err).
			Component(componentName).
			Category(errors.CategoryAudioDevice).
			Context("operation", "enumerate_devices").
			Build()
	}

	dev, err := selectDevice(toDevices(infos), settings.Source)
	if err != nil {
		return nil, err
	}

	// Devices does not always report native formats, ask for them directly.
	var formats []malgo.DataFormat
	if full, err := ctx.DeviceInfo(malgo.Capture, infos[dev.Index].ID, malgo.Shared); err == nil {
		formats = full.Formats[:min(int(full.FormatCount), len(full.Formats))]
	} else {
		log.Debug("native formats unavailable", logger.String("device", dev.Name), logger.Error(err))
	}

	d := &Driver{
		backend: settings.Backend,
		device:  dev,
		desc:    describe(dev, formats, settings),
		log:     log,
	}
	log.Info("audio device resolved",
		logger.String("device", dev.Name),
		logger.String("id", dev.ID),
		logger.Int("sample_rate", d.desc.SampleRate),
		logger.Int("channels", d.desc.Channels))
	return d, nil
}

// describe builds the descriptor for dev. The configured rate wins over the
// device's native rate. Capture is limited to one channel.
func describe(dev Device, formats []malgo.DataFormat, settings conf.AudioSettings) recorder.DeviceDescriptor {
	rate := settings.SampleRate
	maxChannels := 0
	for _, f := range formats {
		if rate == 0 && f.SampleRate > 0 {
			rate = int(f.SampleRate)
		}
		maxChannels = max(maxChannels, int(f.Channels))
	}
	if rate == 0 {
		rate = fallbackSampleRate
	}
	// miniaudio reports 0 channels when any count is accepted
	if maxChannels == 0 {
		maxChannels = 1
	}

	return recorder.DeviceDescriptor{
		ID:            dev.ID,
		Name:          dev.Name,
		SampleRate:    rate,
		Channels:      min(maxChannels, 1),
		DefaultFormat: conf.DefaultFormat,
	}
}

// Descriptor implements recorder.Driver.
func (d *Driver) Descriptor() recorder.DeviceDescriptor {
	return d.desc
}

// Open implements recorder.Driver. Samples are requested as signed 16-bit
// so malgo performs any format conversion. A monitor stream is duplex and
// plays back on the default output device.
func (d *Driver) Open(cfg recorder.StreamConfig, cb recorder.CaptureFunc) (recorder.Stream, error) {
	ctx, err := initContext(d.backend)
	if err != nil {
		return nil, err
	}

	// re-resolve the device id, it is only valid for the context that listed it
	infos, err := ctx.Devices(malgo.Capture)
	if err != nil {
		releaseContext(ctx)
		return nil, errors.New(err).
			Component(componentName).
			Category(errors.CategoryAudioDevice).
			Context("operation", "enumerate_devices").
			Build()
	}
	dev, ok := findDevice(toDevices(infos), d.device)
	if !ok {
		releaseContext(ctx)
		return nil, errors.Newf("capture device %q is gone", d.device.Name).
			Component(componentName).
			Category(errors.CategoryAudioDevice).
			Context("operation", "open_stream").
			Build()
	}

	kind := malgo.Capture
	if cfg.Monitor {
		kind = malgo.Duplex
	}
	devCfg := malgo.DefaultDeviceConfig(kind)
	devCfg.Capture.Format = malgo.FormatS16
	devCfg.Capture.Channels = uint32(cfg.Channels)
	devCfg.Capture.DeviceID = infos[dev.Index].ID.Pointer()
	if cfg.Monitor {
		devCfg.Playback.Format = malgo.FormatS16
		devCfg.Playback.Channels = uint32(cfg.Channels)
	}
	devCfg.SampleRate = uint32(cfg.SampleRate)
	devCfg.PeriodSizeInFrames = uint32(cfg.BlockFrames)
	devCfg.Alsa.NoMMap = 1

	s := &stream{ctx: ctx, log: d.log}
	callbacks := malgo.DeviceCallbacks{
		Data: func(out, in []byte, frames uint32) {
			cb(out, in, int(frames), 0)
		},
		Stop: s.onStop,
	}

	device, err := malgo.InitDevice(ctx.Context, devCfg, callbacks)
	if err != nil {
		releaseContext(ctx)
		return nil, errors.New(err).
			Component(componentName).
			Category(errors.CategoryAudioDevice).
			Context("operation", "init_device").
			Context("device", dev.Name).
			Build()
	}
	s.device = device

	if got := int(device.SampleRate()); got != cfg.SampleRate {
		d.log.Warn("device runs at a different rate, malgo resamples",
			logger.Int("requested", cfg.SampleRate),
			logger.Int("device", got))
	}
	return s, nil
}

// findDevice looks want up by id, then by name.
func findDevice(devices []Device, want Device) (Device, bool) {
	for _, d := range devices {
		if d.ID == want.ID {
			return d, true
		}
	}
	for _, d := range devices {
		if d.Name == want.Name {
			return d, true
		}
	}
	return Device{}, false
}

type stream struct {
	ctx    *malgo.AllocatedContext
	device *malgo.Device
	log    logger.Logger

	stopping atomic.Bool
	closed   atomic.Bool
}

func (s *stream) Start() error {
	if err := s.device.Start(); err != nil {
		return errors.New(err).
			Component(componentName).
			Category(errors.CategoryAudioDevice).
			Context("operation", "start_device").
			Build()
	}
	return nil
}

// Stop blocks until the data callback has returned for the last time.
func (s *stream) Stop() error {
	if !s.stopping.CompareAndSwap(false, true) {
		return nil
	}
	if err := s.device.Stop(); err != nil {
		return errors.New(err).
			Component(componentName).
			Category(errors.CategoryAudioDevice).
			Context("operation", "stop_device").
			Build()
	}
	return nil
}

func (s *stream) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.device.Uninit()
	releaseContext(s.ctx)
	return nil
}

// onStop runs on the miniaudio thread when the device stops, including
// when it is unplugged.
func (s *stream) onStop() {
	if !s.stopping.Load() {
		s.log.Warn("audio device stopped unexpectedly")
	}
}
