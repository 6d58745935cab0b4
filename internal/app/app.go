// Package app assembles a recorder and its observers from settings. It is
// shared by the record and serve commands.
package app

import (
	"context"
	"time"

	"github.com/tphakala/longrec/internal/audiodev"
	"github.com/tphakala/longrec/internal/audiofile"
	"github.com/tphakala/longrec/internal/catalog"
	"github.com/tphakala/longrec/internal/conf"
	"github.com/tphakala/longrec/internal/diskspace"
	"github.com/tphakala/longrec/internal/errors"
	"github.com/tphakala/longrec/internal/logger"
	"github.com/tphakala/longrec/internal/mqtt"
	"github.com/tphakala/longrec/internal/notify"
	"github.com/tphakala/longrec/internal/observability"
	"github.com/tphakala/longrec/internal/recorder"
)

const mqttConnectTimeout = 10 * time.Second

// App holds a configured recorder and everything it reports to.
type App struct {
	Recorder *recorder.Recorder
	Metrics  *observability.Metrics
	Catalog  *catalog.Catalog // nil unless enabled

	closers []func()
	log     logger.Logger
}

// New opens the audio device and builds the recorder with the observers
// enabled in settings plus extra. Optional integrations that fail to start
// are logged and skipped; device and recorder failures are returned.
func New(ctx context.Context, settings *conf.Settings, extra ...recorder.Observer) (*App, error) {
	log := logger.Global().Module("app")
	a := &App{log: log}

	threshold, err := settings.Recorder.ThresholdBytes()
	if err != nil {
		return nil, errors.New(err).
			Component("app").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if warning, err := conf.MemoryWarning(threshold); err != nil {
		log.Debug("memory check unavailable", logger.Error(err))
	} else if warning != "" {
		log.Warn(warning)
	}

	if warning, err := diskspace.LowSpaceWarning(settings.Recorder.OutputDir, diskspace.MinFree); err != nil {
		log.Debug("disk space check unavailable", logger.Error(err))
	} else if warning != "" {
		log.Warn(warning)
	}

	registry, err := audiofile.DefaultRegistry(audiofile.RegistryOptions{
		DefaultFormat: settings.Recorder.DefaultFormat,
		Formats:       settings.Recorder.Formats,
		FfmpegPath:    conf.ResolveFfmpegPath(settings.Recorder.FfmpegPath),
		Bitrate:       settings.Recorder.Bitrate,
	})
	if err != nil {
		return nil, err
	}

	driver, err := audiodev.New(settings.Audio, logger.Global().Module("audiodev"))
	if err != nil {
		return nil, err
	}

	var rec *recorder.Recorder
	a.Metrics, err = observability.NewMetrics(func() int64 {
		if rec == nil {
			return 0
		}
		return rec.MemoryEstimate()
	})
	if err != nil {
		return nil, err
	}

	observers := []recorder.Observer{
		recorder.NewLogObserver(logger.Global().Module("session")),
		a.Metrics.Recorder,
	}
	observers = append(observers, a.optionalObservers(ctx, settings)...)
	observers = append(observers, extra...)

	opts := recorder.Options{
		BlockLength:   settings.Audio.BlockDuration(),
		CheckInterval: settings.Recorder.CheckDuration(),
		Threshold:     threshold,
		Partition:     settings.Recorder.Partition,
		Monitor:       settings.Audio.Monitor,
		Registry:      registry,
		Observers:     observers,
	}
	rec, err = recorder.New(driver, opts, logger.Global().Module("recorder"))
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Recorder = rec

	desc := rec.Descriptor()
	log.Info("recorder ready",
		logger.String("device", desc.Name),
		logger.Int("sample_rate", desc.SampleRate),
		logger.Int("channels", desc.Channels),
		logger.String("fallback_format", desc.DefaultFormat))
	return a, nil
}

func (a *App) optionalObservers(ctx context.Context, settings *conf.Settings) []recorder.Observer {
	var observers []recorder.Observer

	if settings.Catalog.Enabled {
		c, err := catalog.Open(settings.Catalog, logger.Global().Module("catalog"), a.Metrics.Catalog)
		if err != nil {
			a.log.Error("session catalog disabled", logger.Error(err))
		} else {
			a.Catalog = c
			observers = append(observers, c)
			a.closers = append(a.closers, func() { _ = c.Close() })
		}
	}

	if settings.MQTT.Enabled {
		cfg := mqtt.ConfigFromSettings(settings.MQTT)
		mlog := logger.Global().Module("mqtt")
		client, err := mqtt.NewClient(cfg, mlog, a.Metrics.MQTT)
		if err != nil {
			a.log.Error("mqtt disabled", logger.Error(err))
		} else {
			cctx, cancel := context.WithTimeout(ctx, mqttConnectTimeout)
			if err := client.Connect(cctx); err != nil {
				// paho keeps retrying in the background after a first failure
				a.log.Warn("mqtt broker not reachable yet", logger.Error(err))
			}
			cancel()
			pub := mqtt.NewPublisher(client, cfg, mlog, a.Metrics.MQTT)
			observers = append(observers, pub)
			a.closers = append(a.closers, func() {
				pub.Close()
				client.Disconnect()
			})
		}
	}

	if settings.Notify.Enabled {
		sender, err := notify.NewShoutrrrSender(settings.Notify.URLs, settings.Notify.Timeout)
		if err != nil {
			a.log.Error("notifications disabled", logger.Error(err))
		} else {
			n := notify.New(sender, logger.Global().Module("notify"), a.Metrics.Notification)
			observers = append(observers, n)
			a.closers = append(a.closers, n.Close)
		}
	}

	return observers
}

// Close stops the recorder if needed and shuts integrations down in
// reverse order.
func (a *App) Close() {
	if a.Recorder != nil {
		if err := a.Recorder.Stop(); err != nil {
			a.log.Error("stop on close failed", logger.Error(err))
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
