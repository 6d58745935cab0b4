// Package audiodev opens capture devices through miniaudio (malgo).
package audiodev

import (
	"encoding/hex"
	"runtime"
	"strings"

	"github.com/gen2brain/malgo"

	"github.com/tphakala/longrec/internal/errors"
)

const componentName = "audiodev"

// Device is a capture device as listed by Enumerate.
type Device struct {
	Index   int
	Name    string
	ID      string // decoded backend id, e.g. ":1,0" on ALSA
	Default bool
}

// backendFor maps a configured backend name to malgo. An empty name picks
// the platform default.
func backendFor(name string) (malgo.Backend, error) {
	switch strings.ToLower(name) {
	case "alsa":
		return malgo.BackendAlsa, nil
	case "pulse":
		return malgo.BackendPulseaudio, nil
	case "wasapi":
		return malgo.BackendWasapi, nil
	case "coreaudio":
		return malgo.BackendCoreaudio, nil
	case "null":
		return malgo.BackendNull, nil
	case "":
	default:
		return malgo.BackendNull, errors.Newf("unknown audio backend %q", name).
			Component(componentName).
			Category(errors.CategoryConfiguration).
			Build()
	}

	switch runtime.GOOS {
	case "linux":
		return malgo.BackendAlsa, nil
	case "windows":
		return malgo.BackendWasapi, nil
	case "darwin":
		return malgo.BackendCoreaudio, nil
	default:
		return malgo.BackendNull, errors.Newf("no audio backend for %s", runtime.GOOS).
			Component(componentName).
			Category(errors.CategoryAudioDevice).
			Context("os", runtime.GOOS).
			Build()
	}
}

func initContext(backendName string) (*malgo.AllocatedContext, error) {
	backend, err := backendFor(backendName)
	if err != nil {
		return nil, err
	}
	ctx, err := malgo.InitContext([]malgo.Backend{backend}, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, errors.New(err).
			Component(componentName).
			Category(errors.CategoryAudioDevice).
			Context("operation", "init_context").
			Context("backend", backendName).
			Build()
	}
	return ctx, nil
}

func releaseContext(ctx *malgo.AllocatedContext) {
	_ = ctx.Uninit()
	ctx.Free()
}

// Enumerate lists capture devices on the given backend.
func Enumerate(backendName string) ([]Device, error) {
	ctx, err := initContext(backendName)
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
	return toDevices(infos), nil
}

func toDevices(infos []malgo.DeviceInfo) []Device {
	devices := make([]Device, 0, len(infos))
	for i := range infos {
		// the ALSA null plugin
		if strings.Contains(infos[i].Name(), "Discard all samples") {
			continue
		}
		id, err := hexToASCII(infos[i].ID.String())
		if err != nil {
			id = infos[i].ID.String()
		}
		devices = append(devices, Device{
			Index:   i,
			Name:    infos[i].Name(),
			ID:      id,
			Default: infos[i].IsDefault == 1,
		})
	}
	return devices
}

// selectDevice picks the device for source. An empty source, "default" or
// "sysdefault" selects the system default, falling back to the first
// device. Otherwise an exact name wins over a decoded id, which wins over a
// name substring.
func selectDevice(devices []Device, source string) (Device, error) {
	if len(devices) == 0 {
		return Device{}, errors.Newf("no capture devices found").
			Component(componentName).
			Category(errors.CategoryAudioDevice).
			Build()
	}

	switch source {
	case "", "default", "sysdefault":
		for _, d := range devices {
			if d.Default {
				return d, nil
			}
		}
		return devices[0], nil
	}

	for _, d := range devices {
		if d.Name == source {
			return d, nil
		}
	}
	for _, d := range devices {
		if d.ID == source {
			return d, nil
		}
	}
	for _, d := range devices {
		if strings.Contains(d.Name, source) {
			return d, nil
		}
	}

	return Device{}, errors.Newf("no capture device matches %q", source).
		Component(componentName).
		Category(errors.CategoryAudioDevice).
		Context("available_devices", len(devices)).
		Build()
}

// hexToASCII decodes the hex form malgo uses for device ids.
func hexToASCII(hexStr string) (string, error) {
	b, err := hex.DecodeString(hexStr)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(b), "\x00"), nil
}
