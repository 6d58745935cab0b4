package recorder

import (
	"fmt"

	"github.com/tphakala/longrec/internal/errors"
)

const componentName = "recorder"

var (
	// ErrAlreadyExists is returned when the fallback-suffixed target path
	// is already taken.
	ErrAlreadyExists = errors.NewStd("recording file already exists")

	// ErrDevice is returned when the audio stream cannot be opened or started.
	ErrDevice = errors.NewStd("audio device error")
)

func deviceError(err error, op string) error {
	return errors.New(fmt.Errorf("%w: %w", ErrDevice, err)).
		Component(componentName).
		Category(errors.CategoryAudioDevice).
		Context("operation", op).
		Build()
}
