// conf/validate.go

package conf

import (
	"fmt"
	"net"
	"net/url"
	"slices"
	"strings"
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

// KnownFormats lists the container names a recording suffix may resolve to.
var KnownFormats = []string{"wav", "flac", "mp3", "ogg", "opus", "aac"}

// ValidateSettings validates the entire Settings struct
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	ve.Errors = append(ve.Errors, validateAudioSettings(&settings.Audio)...)
	ve.Errors = append(ve.Errors, validateRecorderSettings(&settings.Recorder)...)
	ve.Errors = append(ve.Errors, validateWebServerSettings(&settings.WebServer)...)
	ve.Errors = append(ve.Errors, validateCatalogSettings(&settings.Catalog)...)
	ve.Errors = append(ve.Errors, validateMQTTSettings(&settings.MQTT)...)
	ve.Errors = append(ve.Errors, validateNotifySettings(&settings.Notify)...)

	if settings.Sentry.Enabled && settings.Sentry.DSN == "" {
		ve.Errors = append(ve.Errors, "sentry.dsn is required when sentry is enabled")
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validateAudioSettings(a *AudioSettings) []string {
	var errs []string
	if a.BlockLength <= 0 || a.BlockLength > 1 {
		errs = append(errs, fmt.Sprintf("audio.blocklength must be in (0, 1] seconds, got %v", a.BlockLength))
	}
	if a.SampleRate < 0 {
		errs = append(errs, fmt.Sprintf("audio.samplerate must not be negative, got %d", a.SampleRate))
	}
	if a.Channels < 0 {
		errs = append(errs, fmt.Sprintf("audio.channels must not be negative, got %d", a.Channels))
	}
	switch strings.ToLower(a.Backend) {
	case "", "alsa", "pulse", "wasapi", "coreaudio", "null":
	default:
		errs = append(errs, fmt.Sprintf("audio.backend %q is not supported", a.Backend))
	}
	return errs
}

func validateRecorderSettings(r *RecorderSettings) []string {
	var errs []string
	if _, err := r.ThresholdBytes(); err != nil {
		errs = append(errs, err.Error())
	}
	if r.CheckInterval <= 0 {
		errs = append(errs, fmt.Sprintf("recorder.checkinterval must be positive, got %v", r.CheckInterval))
	}
	if !slices.Contains(KnownFormats, strings.ToLower(r.DefaultFormat)) {
		errs = append(errs, fmt.Sprintf("recorder.defaultformat %q is not one of %v", r.DefaultFormat, KnownFormats))
	}
	for _, f := range r.Formats {
		if !slices.Contains(KnownFormats, strings.ToLower(f)) {
			errs = append(errs, fmt.Sprintf("recorder.formats entry %q is not one of %v", f, KnownFormats))
		}
	}
	if r.MaxDuration < 0 {
		errs = append(errs, "recorder.maxduration must not be negative")
	}
	return errs
}

func validateWebServerSettings(w *WebServerSettings) []string {
	if !w.Enabled {
		return nil
	}
	if _, _, err := net.SplitHostPort(w.Listen); err != nil {
		return []string{fmt.Sprintf("webserver.listen %q is not a host:port address", w.Listen)}
	}
	return nil
}

func validateCatalogSettings(c *CatalogSettings) []string {
	if !c.Enabled {
		return nil
	}
	switch c.Type {
	case "sqlite":
		if c.SQLite.Path == "" {
			return []string{"catalog.sqlite.path is required"}
		}
	case "mysql":
		if c.MySQL.Host == "" || c.MySQL.Database == "" {
			return []string{"catalog.mysql.host and catalog.mysql.database are required"}
		}
	default:
		return []string{fmt.Sprintf("catalog.type must be sqlite or mysql, got %q", c.Type)}
	}
	return nil
}

func validateMQTTSettings(m *MQTTSettings) []string {
	if !m.Enabled {
		return nil
	}
	var errs []string
	if u, err := url.Parse(m.Broker); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Sprintf("mqtt.broker %q must be a URL such as tcp://host:1883", m.Broker))
	}
	if strings.TrimSpace(m.Topic) == "" {
		errs = append(errs, "mqtt.topic is required")
	}
	return errs
}

func validateNotifySettings(n *NotifySettings) []string {
	if !n.Enabled {
		return nil
	}
	if len(n.URLs) == 0 {
		return []string{"notify.urls must contain at least one shoutrrr URL"}
	}
	if n.Timeout <= 0 {
		return []string{"notify.timeout must be positive"}
	}
	return nil
}
