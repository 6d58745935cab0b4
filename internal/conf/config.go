// config.go: settings struct for longrec and the functions to load and save it.
package conf

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/tphakala/longrec/internal/errors"
	"github.com/tphakala/longrec/internal/logger"
)

//go:embed config.yaml
var configFiles embed.FS

// AudioSettings selects and configures the capture device.
type AudioSettings struct {
	Source      string  `yaml:"source"`      // device name or id substring, empty for system default
	Backend     string  `yaml:"backend"`     // alsa, pulse, wasapi, coreaudio, null; empty for auto
	SampleRate  int     `yaml:"samplerate"`  // 0 uses the device native rate
	BlockLength float64 `yaml:"blocklength"` // seconds per captured block
	Channels    int     `yaml:"channels"`    // requested input channels, clamped to 1
	Monitor     bool    `yaml:"monitor"`     // echo input to the default output
}

// RecorderSettings controls buffering and file output.
type RecorderSettings struct {
	MemoryThreshold string        `yaml:"memorythreshold"` // "64MB", "512KiB" or -1 for unbounded
	CheckInterval   float64       `yaml:"checkinterval"`   // seconds between memory checks
	Partition       bool          `yaml:"partition"`       // write each flush to a numbered file
	DefaultFormat   string        `yaml:"defaultformat"`   // fallback container for unknown suffixes
	Formats         []string      `yaml:"formats"`         // ffmpeg-backed formats to enable
	FfmpegPath      string        `yaml:"ffmpegpath"`      // empty to look up ffmpeg in PATH
	Bitrate         string        `yaml:"bitrate"`         // bitrate for lossy ffmpeg formats
	OutputDir       string        `yaml:"outputdir"`       // directory for timestamp-named recordings
	MaxDuration     time.Duration `yaml:"maxduration"`     // 0 records until stopped
}

// WebServerSettings configures the HTTP control API.
type WebServerSettings struct {
	Enabled  bool   `yaml:"enabled"`
	Listen   string `yaml:"listen"`
	APIToken string `yaml:"apitoken"` // bearer token, empty disables auth
}

// MetricsSettings toggles Prometheus metrics.
type MetricsSettings struct {
	Enabled bool `yaml:"enabled"`
}

// SQLiteSettings holds the catalog database file.
type SQLiteSettings struct {
	Path string `yaml:"path"`
}

// MySQLSettings holds MySQL connection parameters.
type MySQLSettings struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	Database string `yaml:"database"`
}

// CatalogSettings configures the session catalog database.
type CatalogSettings struct {
	Enabled bool           `yaml:"enabled"`
	Type    string         `yaml:"type"` // sqlite or mysql
	SQLite  SQLiteSettings `yaml:"sqlite"`
	MySQL   MySQLSettings  `yaml:"mysql"`
}

// MQTTSettings configures event publishing.
type MQTTSettings struct {
	Enabled  bool   `yaml:"enabled"`
	Broker   string `yaml:"broker"`
	Topic    string `yaml:"topic"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	ClientID string `yaml:"clientid"`
	Retain   bool   `yaml:"retain"`
}

// NotifySettings configures shoutrrr notifications.
type NotifySettings struct {
	Enabled bool          `yaml:"enabled"`
	URLs    []string      `yaml:"urls"`
	Timeout time.Duration `yaml:"timeout"`
}

// SentrySettings configures optional error telemetry.
type SentrySettings struct {
	Enabled bool   `yaml:"enabled"`
	DSN     string `yaml:"dsn"`
}

// Settings contains all configuration options for longrec.
type Settings struct {
	Debug     bool                 `yaml:"debug"`
	Audio     AudioSettings        `yaml:"audio"`
	Recorder  RecorderSettings     `yaml:"recorder"`
	Logging   logger.LoggingConfig `yaml:"logging"`
	WebServer WebServerSettings    `yaml:"webserver"`
	Metrics   MetricsSettings      `yaml:"metrics"`
	Catalog   CatalogSettings      `yaml:"catalog"`
	MQTT      MQTTSettings         `yaml:"mqtt"`
	Notify    NotifySettings       `yaml:"notify"`
	Sentry    SentrySettings       `yaml:"sentry"`
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads the configuration file and environment variables into Settings.
// When no config file exists, the embedded default is written to the first
// search path and loaded.
func Load() (*Settings, error) {
	paths, err := GetDefaultConfigPaths()
	if err != nil {
		return nil, err
	}

	settings, err := LoadWith(viper.GetViper(), paths)
	if err != nil {
		return nil, err
	}

	settingsMutex.Lock()
	settingsInstance = settings
	settingsMutex.Unlock()
	return settings, nil
}

// LoadWith loads settings using v and the given search paths.
func LoadWith(v *viper.Viper, configPaths []string) (*Settings, error) {
	if len(configPaths) == 0 {
		return nil, errors.Newf("no configuration search paths").
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if err := initViper(v, configPaths); err != nil {
		return nil, err
	}

	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, errors.New(fmt.Errorf("error unmarshaling config into struct: %w", err)).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Context("operation", "unmarshal").
			Build()
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, errors.New(err).
			Component("conf").
			Category(errors.CategoryValidation).
			Context("operation", "validate").
			Build()
	}
	return settings, nil
}

func initViper(v *viper.Viper, configPaths []string) error {
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	for _, path := range configPaths {
		v.AddConfigPath(path)
	}

	v.SetEnvPrefix("LONGREC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaultConfig(v)

	err := v.ReadInConfig()
	if err == nil {
		return nil
	}
	var notFound viper.ConfigFileNotFoundError
	if errors.As(err, &notFound) {
		return createDefaultConfig(v, filepath.Join(configPaths[0], "config.yaml"))
	}
	return errors.New(fmt.Errorf("fatal error reading config file: %w", err)).
		Component("conf").
		Category(errors.CategoryConfiguration).
		Context("operation", "read_config").
		Build()
}

func createDefaultConfig(v *viper.Viper, configPath string) error {
	data, err := fs.ReadFile(configFiles, "config.yaml")
	if err != nil {
		return errors.New(err).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Context("operation", "read_embedded_config").
			Build()
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return errors.New(fmt.Errorf("error creating directories for config file: %w", err)).
			Component("conf").
			Category(errors.CategoryFileIO).
			FileContext(configPath).
			Build()
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		return errors.New(fmt.Errorf("error writing default config file: %w", err)).
			Component("conf").
			Category(errors.CategoryFileIO).
			FileContext(configPath).
			Build()
	}

	fmt.Fprintln(os.Stderr, "Created default config file at:", configPath)
	return v.ReadInConfig()
}

// GetSettings returns the most recently loaded settings.
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// DumpYAML renders settings as YAML with secrets masked.
func DumpYAML(settings *Settings) ([]byte, error) {
	masked := *settings
	masked.WebServer.APIToken = maskSecret(masked.WebServer.APIToken)
	masked.Catalog.MySQL.Password = maskSecret(masked.Catalog.MySQL.Password)
	masked.MQTT.Password = maskSecret(masked.MQTT.Password)
	masked.Sentry.DSN = maskSecret(masked.Sentry.DSN)
	if len(masked.Notify.URLs) > 0 {
		masked.Notify.URLs = make([]string, len(settings.Notify.URLs))
		for i, u := range settings.Notify.URLs {
			masked.Notify.URLs[i] = logger.RedactSensitiveData(u)
		}
	}

	out, err := yaml.Marshal(&masked)
	if err != nil {
		return nil, errors.New(err).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Context("operation", "marshal_yaml").
			Build()
	}
	return out, nil
}

func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	return "********"
}
