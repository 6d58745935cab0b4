// conf/defaults.go default values for settings
package conf

import (
	"time"

	"github.com/spf13/viper"

	"github.com/tphakala/longrec/internal/logger"
)

// Defaults shared with the recorder when settings are built in code.
const (
	DefaultBlockLength     = 0.05
	DefaultCheckInterval   = 0.05
	DefaultSampleRate      = 48000
	DefaultMemoryThreshold = "64MB"
	DefaultFormat          = "wav"
)

// setDefaultConfig registers default values for every configuration key.
func setDefaultConfig(v *viper.Viper) {
	v.SetDefault("debug", false)

	v.SetDefault("audio.source", "")
	v.SetDefault("audio.backend", "")
	v.SetDefault("audio.samplerate", 0)
	v.SetDefault("audio.blocklength", DefaultBlockLength)
	v.SetDefault("audio.channels", 1)
	v.SetDefault("audio.monitor", false)

	v.SetDefault("recorder.memorythreshold", DefaultMemoryThreshold)
	v.SetDefault("recorder.checkinterval", DefaultCheckInterval)
	v.SetDefault("recorder.partition", false)
	v.SetDefault("recorder.defaultformat", DefaultFormat)
	v.SetDefault("recorder.formats", []string{"flac", "mp3", "ogg", "opus", "aac"})
	v.SetDefault("recorder.ffmpegpath", "")
	v.SetDefault("recorder.bitrate", "96k")
	v.SetDefault("recorder.outputdir", "recordings")
	v.SetDefault("recorder.maxduration", time.Duration(0))

	v.SetDefault("logging.default_level", logger.DefaultLogLevel)
	v.SetDefault("logging.timezone", "Local")
	v.SetDefault("logging.console.enabled", logger.DefaultConsoleEnabled)
	v.SetDefault("logging.console.level", logger.DefaultLogLevel)
	v.SetDefault("logging.file_output.enabled", logger.DefaultFileEnabled)
	v.SetDefault("logging.file_output.path", logger.DefaultLogPath)
	v.SetDefault("logging.file_output.level", logger.DefaultLogLevel)
	v.SetDefault("logging.file_output.max_size", logger.DefaultMaxSize)
	v.SetDefault("logging.file_output.max_age", logger.DefaultMaxAge)
	v.SetDefault("logging.file_output.max_rotated_files", logger.DefaultMaxRotatedFiles)
	v.SetDefault("logging.file_output.compress", logger.DefaultCompressLogs)

	v.SetDefault("webserver.enabled", true)
	v.SetDefault("webserver.listen", "127.0.0.1:8080")
	v.SetDefault("webserver.apitoken", "")

	v.SetDefault("metrics.enabled", true)

	v.SetDefault("catalog.enabled", false)
	v.SetDefault("catalog.type", "sqlite")
	v.SetDefault("catalog.sqlite.path", "longrec.db")
	v.SetDefault("catalog.mysql.host", "localhost")
	v.SetDefault("catalog.mysql.port", "3306")
	v.SetDefault("catalog.mysql.database", "longrec")

	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.topic", "longrec")
	v.SetDefault("mqtt.clientid", "")
	v.SetDefault("mqtt.retain", false)

	v.SetDefault("notify.enabled", false)
	v.SetDefault("notify.urls", []string{})
	v.SetDefault("notify.timeout", 10*time.Second)

	v.SetDefault("sentry.enabled", false)
	v.SetDefault("sentry.dsn", "")
}
