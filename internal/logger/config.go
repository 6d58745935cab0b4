package logger

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	DefaultLevel  string                  `yaml:"default_level" mapstructure:"default_level" json:"default_level"` // default log level for all modules
	Timezone      string                  `yaml:"timezone" mapstructure:"timezone" json:"timezone"`                // "Local", "UTC", or IANA name
	Console       *ConsoleOutput          `yaml:"console" mapstructure:"console" json:"console"`
	FileOutput    *FileOutput             `yaml:"file_output" mapstructure:"file_output" json:"file_output"`
	ModuleOutputs map[string]ModuleOutput `yaml:"modules" mapstructure:"modules" json:"modules"`                   // per-module output files
	ModuleLevels  map[string]string       `yaml:"module_levels" mapstructure:"module_levels" json:"module_levels"` // per-module log levels
}

// ConsoleOutput is human-readable text on stdout.
type ConsoleOutput struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled" json:"enabled"`
	Level   string `yaml:"level" mapstructure:"level" json:"level"`
}

// FileOutput is JSON on a lumberjack-rotated file.
type FileOutput struct {
	Enabled         bool   `yaml:"enabled" mapstructure:"enabled" json:"enabled"`
	Path            string `yaml:"path" mapstructure:"path" json:"path"`
	MaxSize         int    `yaml:"max_size" mapstructure:"max_size" json:"max_size"`                            // MB before rotation
	MaxAge          int    `yaml:"max_age" mapstructure:"max_age" json:"max_age"`                               // days, 0 = no limit
	MaxRotatedFiles int    `yaml:"max_rotated_files" mapstructure:"max_rotated_files" json:"max_rotated_files"` // 0 = no limit
	Compress        bool   `yaml:"compress" mapstructure:"compress" json:"compress"`
	Level           string `yaml:"level" mapstructure:"level" json:"level"`
}

// ModuleOutput routes one module to a dedicated file
type ModuleOutput struct {
	Enabled     bool   `yaml:"enabled" mapstructure:"enabled" json:"enabled"`
	FilePath    string `yaml:"file_path" mapstructure:"file_path" json:"file_path"`
	Level       string `yaml:"level" mapstructure:"level" json:"level"`
	ConsoleAlso bool   `yaml:"console_also" mapstructure:"console_also" json:"console_also"`
	MaxSize     int    `yaml:"max_size" mapstructure:"max_size" json:"max_size"` // 0 = use FileOutput value
	MaxAge      int    `yaml:"max_age" mapstructure:"max_age" json:"max_age"`
}

// Default values for logging configuration, mirrored in conf defaults.
const (
	DefaultLogLevel        = "info"
	DefaultLogPath         = "logs/longrec.log"
	DefaultAccessLogPath   = "logs/access.log"
	DefaultMaxSize         = 100
	DefaultMaxAge          = 30
	DefaultMaxRotatedFiles = 10
	DefaultCompressLogs    = false
	DefaultConsoleEnabled  = true
	DefaultFileEnabled     = false
)

// rotation merges module overrides onto the main file settings.
func (mo ModuleOutput) rotation(base *FileOutput) *FileOutput {
	rot := FileOutput{
		MaxSize:         DefaultMaxSize,
		MaxAge:          DefaultMaxAge,
		MaxRotatedFiles: DefaultMaxRotatedFiles,
	}
	if base != nil {
		rot = *base
	}
	if mo.MaxSize > 0 {
		rot.MaxSize = mo.MaxSize
	}
	if mo.MaxAge > 0 {
		rot.MaxAge = mo.MaxAge
	}
	return &rot
}

// applyConfigDefaults fills nil sections so a config file without a
// logging block still produces console output.
func applyConfigDefaults(cfg *LoggingConfig) {
	if cfg == nil {
		return
	}
	if cfg.DefaultLevel == "" {
		cfg.DefaultLevel = DefaultLogLevel
	}
	if cfg.Console == nil {
		cfg.Console = &ConsoleOutput{
			Enabled: DefaultConsoleEnabled,
			Level:   cfg.DefaultLevel,
		}
	}
	if cfg.FileOutput == nil {
		cfg.FileOutput = &FileOutput{
			Enabled:         DefaultFileEnabled,
			Path:            DefaultLogPath,
			Level:           cfg.DefaultLevel,
			MaxSize:         DefaultMaxSize,
			MaxAge:          DefaultMaxAge,
			MaxRotatedFiles: DefaultMaxRotatedFiles,
			Compress:        DefaultCompressLogs,
		}
	}
	if cfg.ModuleOutputs == nil {
		cfg.ModuleOutputs = make(map[string]ModuleOutput)
	}
}
