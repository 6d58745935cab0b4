package logger

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "time/tzdata"

	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	// traceLevelValue sits below slog.LevelDebug (-4)
	traceLevelValue = slog.Level(-8)

	dirPermissions = 0o755
)

var (
	globalLogger   *CentralLogger
	globalLoggerMu sync.Mutex
)

// SetGlobal sets the global CentralLogger instance.
func SetGlobal(cl *CentralLogger) {
	globalLoggerMu.Lock()
	defer globalLoggerMu.Unlock()
	globalLogger = cl
}

// Global returns the global CentralLogger, creating a console-only
// fallback when none has been set.
func Global() *CentralLogger {
	globalLoggerMu.Lock()
	defer globalLoggerMu.Unlock()

	if globalLogger == nil {
		globalLogger = &CentralLogger{
			config: &LoggingConfig{
				DefaultLevel: DefaultLogLevel,
				Console:      &ConsoleOutput{Enabled: true, Level: DefaultLogLevel},
			},
			timezone:     time.Local,
			moduleLevels: make(map[string]slog.Level),
			writers:      make(map[string]*lumberjack.Logger),
			baseHandler:  newTextHandler(os.Stdout, slog.LevelInfo, time.Local),
		}
	}
	return globalLogger
}

// CentralLogger routes module loggers to console and rotated JSON files.
type CentralLogger struct {
	config       *LoggingConfig
	timezone     *time.Location
	baseHandler  slog.Handler
	moduleLevels map[string]slog.Level
	// writers is keyed by file path so modules sharing a file share a writer
	writers map[string]*lumberjack.Logger
	mu      sync.RWMutex
}

// NewCentralLogger creates a centralized logger with module routing
func NewCentralLogger(cfg *LoggingConfig) (*CentralLogger, error) {
	if cfg == nil {
		return nil, fmt.Errorf("logging config cannot be nil")
	}
	applyConfigDefaults(cfg)

	tz, err := loadTimezone(cfg.Timezone)
	if err != nil {
		return nil, err
	}

	cl := &CentralLogger{
		config:       cfg,
		timezone:     tz,
		moduleLevels: make(map[string]slog.Level, len(cfg.ModuleLevels)),
		writers:      make(map[string]*lumberjack.Logger),
	}
	for module, level := range cfg.ModuleLevels {
		cl.moduleLevels[module] = parseLogLevel(level)
	}

	if err := cl.createBaseHandler(); err != nil {
		_ = cl.closeWriters()
		return nil, fmt.Errorf("failed to create base handler: %w", err)
	}
	return cl, nil
}

func loadTimezone(name string) (*time.Location, error) {
	switch name {
	case "", "Local":
		return time.Local, nil
	case "UTC":
		return time.UTC, nil
	}
	tz, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %s: %w", name, err)
	}
	return tz, nil
}

func (cl *CentralLogger) createBaseHandler() error {
	var handlers []slog.Handler

	if cl.config.Console != nil && cl.config.Console.Enabled {
		handlers = append(handlers, newTextHandler(os.Stdout, parseLogLevel(cl.config.Console.Level), cl.timezone))
	}

	if fo := cl.config.FileOutput; fo != nil && fo.Enabled {
		w, err := cl.writerFor(fo.Path, fo)
		if err != nil {
			return err
		}
		handlers = append(handlers, newJSONHandler(w, parseLogLevel(fo.Level)))
	}

	if len(handlers) == 0 {
		cl.baseHandler = newTextHandler(os.Stdout, parseLogLevel(cl.config.DefaultLevel), cl.timezone)
	} else {
		cl.baseHandler = newFanout(handlers...)
	}
	return nil
}

// writerFor returns the rotating writer for path, opening it on first use.
// Caller must hold cl.mu or be in construction.
func (cl *CentralLogger) writerFor(path string, rot *FileOutput) (*lumberjack.Logger, error) {
	if w, ok := cl.writers[path]; ok {
		return w, nil
	}
	if err := ensureFileDirectory(path); err != nil {
		return nil, err
	}
	w := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    rot.MaxSize,
		MaxBackups: rot.MaxRotatedFiles,
		MaxAge:     rot.MaxAge,
		Compress:   rot.Compress,
		LocalTime:  cl.timezone != time.UTC,
	}
	cl.writers[path] = w
	return w, nil
}

// Module returns a logger scoped to a specific module
func (cl *CentralLogger) Module(name string) Logger {
	if cl == nil {
		return nil
	}

	cl.mu.Lock()
	defer cl.mu.Unlock()

	level := parseLogLevel(cl.config.DefaultLevel)
	if l, ok := cl.moduleLevels[name]; ok {
		level = l
	}

	handler := cl.baseHandler
	if mo, ok := cl.config.ModuleOutputs[name]; ok && mo.Enabled && mo.FilePath != "" {
		if mo.Level != "" {
			level = parseLogLevel(mo.Level)
		}
		w, err := cl.writerFor(mo.FilePath, mo.rotation(cl.config.FileOutput))
		if err != nil {
			// keep logging to the base handler rather than losing the module
			fmt.Fprintf(os.Stderr, "logger: module %s: %v\n", name, err)
		} else {
			handler = newJSONHandler(w, level)
			if mo.ConsoleAlso && cl.config.Console != nil && cl.config.Console.Enabled {
				handler = newFanout(handler, newTextHandler(os.Stdout, level, cl.timezone))
			}
		}
	}

	return &moduleLogger{
		module:   name,
		logger:   slog.New(handler),
		level:    level,
		timezone: cl.timezone,
	}
}

// Flush is a no-op: lumberjack writes through to the file.
func (cl *CentralLogger) Flush() error {
	return nil
}

// Close closes all rotating file writers.
func (cl *CentralLogger) Close() error {
	if cl == nil {
		return nil
	}
	cl.mu.Lock()
	defer cl.mu.Unlock()
	return cl.closeWriters()
}

func (cl *CentralLogger) closeWriters() error {
	var errs []error
	for path, w := range cl.writers {
		if err := w.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close log file %s: %w", path, err))
		}
	}
	cl.writers = make(map[string]*lumberjack.Logger)
	return errors.Join(errs...)
}

// NewSlogLogger creates a standalone Logger writing text to w.
// A nil writer means stdout and a nil timezone means time.Local.
func NewSlogLogger(w io.Writer, level LogLevel, tz *time.Location) Logger {
	if w == nil {
		w = os.Stdout
	}
	if tz == nil {
		tz = time.Local
	}
	lvl := parseSlogLevel(level)
	return &moduleLogger{
		logger:   slog.New(newTextHandler(w, lvl, tz)),
		level:    lvl,
		timezone: tz,
	}
}

func ensureFileDirectory(filePath string) error {
	if filePath == "" {
		return fmt.Errorf("log file path is empty")
	}
	dir := filepath.Dir(filePath)
	if dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, dirPermissions); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	return nil
}

func parseLogLevel(level string) slog.Level {
	return parseSlogLevel(LogLevel(level))
}

func parseSlogLevel(level LogLevel) slog.Level {
	switch level {
	case LogLevelTrace:
		return traceLevelValue
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
