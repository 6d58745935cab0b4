// conf/utils.go various util functions for configuration package
package conf

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	units "github.com/docker/go-units"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/tphakala/longrec/internal/errors"
)

const (
	osWindows = "windows"
	appName   = "longrec"

	// Unbounded disables threshold-driven flushing.
	Unbounded int64 = -1
)

// GetDefaultConfigPaths returns the configuration search paths for the
// current OS. When config.yaml exists in one of them, only that path is
// returned.
func GetDefaultConfigPaths() ([]string, error) {
	exePath, err := os.Executable()
	if err != nil {
		return nil, errors.New(err).
			Component("conf").
			Category(errors.CategorySystem).
			Context("operation", "get-executable-path").
			Build()
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, errors.New(err).
			Component("conf").
			Category(errors.CategorySystem).
			Context("operation", "get-home-directory").
			Build()
	}

	var configPaths []string
	if runtime.GOOS == osWindows {
		configPaths = []string{
			filepath.Dir(exePath),
			filepath.Join(homeDir, "AppData", "Roaming", appName),
		}
	} else {
		configPaths = []string{
			filepath.Join(homeDir, ".config", appName),
			filepath.Join("/etc", appName),
		}
	}

	for _, path := range configPaths {
		if _, err := os.Stat(filepath.Join(path, "config.yaml")); err == nil {
			return []string{path}, nil
		}
	}
	return configPaths, nil
}

// ThresholdBytes parses the memory threshold. "-1" and "unbounded" return
// Unbounded; sizes accept binary units ("64MB" is 64 MiB).
func (r *RecorderSettings) ThresholdBytes() (int64, error) {
	s := strings.TrimSpace(r.MemoryThreshold)
	switch strings.ToLower(s) {
	case "-1", "unbounded":
		return Unbounded, nil
	case "":
		return 0, fmt.Errorf("recorder.memorythreshold is empty")
	}
	n, err := units.RAMInBytes(s)
	if err != nil {
		return 0, fmt.Errorf("recorder.memorythreshold %q: %w", s, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("recorder.memorythreshold must be positive or -1, got %q", s)
	}
	return n, nil
}

// BlockDuration returns the configured block length as a duration.
func (a *AudioSettings) BlockDuration() time.Duration {
	return secondsToDuration(a.BlockLength)
}

// CheckDuration returns the memory check interval as a duration.
func (r *RecorderSettings) CheckDuration() time.Duration {
	return secondsToDuration(r.CheckInterval)
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// MemoryWarning returns a non-empty message when threshold exceeds half of
// the memory currently available to the system.
func MemoryWarning(threshold int64) (string, error) {
	if threshold == Unbounded {
		return "", nil
	}
	vm, err := mem.VirtualMemory()
	if err != nil {
		return "", errors.New(err).
			Component("conf").
			Category(errors.CategorySystem).
			Context("operation", "virtual_memory").
			Build()
	}
	if uint64(threshold) > vm.Available/2 {
		return fmt.Sprintf("memory threshold %s exceeds half of available memory (%s)",
			units.BytesSize(float64(threshold)), units.BytesSize(float64(vm.Available))), nil
	}
	return "", nil
}

// GetFfmpegBinaryName returns the binary name for ffmpeg based on the current OS.
func GetFfmpegBinaryName() string {
	if runtime.GOOS == osWindows {
		return "ffmpeg.exe"
	}
	return "ffmpeg"
}

// ResolveFfmpegPath returns the configured ffmpeg path when it exists, or
// the one found in PATH. An empty result means ffmpeg is unavailable.
func ResolveFfmpegPath(configured string) string {
	if configured != "" {
		if _, err := os.Stat(configured); err == nil {
			return configured
		}
		return ""
	}
	p, err := exec.LookPath(GetFfmpegBinaryName())
	if err != nil {
		return ""
	}
	return p
}

// TimestampFileName returns "YYYYMMDD-HHMMSS.<ext>" for t.
func TimestampFileName(t time.Time, ext string) string {
	return t.Format("20060102-150405") + "." + strings.TrimPrefix(ext, ".")
}

// TargetPath resolves the file a session records to. An empty name gives a
// timestamped file in OutputDir using DefaultFormat; a relative name is
// placed in OutputDir.
func (r *RecorderSettings) TargetPath(name string, now time.Time) string {
	if name == "" {
		ext := r.DefaultFormat
		if ext == "" {
			ext = DefaultFormat
		}
		name = TimestampFileName(now, ext)
	}
	if filepath.IsAbs(name) || r.OutputDir == "" {
		return name
	}
	return filepath.Join(r.OutputDir, name)
}
