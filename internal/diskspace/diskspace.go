// Package diskspace reports free space on the filesystem that holds the
// recordings.
package diskspace

import (
	"fmt"
	"os"
	"path/filepath"

	units "github.com/docker/go-units"
	"github.com/shirou/gopsutil/v3/disk"

	"github.com/tphakala/longrec/internal/errors"
)

// MinFree is the free space below which a warning is produced.
const MinFree = 1 << 30

// Info holds disk space information in bytes.
type Info struct {
	Path        string  `json:"path"`
	TotalBytes  uint64  `json:"total_bytes"`
	FreeBytes   uint64  `json:"free_bytes"`
	UsedPercent float64 `json:"used_percent"`
}

// Usage returns space information for the filesystem containing path. A
// path that does not exist yet is resolved to its nearest existing parent.
func Usage(path string) (Info, error) {
	dir := existingParent(path)
	st, err := disk.Usage(dir)
	if err != nil {
		return Info{}, errors.New(fmt.Errorf("failed to get disk stats: %w", err)).
			Component("diskspace").
			Category(errors.CategorySystem).
			FileContext(dir).
			Context("operation", "disk_usage").
			Build()
	}
	return Info{
		Path:        dir,
		TotalBytes:  st.Total,
		FreeBytes:   st.Free,
		UsedPercent: st.UsedPercent,
	}, nil
}

// LowSpaceWarning returns a message when less than minFree bytes are free
// at path, or an empty string.
func LowSpaceWarning(path string, minFree uint64) (string, error) {
	info, err := Usage(path)
	if err != nil {
		return "", err
	}
	if info.FreeBytes >= minFree {
		return "", nil
	}
	return fmt.Sprintf("only %s free on %s (%.1f%% used)",
		units.BytesSize(float64(info.FreeBytes)), info.Path, info.UsedPercent), nil
}

func existingParent(path string) string {
	if path == "" {
		path = "."
	}
	p, err := filepath.Abs(path)
	if err != nil {
		p = path
	}
	for {
		if _, err := os.Stat(p); err == nil {
			return p
		}
		parent := filepath.Dir(p)
		if parent == p {
			return p
		}
		p = parent
	}
}
