package diskspace

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUsageResolvesMissingDirectories(t *testing.T) {
	dir := t.TempDir()
	info, err := Usage(filepath.Join(dir, "not", "yet", "created"))
	require.NoError(t, err)
	assert.Equal(t, dir, info.Path)
	assert.Positive(t, info.TotalBytes)
	assert.LessOrEqual(t, info.FreeBytes, info.TotalBytes)
}

func TestLowSpaceWarning(t *testing.T) {
	dir := t.TempDir()

	msg, err := LowSpaceWarning(dir, 0)
	require.NoError(t, err)
	assert.Empty(t, msg)

	msg, err = LowSpaceWarning(dir, math.MaxUint64)
	require.NoError(t, err)
	assert.Contains(t, msg, "free on")
}
