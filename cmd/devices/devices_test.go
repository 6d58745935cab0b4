package devices

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/longrec/internal/audiodev"
)

func TestPrintDevices(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printDevices(&buf, []audiodev.Device{
		{Index: 0, Name: "Built-in Microphone", ID: ":0,0", Default: true},
		{Index: 1, Name: "USB Audio", ID: ":1,0"},
	}))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "NAME")
	assert.Contains(t, lines[1], "*")
	assert.Contains(t, lines[1], "Built-in Microphone")
	assert.NotContains(t, lines[2], "*")
}

func TestPrintNoDevices(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printDevices(&buf, nil))
	assert.Equal(t, "No capture devices found.\n", buf.String())
}
