package catalog

import (
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/longrec/internal/conf"
	"github.com/tphakala/longrec/internal/logger"
	"github.com/tphakala/longrec/internal/observability/metrics"
	"github.com/tphakala/longrec/internal/recorder"
)

func openTestCatalog(t *testing.T) (*Catalog, *metrics.CatalogMetrics) {
	t.Helper()
	m, err := metrics.NewCatalogMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	c, err := Open(conf.CatalogSettings{
		Enabled: true,
		Type:    "sqlite",
		SQLite:  conf.SQLiteSettings{Path: filepath.Join(t.TempDir(), "db", "catalog.db")},
	}, logger.NewSlogLogger(io.Discard, logger.LogLevelInfo, nil), m)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, m
}

func TestCatalogRecordsSessionLifecycle(t *testing.T) {
	c, m := openTestCatalog(t)
	var obs recorder.Observer = c

	started := time.Now().Add(-time.Minute)
	obs.SessionStarted(recorder.SessionInfo{
		ID: "0b6f2a52-2a42-4a3e-9a53-0d7b0f0e8f10", Path: "/data/take.wav", Format: "wav",
		SampleRate: 48000, Channels: 1, Started: started,
	})
	obs.Flushed(recorder.FlushEvent{
		SessionID: "0b6f2a52-2a42-4a3e-9a53-0d7b0f0e8f10", File: "/data/take.wav", Blocks: 10, Bytes: 48000,
		FirstCaptured: started, LastCaptured: started.Add(450 * time.Millisecond),
	})
	obs.Flushed(recorder.FlushEvent{SessionID: "0b6f2a52-2a42-4a3e-9a53-0d7b0f0e8f10", File: "/data/take.wav", Blocks: 2, Final: true, Err: errors.New("disk full")})
	obs.SessionStopped(recorder.StopEvent{
		SessionID: "0b6f2a52-2a42-4a3e-9a53-0d7b0f0e8f10", Reason: recorder.StopManual,
		Elapsed: 600 * time.Millisecond, BlocksCaptured: 12, BlocksWritten: 10, Flushes: 2,
	})

	s, err := c.Session("0b6f2a52-2a42-4a3e-9a53-0d7b0f0e8f10")
	require.NoError(t, err)
	assert.Equal(t, "/data/take.wav", s.Path)
	assert.Equal(t, "manual", s.StopReason)
	assert.InDelta(t, 0.6, s.ElapsedSeconds, 1e-9)
	assert.Equal(t, int64(12), s.BlocksCaptured)
	require.NotNil(t, s.StoppedAt)
	require.Len(t, s.Segments, 2)
	assert.Equal(t, 10, s.Segments[0].Blocks)
	assert.WithinDuration(t, started.Add(450*time.Millisecond), s.Segments[0].LastCaptured, time.Millisecond)
	assert.WithinDuration(t, started, s.Segments[0].FirstCaptured, time.Millisecond)
	assert.True(t, s.Segments[1].Final)
	assert.Equal(t, "disk full", s.Segments[1].Error)

	assert.Equal(t, 3, testutil.CollectAndCount(m, "longrec_catalog_operations_total"))
}

func TestCatalogSessionsNewestFirst(t *testing.T) {
	c, _ := openTestCatalog(t)
	base := time.Now()
	for i, id := range []string{"a", "b", "c"} {
		c.SessionStarted(recorder.SessionInfo{ID: id, Started: base.Add(time.Duration(i) * time.Second)})
	}

	list, err := c.Sessions(2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "c", list[0].ID)
	assert.Equal(t, "b", list[1].ID)

	_, err = c.Session("missing")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestOpenRejectsUnknownType(t *testing.T) {
	_, err := Open(conf.CatalogSettings{Type: "postgres"}, logger.NewSlogLogger(io.Discard, logger.LogLevelInfo, nil), nil)
	require.Error(t, err)
}

func TestMySQLDSN(t *testing.T) {
	dsn := mysqlDSN(conf.MySQLSettings{Username: "rec", Password: "pw", Host: "db", Port: "3306", Database: "longrec"})
	assert.Equal(t, "rec:pw@tcp(db:3306)/longrec?charset=utf8mb4&parseTime=True&loc=Local", dsn)
}
