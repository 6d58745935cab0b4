package catalog

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcmysql "github.com/testcontainers/testcontainers-go/modules/mysql"

	"github.com/tphakala/longrec/internal/conf"
	"github.com/tphakala/longrec/internal/logger"
	"github.com/tphakala/longrec/internal/recorder"
)

func TestCatalogMySQL(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping MySQL container test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	ctr, err := tcmysql.Run(ctx, "mysql:8.0.36",
		tcmysql.WithDatabase("longrec"),
		tcmysql.WithUsername("rec"),
		tcmysql.WithPassword("rec-password"),
	)
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err)

	host, err := ctr.Host(ctx)
	require.NoError(t, err)
	port, err := ctr.MappedPort(ctx, "3306/tcp")
	require.NoError(t, err)

	c, err := Open(conf.CatalogSettings{
		Enabled: true,
		Type:    "mysql",
		MySQL: conf.MySQLSettings{
			Username: "rec",
			Password: "rec-password",
			Host:     host,
			Port:     port.Port(),
			Database: "longrec",
		},
	}, logger.NewSlogLogger(io.Discard, logger.LogLevelInfo, nil), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	id := "5f0c1f53-77f7-4c1e-9f0d-1f2b4a0c9e11"
	c.SessionStarted(recorder.SessionInfo{ID: id, Path: "/rec/mysql.wav", Format: "wav", Started: time.Now()})
	c.Flushed(recorder.FlushEvent{SessionID: id, File: "/rec/mysql.wav", Blocks: 3, Bytes: 300})
	c.SessionStopped(recorder.StopEvent{SessionID: id, Reason: recorder.StopManual, BlocksCaptured: 3, BlocksWritten: 3})

	s, err := c.Session(id)
	require.NoError(t, err)
	assert.Equal(t, "manual", s.StopReason)
	require.Len(t, s.Segments, 1)
	assert.Equal(t, int64(300), s.Segments[0].Bytes)
}
