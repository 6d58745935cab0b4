// Package catalog keeps a database record of recording sessions and the
// files they produced.
package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/tphakala/longrec/internal/conf"
	"github.com/tphakala/longrec/internal/errors"
	"github.com/tphakala/longrec/internal/logger"
	"github.com/tphakala/longrec/internal/observability/metrics"
	"github.com/tphakala/longrec/internal/recorder"
)

const (
	componentName      = "catalog"
	slowQueryThreshold = 200 * time.Millisecond
	defaultListLimit   = 100
)

// Catalog stores sessions in SQLite or MySQL through GORM. It implements
// recorder.Observer; write failures are logged and never reach the
// recorder.
type Catalog struct {
	db      *gorm.DB
	log     logger.Logger
	metrics *metrics.CatalogMetrics // optional
}

// Open connects to the configured database and migrates the schema.
// m may be nil.
func Open(settings conf.CatalogSettings, log logger.Logger, m *metrics.CatalogMetrics) (*Catalog, error) {
	var dialector gorm.Dialector
	switch settings.Type {
	case "", "sqlite":
		path := settings.SQLite.Path
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, dbError(err, "create_db_dir")
			}
		}
		dialector = sqlite.Open(path)
	case "mysql":
		dialector = mysql.Open(mysqlDSN(settings.MySQL))
	default:
		return nil, errors.Newf("unsupported catalog type %q", settings.Type).
			Component(componentName).
			Category(errors.CategoryConfiguration).
			Build()
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: newQueryLogger(log, slowQueryThreshold),
	})
	if err != nil {
		return nil, dbError(err, "open")
	}
	return newCatalog(db, log, m)
}

func newCatalog(db *gorm.DB, log logger.Logger, m *metrics.CatalogMetrics) (*Catalog, error) {
	start := time.Now()
	if err := db.AutoMigrate(&Session{}, &Segment{}); err != nil {
		return nil, dbError(err, "auto_migrate")
	}
	log.Debug("catalog schema migrated", logger.Duration("duration", time.Since(start)))
	return &Catalog{db: db, log: log, metrics: m}, nil
}

func mysqlDSN(s conf.MySQLSettings) string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		s.Username, s.Password, s.Host, s.Port, s.Database)
}

// Close releases the database connection pool.
func (c *Catalog) Close() error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return dbError(err, "close")
	}
	return sqlDB.Close()
}

// Sessions returns the most recent sessions first, without segments. A
// non-positive limit returns up to defaultListLimit rows.
func (c *Catalog) Sessions(limit int) ([]Session, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	var out []Session
	if err := c.db.Order("started_at DESC").Limit(limit).Find(&out).Error; err != nil {
		return nil, dbError(err, "list_sessions")
	}
	return out, nil
}

// Session returns one session with its segments in write order.
func (c *Catalog) Session(id string) (*Session, error) {
	var s Session
	err := c.db.Preload("Segments", func(db *gorm.DB) *gorm.DB {
		return db.Order("id ASC")
	}).First(&s, "id = ?", id).Error
	if err != nil {
		return nil, dbError(err, "get_session")
	}
	return &s, nil
}

// IsNotFound reports whether err means the requested session is unknown.
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

func (c *Catalog) SessionStarted(info recorder.SessionInfo) {
	c.run(metrics.OpSessionCreate, func() error {
		return c.db.Create(&Session{
			ID:         info.ID,
			Path:       info.Path,
			Format:     info.Format,
			Partition:  info.Partition,
			SampleRate: info.SampleRate,
			Channels:   info.Channels,
			StartedAt:  info.Started,
		}).Error
	})
}

func (c *Catalog) Flushed(e recorder.FlushEvent) {
	c.run(metrics.OpSegmentAdd, func() error {
		return c.db.Create(&Segment{
			SessionID:     e.SessionID,
			File:          e.File,
			Blocks:        e.Blocks,
			Skipped:       e.Skipped,
			Frames:        e.Frames,
			Bytes:         e.Bytes,
			FirstCaptured: e.FirstCaptured,
			LastCaptured:  e.LastCaptured,
			Final:         e.Final,
			Error:         errString(e.Err),
		}).Error
	})
}

func (c *Catalog) SessionStopped(e recorder.StopEvent) {
	now := time.Now()
	c.run(metrics.OpSessionFinish, func() error {
		return c.db.Model(&Session{ID: e.SessionID}).Updates(map[string]any{
			"stopped_at":      &now,
			"stop_reason":     string(e.Reason),
			"elapsed_seconds": e.Elapsed.Seconds(),
			"blocks_captured": e.BlocksCaptured,
			"blocks_written":  e.BlocksWritten,
			"blocks_skipped":  e.BlocksSkipped,
			"flushes":         e.Flushes,
			"error":           errString(e.Err),
		}).Error
	})
}

func (c *Catalog) run(op string, fn func() error) {
	start := time.Now()
	err := fn()
	if c.metrics != nil {
		c.metrics.RecordOperation(op, time.Since(start), err)
	}
	if err != nil {
		c.log.Error("catalog write failed", logger.String("operation", op), logger.Error(dbError(err, op)))
	}
}

func dbError(err error, op string) error {
	return errors.New(err).
		Component(componentName).
		Category(errors.CategoryDatabase).
		Context("operation", op).
		Build()
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
