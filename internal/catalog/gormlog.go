package catalog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/tphakala/longrec/internal/errors"
	"github.com/tphakala/longrec/internal/logger"
)

// maxLoggedSQL caps statements in log records; segment inserts carry file
// paths and can get long.
const maxLoggedSQL = 512

// queryLogger routes gorm's output to the catalog module logger. Statements
// are logged at TRACE with their kind, so "statement=INSERT" can be
// filtered without parsing SQL. A missing session is a normal API answer
// and is not logged.
type queryLogger struct {
	log           logger.Logger
	slowThreshold time.Duration
}

func newQueryLogger(log logger.Logger, slowThreshold time.Duration) *queryLogger {
	return &queryLogger{log: log, slowThreshold: slowThreshold}
}

func (q *queryLogger) LogMode(gormlogger.LogLevel) gormlogger.Interface { return q }

func (q *queryLogger) Info(_ context.Context, msg string, data ...any) {
	q.log.Debug(fmt.Sprintf(msg, data...))
}

func (q *queryLogger) Warn(_ context.Context, msg string, data ...any) {
	q.log.Warn(fmt.Sprintf(msg, data...))
}

func (q *queryLogger) Error(_ context.Context, msg string, data ...any) {
	q.log.Error(fmt.Sprintf(msg, data...))
}

func (q *queryLogger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	elapsed := time.Since(begin)
	sql, rows := fc()
	fields := []logger.Field{
		logger.String("statement", statementKind(sql)),
		logger.String("sql", truncateSQL(sql)),
		logger.Int64("rows", rows),
		logger.Duration("duration", elapsed),
	}

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return
	case err != nil:
		q.log.Warn("catalog query failed", append(fields, logger.Error(err))...)
	case q.slowThreshold > 0 && elapsed > q.slowThreshold:
		q.log.Warn("slow catalog query", append(fields, logger.Duration("threshold", q.slowThreshold))...)
	default:
		q.log.Trace("catalog query", fields...)
	}
}

// statementKind returns the leading SQL keyword, e.g. "INSERT".
func statementKind(sql string) string {
	kind, _, _ := strings.Cut(strings.TrimSpace(sql), " ")
	return strings.ToUpper(kind)
}

func truncateSQL(sql string) string {
	if len(sql) <= maxLoggedSQL {
		return sql
	}
	return sql[:maxLoggedSQL] + "..."
}
