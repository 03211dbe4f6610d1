package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Skotchmaster/sweet_shop/pkg/logging"
)

// SlogLogger sends gorm output to the slog logger stored in the query
// context, so SQL warnings carry the request attributes.
type SlogLogger struct {
	Level         logger.LogLevel
	SlowThreshold time.Duration
}

func NewSlogLogger(level logger.LogLevel, slow time.Duration) *SlogLogger {
	return &SlogLogger{Level: level, SlowThreshold: slow}
}

func (l *SlogLogger) LogMode(level logger.LogLevel) logger.Interface {
	cp := *l
	cp.Level = level
	return &cp
}

func (l *SlogLogger) Info(ctx context.Context, msg string, args ...interface{}) {
	if l.Level >= logger.Info {
		logging.FromContext(ctx).InfoContext(ctx, "gorm", "detail", fmt.Sprintf(msg, args...))
	}
}

func (l *SlogLogger) Warn(ctx context.Context, msg string, args ...interface{}) {
	if l.Level >= logger.Warn {
		logging.FromContext(ctx).WarnContext(ctx, "gorm", "detail", fmt.Sprintf(msg, args...))
	}
}

func (l *SlogLogger) Error(ctx context.Context, msg string, args ...interface{}) {
	if l.Level >= logger.Error {
		logging.FromContext(ctx).ErrorContext(ctx, "gorm", "detail", fmt.Sprintf(msg, args...))
	}
}

// Trace logs failed queries at error level and slow ones at warn level.
// Record-not-found is an expected outcome and is never logged.
func (l *SlogLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.Level <= logger.Silent {
		return
	}

	elapsed := time.Since(begin)
	switch {
	case err != nil && l.Level >= logger.Error && !errors.Is(err, gorm.ErrRecordNotFound):
		sql, rows := fc()
		logging.FromContext(ctx).ErrorContext(ctx, "db_query_failed",
			"error", err, "sql", sql, "rows", rows, "duration_ms", elapsed.Milliseconds())
	case l.SlowThreshold > 0 && elapsed > l.SlowThreshold && l.Level >= logger.Warn:
		sql, rows := fc()
		logging.FromContext(ctx).WarnContext(ctx, "db_query_slow",
			"sql", sql, "rows", rows, "duration_ms", elapsed.Milliseconds(), "threshold_ms", l.SlowThreshold.Milliseconds())
	case l.Level >= logger.Info:
		sql, rows := fc()
		logging.FromContext(ctx).DebugContext(ctx, "db_query",
			"sql", sql, "rows", rows, "duration_ms", elapsed.Milliseconds())
	}
}
