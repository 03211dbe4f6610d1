// Package jobs runs periodic maintenance next to the HTTP server.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

const reindexTimeout = 2 * time.Minute

type Reindexer interface {
	Reindex(ctx context.Context) (int, error)
}

// ReindexJob copies the whole catalog into the search index.
type ReindexJob struct {
	svc    Reindexer
	logger *slog.Logger
}

func NewReindexJob(svc Reindexer, logger *slog.Logger) *ReindexJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReindexJob{svc: svc, logger: logger.With("job", "reindex")}
}

func (j *ReindexJob) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), reindexTimeout)
	defer cancel()

	start := time.Now()
	n, err := j.svc.Reindex(ctx)
	if err != nil {
		j.logger.Error("reindex_failed", "error", err, "duration_ms", time.Since(start).Milliseconds())
		return
	}
	j.logger.Info("reindex_done", "documents", n, "duration_ms", time.Since(start).Milliseconds())
}

// NewScheduler returns a stopped cron with job registered under spec. spec is
// a five-field cron expression or a descriptor such as "@every 15m".
func NewScheduler(spec string, job cron.Job, logger *slog.Logger) (*cron.Cron, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cl := cronLogger{l: logger.With("component", "cron")}

	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	if _, err := c.AddJob(spec, job); err != nil {
		return nil, fmt.Errorf("schedule %q: %w", spec, err)
	}
	return c, nil
}

type cronLogger struct {
	l *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error(msg, append(keysAndValues, "error", err)...)
}
