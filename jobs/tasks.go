// Package jobs runs the background work: purging lapsed session records
// and warming the per-category article statistics cache.
package jobs

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypePurgeSessions removes session audit rows past expiry.
	TaskTypePurgeSessions = "sessions:purge"
	// TaskTypeStatsWarmup recounts articles per category into Redis.
	TaskTypeStatsWarmup = "articles:stats_warmup"

	statsKeyPrefix = "pubdesk:stats:articles:"
	statsTTL       = 24 * time.Hour
)

// SessionPurger deletes expired session records.
type SessionPurger interface {
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

// CategoryCounter tallies the catalogue per category.
type CategoryCounter interface {
	CountByCategory(ctx context.Context) (map[string]int64, error)
}

// NewPurgeSessionsTask constructs the session purge task.
func NewPurgeSessionsTask() *asynq.Task {
	return asynq.NewTask(TaskTypePurgeSessions, nil)
}

// NewStatsWarmupTask constructs the stats warmup task.
func NewStatsWarmupTask() *asynq.Task {
	return asynq.NewTask(TaskTypeStatsWarmup, nil)
}

// PurgeSessionsHandler returns the handler for TaskTypePurgeSessions.
func PurgeSessionsHandler(purger SessionPurger, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		n, err := purger.PurgeExpired(ctx, time.Now().UTC())
		if err != nil {
			return err
		}
		if logger != nil {
			logger.Info("purged session records", slog.Int64("count", n))
		}
		return nil
	}
}

// StatsWarmupHandler returns the handler for TaskTypeStatsWarmup. Counts are
// written to Redis where dashboards can read them without touching Postgres.
func StatsWarmupHandler(counter CategoryCounter, cache *redis.Client, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		counts, err := counter.CountByCategory(ctx)
		if err != nil {
			return err
		}
		for category, count := range counts {
			key := statsKeyPrefix + category
			if err := cache.Set(ctx, key, strconv.FormatInt(count, 10), statsTTL).Err(); err != nil {
				return err
			}
		}
		if logger != nil {
			logger.Info("article stats warmed", slog.Int("categories", len(counts)))
		}
		return nil
	}
}
