package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// runTracker records when each job last completed, shared across instances
type runTracker interface {
	// GetLastRun returns the zero time if the job has never completed
	GetLastRun(ctx context.Context, job string) (time.Time, error)
	SetLastRun(ctx context.Context, job string, timestamp time.Time) error
	// LastRuns returns every tracked job
	LastRuns(ctx context.Context) (map[string]time.Time, error)
}

type redisRunTracker struct {
	log       logrus.FieldLogger
	redis     *redis.Client
	keyPrefix string
}

// newRunTracker creates a Redis-backed tracker storing one key per job under keyPrefix
func newRunTracker(log logrus.FieldLogger, redisClient *redis.Client, keyPrefix string) runTracker {
	return &redisRunTracker{
		log:       log.WithField("component", "run_tracker"),
		redis:     redisClient,
		keyPrefix: keyPrefix,
	}
}

func (r *redisRunTracker) GetLastRun(ctx context.Context, job string) (time.Time, error) {
	val, err := r.redis.Get(ctx, r.keyPrefix+job).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return time.Time{}, nil
		}

		return time.Time{}, fmt.Errorf("failed to get last run for %s: %w", job, err)
	}

	timestamp, err := time.Parse(time.RFC3339Nano, val)
	if err != nil {
		r.log.WithError(err).WithFields(logrus.Fields{
			"job":       job,
			"raw_value": val,
		}).Error("Failed to parse timestamp")

		return time.Time{}, fmt.Errorf("failed to parse timestamp for %s: %w", job, err)
	}

	return timestamp, nil
}

func (r *redisRunTracker) SetLastRun(ctx context.Context, job string, timestamp time.Time) error {
	if err := r.redis.Set(ctx, r.keyPrefix+job, timestamp.UTC().Format(time.RFC3339Nano), 0).Err(); err != nil {
		return fmt.Errorf("failed to set last run for %s: %w", job, err)
	}

	return nil
}

func (r *redisRunTracker) LastRuns(ctx context.Context) (map[string]time.Time, error) {
	// SCAN rather than KEYS so large keyspaces are not blocked
	const scanBatchSize = 100

	runs := make(map[string]time.Time)

	iter := r.redis.Scan(ctx, 0, r.keyPrefix+"*", scanBatchSize).Iterator()
	for iter.Next(ctx) {
		job := iter.Val()[len(r.keyPrefix):]

		ts, err := r.GetLastRun(ctx, job)
		if err != nil {
			return nil, err
		}

		runs[job] = ts
	}

	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan job runs: %w", err)
	}

	return runs, nil
}

// Verify interface compliance at compile time
var _ runTracker = (*redisRunTracker)(nil)
