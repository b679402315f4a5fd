package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

const (
	// JobRefreshSchema rebuilds this instance's schema graph
	JobRefreshSchema = "refresh_schema"
	// JobReindex re-embeds every non-archived view into the shared vector store
	JobReindex = "reindex"
)

// Jobs are the periodic operations the scheduler drives
type Jobs interface {
	RefreshSchema(ctx context.Context) error
	// ReindexAll returns the number of views embedded
	ReindexAll(ctx context.Context) (int, error)
}

// Service defines the public interface for the scheduler
type Service interface {
	Start(ctx context.Context) error
	Stop() error
	// RunNow executes one scheduling round synchronously
	RunNow(ctx context.Context) error
}

// Keys names the Redis keys the scheduler coordinates through
type Keys struct {
	Leader  string
	LastRun string
}

type service struct {
	log  logrus.FieldLogger
	cfg  *Config
	jobs Jobs

	cron    *cron.Cron
	elector LeaderElector
	tracker runTracker
	now     func() time.Time

	mu      sync.Mutex
	started bool
}

// NewService creates a new scheduler service. The Redis client is shared and
// left open on Stop.
func NewService(log logrus.FieldLogger, cfg *Config, client *redis.Client, keys Keys, jobs Jobs, opts ...ElectorOption) (Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log = log.WithField("service", "scheduler")

	return &service{
		log:     log,
		cfg:     cfg,
		jobs:    jobs,
		elector: NewLeaderElector(log, client, keys.Leader, opts...),
		tracker: newRunTracker(log, client, keys.LastRun),
		now:     time.Now,
	}, nil
}

// Start begins leader election and the cron loop
func (s *service) Start(ctx context.Context) error {
	if !s.cfg.Enabled {
		s.log.Info("Scheduler is disabled")
		return nil
	}

	if err := s.elector.Start(ctx); err != nil {
		return fmt.Errorf("failed to start leader election: %w", err)
	}

	logger := cronLogger{log: s.log}

	s.cron = cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)

	if _, err := s.cron.AddFunc(s.cfg.Schedule, func() {
		if err := s.RunNow(ctx); err != nil {
			s.log.WithError(err).Warn("Scheduled round failed")
		}
	}); err != nil {
		return fmt.Errorf("failed to register schedule: %w", err)
	}

	s.cron.Start()

	s.mu.Lock()
	s.started = true
	s.mu.Unlock()

	s.log.WithField("schedule", s.cfg.Schedule).Info("Scheduler started")

	return nil
}

// Stop waits for a running round to finish then releases leadership
func (s *service) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}

	<-s.cron.Stop().Done()

	s.started = false

	return s.elector.Stop()
}

// RunNow refreshes the schema on every instance and re-indexes on the leader
func (s *service) RunNow(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.JobTimeout)
	defer cancel()

	var errs []error

	start := s.now()
	if err := s.jobs.RefreshSchema(ctx); err != nil {
		errs = append(errs, fmt.Errorf("%s: %w", JobRefreshSchema, err))
	} else {
		s.log.WithField("duration", s.now().Sub(start)).Debug("Schema refreshed")
	}

	if s.elector.IsLeader() {
		if err := s.reindex(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", JobReindex, err))
		}
	}

	return errors.Join(errs...)
}

func (s *service) reindex(ctx context.Context) error {
	last, err := s.tracker.GetLastRun(ctx, JobReindex)
	if err != nil {
		s.log.WithError(err).Warn("Failed to read last reindex, running anyway")
	}

	now := s.now()
	if !last.IsZero() && now.Sub(last) < s.cfg.MinReindexGap {
		s.log.WithField("last_run", last).Debug("Reindex ran recently, skipping")
		return nil
	}

	count, err := s.jobs.ReindexAll(ctx)
	if err != nil {
		return err
	}

	if err := s.tracker.SetLastRun(ctx, JobReindex, s.now()); err != nil {
		s.log.WithError(err).Warn("Failed to record reindex run")
	}

	s.log.WithFields(logrus.Fields{
		"views":    count,
		"duration": s.now().Sub(now),
	}).Info("Re-indexed views")

	return nil
}

// cronLogger routes cron's logging through logrus
type cronLogger struct {
	log logrus.FieldLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.WithFields(fields(keysAndValues)).Debug(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.WithError(err).WithFields(fields(keysAndValues)).Error(msg)
}

func fields(keysAndValues []interface{}) logrus.Fields {
	out := make(logrus.Fields, len(keysAndValues)/2)

	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			key = fmt.Sprint(keysAndValues[i])
		}

		out[key] = keysAndValues[i+1]
	}

	return out
}

var _ Service = (*service)(nil)
var _ cron.Logger = cronLogger{}
