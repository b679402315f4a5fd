// Package worker runs the asynq server that re-embeds changed views
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	r "github.com/ethpandaops/viewgraph/pkg/redis"
	"github.com/ethpandaops/viewgraph/pkg/tasks"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Service defines the public interface for the worker service
type Service interface {
	// Start initializes and starts the worker service
	Start(ctx context.Context) error

	// Stop gracefully shuts down the worker service
	Stop() error
}

// service encapsulates the worker application logic
type service struct {
	config *Config
	log    logrus.FieldLogger
	queue  string

	wg sync.WaitGroup

	reindexer tasks.Reindexer
	redisOpt  *redis.Options

	server *asynq.Server
}

// NewService creates a new worker consuming queue
func NewService(log logrus.FieldLogger, cfg *Config, reindexer tasks.Reindexer, redisOpt *redis.Options, queue string) (Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &service{
		log:       log.WithField("service", "worker"),
		config:    cfg,
		queue:     queue,
		reindexer: reindexer,
		redisOpt:  redisOpt,
	}, nil
}

// NewServeMux routes every task type handled by handler
func NewServeMux(handler *tasks.TaskHandler) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	for taskType, handlerFunc := range handler.Routes() {
		mux.HandleFunc(taskType, handlerFunc)
	}

	return mux
}

// Start initializes and starts the worker service
func (s *service) Start(_ context.Context) error {
	handler := tasks.NewTaskHandler(s.log, s.reindexer)

	srv := asynq.NewServer(r.NewAsynqRedisOptions(s.redisOpt), asynq.Config{
		Concurrency:     s.config.Concurrency,
		Queues:          map[string]int{s.queue: 1},
		ShutdownTimeout: time.Duration(s.config.ShutdownTimeout) * time.Second,
		Logger:          newAsynqLogger(s.log),
	})

	mux := NewServeMux(handler)

	// Start server in background with proper lifecycle management
	s.wg.Add(1)

	go func() {
		defer s.wg.Done()

		if runErr := srv.Run(mux); runErr != nil {
			s.log.WithError(runErr).Error("Worker server stopped with error")
		}
	}()

	s.server = srv

	s.log.WithFields(logrus.Fields{
		"queue":       s.queue,
		"concurrency": s.config.Concurrency,
	}).Info("Worker service started")

	return nil
}

// Stop gracefully shuts down the worker application
func (s *service) Stop() error {
	if s.server != nil {
		s.server.Shutdown()
	}

	s.wg.Wait()

	s.log.Info("Worker service stopped")

	return nil
}

// asynqLogger forwards asynq's internal logging to logrus
type asynqLogger struct {
	log logrus.FieldLogger
}

func newAsynqLogger(log logrus.FieldLogger) *asynqLogger {
	return &asynqLogger{log: log.WithField("component", "asynq")}
}

func (l *asynqLogger) Debug(args ...interface{}) { l.log.Debug(args...) }
func (l *asynqLogger) Info(args ...interface{})  { l.log.Info(args...) }
func (l *asynqLogger) Warn(args ...interface{})  { l.log.Warn(args...) }
func (l *asynqLogger) Error(args ...interface{}) { l.log.Error(args...) }
func (l *asynqLogger) Fatal(args ...interface{}) { l.log.Fatal(args...) }

// Ensure service implements the interface
var _ Service = (*service)(nil)
