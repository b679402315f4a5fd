package engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // pprof is intentionally exposed when pprofAddr is configured
	"time"

	"github.com/ethpandaops/viewgraph/pkg/advisor"
	"github.com/ethpandaops/viewgraph/pkg/api"
	"github.com/ethpandaops/viewgraph/pkg/api/handlers"
	"github.com/ethpandaops/viewgraph/pkg/catalog"
	"github.com/ethpandaops/viewgraph/pkg/metadata"
	"github.com/ethpandaops/viewgraph/pkg/observability"
	r "github.com/ethpandaops/viewgraph/pkg/redis"
	"github.com/ethpandaops/viewgraph/pkg/scheduler"
	"github.com/ethpandaops/viewgraph/pkg/schema"
	"github.com/ethpandaops/viewgraph/pkg/search"
	"github.com/ethpandaops/viewgraph/pkg/steiner"
	"github.com/ethpandaops/viewgraph/pkg/tasks"
	"github.com/ethpandaops/viewgraph/pkg/worker"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// embedQueue is the part of the task queue the change hook uses
type embedQueue interface {
	EnqueueEmbed(ctx context.Context, name, trigger string, opts ...asynq.Option) error
	Close() error
}

// Service owns every component and their lifecycle
type Service struct {
	config *Config
	log    logrus.FieldLogger

	redisClient *redis.Client
	provider    metadata.Provider

	holder  *schema.Holder
	catalog *catalog.Catalog
	index   *search.Index
	solver  *steiner.Solver
	advisor *advisor.Advisor
	queue   embedQueue

	worker    worker.Service
	scheduler scheduler.Service
	api       api.Service

	// Servers
	healthServer *http.Server
	pprofServer  *http.Server
}

// NewService connects to Redis and the metadata store and builds every
// component. Nothing runs until Start.
func NewService(ctx context.Context, log logrus.FieldLogger, cfg *Config) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	client, redisOpts, err := r.Connect(ctx, &cfg.Redis)
	if err != nil {
		return nil, err
	}

	provider, err := metadata.NewProvider(&cfg.Metadata)
	if err != nil {
		_ = client.Close()

		return nil, fmt.Errorf("failed to open metadata provider: %w", err)
	}

	s := newService(log, cfg, client, provider)

	if cfg.Worker.Enabled {
		queueName := cfg.Redis.PrefixQueue(tasks.DefaultQueue)

		s.queue = tasks.NewQueueManager(r.NewAsynqRedisOptions(redisOpts), queueName)

		s.worker, err = worker.NewService(log, &cfg.Worker, s.index, redisOpts, queueName)
		if err != nil {
			_ = s.close()

			return nil, fmt.Errorf("failed to create worker service: %w", err)
		}
	}

	return s, nil
}

// newService builds the components over an open client and provider
func newService(log logrus.FieldLogger, cfg *Config, client *redis.Client, provider metadata.Provider) *Service {
	s := &Service{
		config:      cfg,
		log:         log.WithField("component", "engine"),
		redisClient: client,
		provider:    provider,
		holder:      schema.NewHolder(nil),
	}

	s.catalog = catalog.New(log, catalog.NewRedisStore(client, &cfg.Redis), catalog.WithTableChecker(s.holder))
	s.catalog.OnChange(s.onViewChanged)

	vectors := search.NewRedisVectorStore(client, cfg.Redis.PrefixKey("embedding:"), cfg.Search.VectorTTL)
	s.index = search.NewIndex(log, s.catalog, search.NewHashingModel(cfg.Search.Dimensions), vectors, cfg.Search)

	s.solver = steiner.NewSolver(log, s.holder, s.catalog, cfg.Solver)
	s.advisor = advisor.New(log, s.catalog, s.index, s.solver, cfg.Advisor)

	// scheduler config was validated with the rest, so creation cannot fail
	s.scheduler, _ = scheduler.NewService(log, &cfg.Scheduler, client, scheduler.Keys{
		Leader:  cfg.Redis.PrefixKey("scheduler:leader"),
		LastRun: cfg.Redis.PrefixKey("scheduler:last_run:"),
	}, s)

	s.api = api.NewService(&cfg.API, s.Dependencies(), log)

	return s
}

// Dependencies returns the components the HTTP handlers call
func (s *Service) Dependencies() handlers.Dependencies {
	return handlers.Dependencies{
		Catalog: s.catalog,
		Index:   s.index,
		Planner: s.solver,
		Advisor: s.advisor,
		Schema:  s.holder,
	}
}

// Catalog returns the view catalog
func (s *Service) Catalog() *catalog.Catalog { return s.catalog }

// Index returns the semantic search index
func (s *Service) Index() *search.Index { return s.index }

// Solver returns the join planner
func (s *Service) Solver() *steiner.Solver { return s.solver }

// Advisor returns the recommendation engine
func (s *Service) Advisor() *advisor.Advisor { return s.advisor }

// Schema returns the live schema graph holder
func (s *Service) Schema() *schema.Holder { return s.holder }

// RefreshSchema reloads metadata and swaps in the rebuilt graph. The previous
// graph stays in place on failure.
func (s *Service) RefreshSchema(ctx context.Context) error {
	g, err := metadata.Load(ctx, s.provider, s.config.Metadata.Exclude...)
	if err != nil {
		observability.RecordSchemaRefresh("error", 0, 0)

		return fmt.Errorf("failed to load schema: %w", err)
	}

	s.holder.Swap(g)

	stats := g.Statistics()
	observability.RecordSchemaRefresh("success", stats.Tables, stats.ForeignKeys)

	s.log.WithFields(logrus.Fields{
		"tables":       stats.Tables,
		"foreign_keys": stats.ForeignKeys,
		"components":   stats.Components,
	}).Info("Schema graph refreshed")

	return nil
}

// ReindexAll embeds every non-archived view
func (s *Service) ReindexAll(ctx context.Context) (int, error) {
	return s.index.IndexAll(ctx)
}

// onViewChanged drops the stale embedding and queues a rebuild
func (s *Service) onViewChanged(ctx context.Context, name string) {
	if err := s.index.Invalidate(ctx, name); err != nil {
		s.log.WithError(err).WithField("view", name).Warn("Failed to invalidate embedding")
	}

	if s.queue == nil {
		return
	}

	if err := s.queue.EnqueueEmbed(ctx, name, tasks.TriggerChange); err != nil {
		s.log.WithError(err).WithField("view", name).Warn("Failed to queue re-embedding")
	}
}

// Start loads the schema and starts the background services
func (s *Service) Start(ctx context.Context) error {
	s.log.Info("Starting viewgraph engine...")

	observability.StartMetricsServer(s.config.MetricsAddr)
	s.log.WithField("addr", s.config.MetricsAddr).Info("Started metrics server")

	if s.config.HealthCheckAddr != "" {
		s.startHealthCheck()
	}

	if s.config.PProfAddr != "" {
		s.startPProf()
	}

	if err := s.RefreshSchema(ctx); err != nil {
		return err
	}

	if s.worker != nil {
		if err := s.worker.Start(ctx); err != nil {
			return fmt.Errorf("failed to start worker: %w", err)
		}
	}

	if err := s.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	if err := s.api.Start(ctx); err != nil {
		return fmt.Errorf("failed to start API service: %w", err)
	}

	s.log.Info("viewgraph engine started successfully")

	return nil
}

// Stop gracefully shuts down the engine
func (s *Service) Stop() error {
	s.log.Info("Shutting down engine...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stopService := func(name string, stopFunc func() error) {
		if err := stopFunc(); err != nil {
			s.log.WithError(err).Errorf("Failed to stop %s", name)
		}
	}

	// API first so no new edits arrive, then the producers, then the consumer
	if s.api != nil {
		stopService("API service", s.api.Stop)
	}

	if s.scheduler != nil {
		stopService("scheduler service", s.scheduler.Stop)
	}

	if s.worker != nil {
		stopService("worker service", s.worker.Stop)
	}

	if s.healthServer != nil {
		stopService("health check server", func() error { return s.healthServer.Shutdown(ctx) })
	}

	if s.pprofServer != nil {
		stopService("pprof server", func() error { return s.pprofServer.Shutdown(ctx) })
	}

	stopService("metrics server", func() error { return observability.StopMetricsServer(ctx) })

	return s.close()
}

// close releases the queue client, the metadata provider and Redis
func (s *Service) close() error {
	var errs []error

	if s.queue != nil {
		errs = append(errs, s.queue.Close())
	}

	if s.provider != nil {
		errs = append(errs, s.provider.Close())
	}

	if s.redisClient != nil {
		errs = append(errs, s.redisClient.Close())
	}

	return errors.Join(errs...)
}

func (s *Service) startHealthCheck() {
	s.log.WithField("addr", s.config.HealthCheckAddr).Info("Starting health check server")

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	mux.HandleFunc("/ready", func(w http.ResponseWriter, req *http.Request) {
		if err := s.redisClient.Ping(req.Context()).Err(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("redis unavailable"))

			return
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	s.healthServer = &http.Server{
		Addr:              s.config.HealthCheckAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.healthServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.WithError(err).Error("Health check server failed")
		}
	}()
}

func (s *Service) startPProf() {
	s.log.WithField("addr", s.config.PProfAddr).Info("Starting pprof server")

	s.pprofServer = &http.Server{
		Addr:              s.config.PProfAddr,
		ReadHeaderTimeout: 120 * time.Second,
	}

	go func() {
		if err := s.pprofServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.WithError(err).Error("Pprof server failed")
		}
	}()
}

var _ scheduler.Jobs = (*Service)(nil)
var _ tasks.Reindexer = (*search.Index)(nil)
