package observability

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics must be global for registration
var (
	// CatalogOperations counts catalog operations by outcome
	CatalogOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "viewgraph_catalog_operations_total",
			Help: "Total number of catalog operations",
		},
		[]string{"operation", "status"}, // status: success, error, miss
	)

	// ViewUsage counts recorded view reuses
	ViewUsage = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "viewgraph_view_usage_total",
			Help: "Total number of recorded view reuses",
		},
		[]string{"domain"},
	)

	// ViewPromotions counts DRAFT to PROMOTED transitions
	ViewPromotions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "viewgraph_view_promotions_total",
			Help: "Total number of views promoted",
		},
		[]string{"domain", "trigger"}, // trigger: usage, manual
	)

	// SolveDuration measures Steiner tree solve time in seconds
	SolveDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "viewgraph_solve_duration_seconds",
			Help:    "Steiner tree solve duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10), // 0.1ms to ~26s
		},
		[]string{"use_views"},
	)

	// SolveCost tracks the cost of returned join plans
	SolveCost = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "viewgraph_solve_cost",
			Help:    "Total edge weight of returned join plans",
			Buckets: []float64{0, 0.5, 1, 2, 4, 8, 16, 32},
		},
		[]string{"use_views"},
	)

	// DroppedTerminals counts tables left out of plans because they were unreachable
	DroppedTerminals = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "viewgraph_solve_dropped_terminals_total",
			Help: "Total number of requested tables dropped from plans as unreachable",
		},
	)

	// EmbeddingCacheLookups counts embedding cache lookups per tier
	EmbeddingCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "viewgraph_embedding_cache_lookups_total",
			Help: "Total number of embedding cache lookups",
		},
		[]string{"tier", "result"}, // tier: memory, redis; result: hit, miss
	)

	// SearchQueries counts semantic search requests
	SearchQueries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "viewgraph_search_queries_total",
			Help: "Total number of semantic search queries",
		},
		[]string{"kind"}, // kind: search, similar, tables, suggest
	)

	// Recommendations counts view creation decisions
	Recommendations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "viewgraph_recommendations_total",
			Help: "Total number of view creation decisions",
		},
		[]string{"decision"}, // decision: create, reuse, too_simple
	)

	// TasksEnqueued counts total number of tasks enqueued
	TasksEnqueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "viewgraph_tasks_enqueued_total",
			Help: "Total number of tasks enqueued",
		},
		[]string{"type", "trigger"}, // trigger: update, refresh
	)

	// TasksTotal tracks the total number of tasks processed
	TasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "viewgraph_tasks_total",
			Help: "Total number of tasks processed",
		},
		[]string{"type", "status"}, // status: success, failed
	)

	// TaskDuration measures task execution duration in seconds
	TaskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "viewgraph_task_duration_seconds",
			Help:    "Task execution duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"type", "status"},
	)

	// SchemaRefreshes counts schema graph rebuilds
	SchemaRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "viewgraph_schema_refreshes_total",
			Help: "Total number of schema graph rebuilds",
		},
		[]string{"status"},
	)

	// SchemaTables tracks the number of tables in the live schema graph
	SchemaTables = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "viewgraph_schema_tables",
			Help: "Number of tables in the live schema graph",
		},
	)

	// SchemaForeignKeys tracks the number of foreign keys in the live schema graph
	SchemaForeignKeys = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "viewgraph_schema_foreign_keys",
			Help: "Number of distinct foreign key pairs in the live schema graph",
		},
	)

	// SchedulerLeader indicates whether this instance holds the scheduler lease
	SchedulerLeader = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "viewgraph_scheduler_leader",
			Help: "Whether this instance is the scheduler leader (1=leader, 0=follower)",
		},
	)

	// ErrorsTotal counts total number of errors
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "viewgraph_errors_total",
			Help: "Total number of errors",
		},
		[]string{"component", "error_type"},
	)
)

// RecordCatalogOperation records a catalog operation outcome
func RecordCatalogOperation(operation, status string) {
	CatalogOperations.WithLabelValues(operation, status).Inc()
}

// RecordViewUsage records a view reuse and, when it happened, the resulting promotion
func RecordViewUsage(domain string, promoted bool) {
	ViewUsage.WithLabelValues(domain).Inc()

	if promoted {
		ViewPromotions.WithLabelValues(domain, "usage").Inc()
	}
}

// RecordManualPromotion records an explicit promotion
func RecordManualPromotion(domain string) {
	ViewPromotions.WithLabelValues(domain, "manual").Inc()
}

// RecordSolve records a Steiner tree solve
func RecordSolve(useViews bool, duration, cost float64, dropped int) {
	label := strconv.FormatBool(useViews)
	SolveDuration.WithLabelValues(label).Observe(duration)
	SolveCost.WithLabelValues(label).Observe(cost)
	DroppedTerminals.Add(float64(dropped))
}

// RecordEmbeddingCache records an embedding cache lookup
func RecordEmbeddingCache(tier string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}

	EmbeddingCacheLookups.WithLabelValues(tier, result).Inc()
}

// RecordSearch records a search request
func RecordSearch(kind string) {
	SearchQueries.WithLabelValues(kind).Inc()
}

// RecordRecommendation records a view creation decision
func RecordRecommendation(decision string) {
	Recommendations.WithLabelValues(decision).Inc()
}

// RecordTaskEnqueued records task enqueue
func RecordTaskEnqueued(taskType, trigger string) {
	TasksEnqueued.WithLabelValues(taskType, trigger).Inc()
}

// RecordTaskComplete records task completion
func RecordTaskComplete(taskType, status string, duration float64) {
	TasksTotal.WithLabelValues(taskType, status).Inc()
	TaskDuration.WithLabelValues(taskType, status).Observe(duration)
}

// RecordSchemaRefresh records a schema rebuild and the resulting graph size
func RecordSchemaRefresh(status string, tables, foreignKeys int) {
	SchemaRefreshes.WithLabelValues(status).Inc()

	if status == "success" {
		SchemaTables.Set(float64(tables))
		SchemaForeignKeys.Set(float64(foreignKeys))
	}
}

// RecordLeadership records a change in scheduler leadership
func RecordLeadership(leader bool) {
	if leader {
		SchedulerLeader.Set(1)
		return
	}

	SchedulerLeader.Set(0)
}

// RecordError records an error
func RecordError(component, errorType string) {
	ErrorsTotal.WithLabelValues(component, errorType).Inc()
}
