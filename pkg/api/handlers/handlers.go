// Package handlers implements the viewgraph HTTP API request handlers
package handlers

import (
	"context"

	"github.com/ethpandaops/viewgraph/pkg/advisor"
	"github.com/ethpandaops/viewgraph/pkg/catalog"
	"github.com/ethpandaops/viewgraph/pkg/schema"
	"github.com/ethpandaops/viewgraph/pkg/search"
	"github.com/ethpandaops/viewgraph/pkg/steiner"
	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"
)

// Catalog is the view catalog as seen by the API
type Catalog interface {
	Register(ctx context.Context, v *catalog.View) (*catalog.View, error)
	FindByName(ctx context.Context, name string) (*catalog.View, error)
	FindByID(ctx context.Context, id int64) (*catalog.View, error)
	FindByDomain(ctx context.Context, domain catalog.Domain, layer catalog.Layer) ([]*catalog.View, error)
	List(ctx context.Context, filter catalog.Filter) ([]*catalog.View, error)
	IncrementUsage(ctx context.Context, name string) (*catalog.View, bool, error)
	Promote(ctx context.Context, name string) (bool, error)
	Archive(ctx context.Context, name string) (bool, error)
	Update(ctx context.Context, name string, u *catalog.ViewUpdate) (*catalog.View, error)
	Statistics(ctx context.Context) (*catalog.Statistics, error)
	Lineage(ctx context.Context, name string) (*catalog.Lineage, error)
	LineageLevels(ctx context.Context) (*catalog.LineageLevels, error)
}

// Index is the semantic search index as seen by the API
type Index interface {
	Search(ctx context.Context, q search.Query) ([]search.Result, error)
	FindSimilar(ctx context.Context, name string, topK int, minScore float64) ([]search.Result, error)
	SuggestForQuery(ctx context.Context, text string, tables []string, topK int) ([]search.Result, error)
	ClearCache(ctx context.Context) error
	CacheStats() search.CacheStats
	Config() search.Config
}

// Planner is the join planner as seen by the API
type Planner interface {
	Solve(ctx context.Context, terminals []string, useViews bool) (*steiner.Solution, error)
	CompareSolutions(ctx context.Context, terminals []string) (*steiner.Comparison, error)
	RecommendViews(ctx context.Context, terminals []string, topK int) ([]steiner.Recommendation, error)
}

// Advisor is the recommendation engine as seen by the API
type Advisor interface {
	FindOptimalViews(ctx context.Context, query string, terminals []string) (*advisor.OptimalViews, error)
	ShouldCreateView(ctx context.Context, req advisor.CreationRequest) (*advisor.Decision, error)
	SuggestViewName(ctx context.Context, domain, concept, granularity string) (string, error)
	ImpactAnalysis(ctx context.Context, name string) (*advisor.Impact, error)
}

// Dependencies groups the components the handlers call
type Dependencies struct {
	Catalog Catalog
	Index   Index
	Planner Planner
	Advisor Advisor
	Schema  schema.Provider
}

// Server holds the request handlers
type Server struct {
	deps Dependencies
	log  logrus.FieldLogger
}

// NewServer creates a new API server instance
func NewServer(deps Dependencies, log logrus.FieldLogger) *Server {
	return &Server{
		deps: deps,
		log:  log.WithField("component", "api.handlers"),
	}
}

// Register mounts every route on r
func (s *Server) Register(r fiber.Router) {
	r.Post("/views", s.RegisterView)
	r.Get("/views", s.ListViews)
	r.Get("/views/id/:id", s.GetViewByID)
	r.Get("/views/:name", s.GetView)
	r.Patch("/views/:name", s.UpdateView)
	r.Delete("/views/:name", s.ArchiveView)
	r.Post("/views/:name/usage", s.IncrementUsage)
	r.Post("/views/:name/promote", s.PromoteView)
	r.Get("/views/:name/lineage", s.GetLineage)
	r.Get("/views/:name/similar", s.FindSimilar)
	r.Get("/views/:name/impact", s.ImpactAnalysis)
	r.Get("/domains/:domain/views", s.ListDomainViews)
	r.Get("/catalog/stats", s.CatalogStatistics)
	r.Get("/catalog/lineage", s.LineageLevels)

	r.Post("/search", s.Search)
	r.Get("/search/cache", s.CacheStats)
	r.Delete("/search/cache", s.ClearCache)
	r.Post("/suggest", s.Suggest)

	r.Post("/solve", s.Solve)
	r.Post("/compare", s.Compare)
	r.Post("/recommend", s.Recommend)

	r.Post("/optimal-views", s.OptimalViews)
	r.Post("/should-create", s.ShouldCreate)
	r.Get("/view-name", s.SuggestViewName)

	r.Get("/schema/stats", s.SchemaStatistics)
	r.Get("/schema/path", s.SchemaPath)
	r.Get("/schema/tables/:name", s.SchemaTable)
}
