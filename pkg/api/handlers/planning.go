package handlers

import (
	"github.com/ethpandaops/viewgraph/pkg/advisor"
	"github.com/ethpandaops/viewgraph/pkg/steiner"
	"github.com/gofiber/fiber/v3"
)

// PlanRequest is the body of the join planning routes
type PlanRequest struct {
	Tables []string `json:"tables"`
	// UseViews defaults to true for /solve
	UseViews *bool `json:"use_views,omitempty"`
	TopK     int   `json:"top_k,omitempty"`
}

// OptimalViewsRequest is the body of POST /api/v1/optimal-views
type OptimalViewsRequest struct {
	Query  string   `json:"query"`
	Tables []string `json:"tables"`
}

// Solve handles POST /api/v1/solve
func (s *Server) Solve(c fiber.Ctx) error {
	var req PlanRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}

	useViews := req.UseViews == nil || *req.UseViews

	sol, err := s.deps.Planner.Solve(c.Context(), req.Tables, useViews)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(sol)
}

// Compare handles POST /api/v1/compare
func (s *Server) Compare(c fiber.Ctx) error {
	var req PlanRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}

	cmp, err := s.deps.Planner.CompareSolutions(c.Context(), req.Tables)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(cmp)
}

// Recommend handles POST /api/v1/recommend
func (s *Server) Recommend(c fiber.Ctx) error {
	var req PlanRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}

	topK := req.TopK
	if topK <= 0 {
		topK = steiner.DefaultRecommendations
	}

	recs, err := s.deps.Planner.RecommendViews(c.Context(), req.Tables, topK)
	if err != nil {
		return toHTTPError(err)
	}

	if recs == nil {
		recs = []steiner.Recommendation{}
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"recommendations": recs,
		"total":           len(recs),
	})
}

// OptimalViews handles POST /api/v1/optimal-views
func (s *Server) OptimalViews(c fiber.Ctx) error {
	var req OptimalViewsRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}

	res, err := s.deps.Advisor.FindOptimalViews(c.Context(), req.Query, req.Tables)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(res)
}

// ShouldCreate handles POST /api/v1/should-create
func (s *Server) ShouldCreate(c fiber.Ctx) error {
	var req advisor.CreationRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}

	decision, err := s.deps.Advisor.ShouldCreateView(c.Context(), req)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(decision)
}

// SuggestViewName handles GET /api/v1/view-name
func (s *Server) SuggestViewName(c fiber.Ctx) error {
	name, err := s.deps.Advisor.SuggestViewName(c.Context(), c.Query("domain"), c.Query("concept"), c.Query("granularity"))
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"name": name})
}
