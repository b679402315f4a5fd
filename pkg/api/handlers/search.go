package handlers

import (
	"strings"

	"github.com/ethpandaops/viewgraph/pkg/catalog"
	"github.com/ethpandaops/viewgraph/pkg/search"
	"github.com/gofiber/fiber/v3"
)

// SearchRequest is the body of POST /api/v1/search
type SearchRequest struct {
	Query    string         `json:"query"`
	TopK     int            `json:"top_k"`
	MinScore *float64       `json:"min_score"`
	Domain   catalog.Domain `json:"domain"`
	Layer    catalog.Layer  `json:"layer"`
}

// SuggestRequest is the body of POST /api/v1/suggest
type SuggestRequest struct {
	Query  string   `json:"query"`
	Tables []string `json:"tables"`
	TopK   int      `json:"top_k"`
}

// Search handles POST /api/v1/search
func (s *Server) Search(c fiber.Ctx) error {
	var req SearchRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}

	if strings.TrimSpace(req.Query) == "" {
		return badRequest("query is required")
	}

	q := search.Query{
		Text:     req.Query,
		TopK:     req.TopK,
		MinScore: s.deps.Index.Config().MinScore,
		Domain:   req.Domain,
		Layer:    req.Layer,
	}

	if req.MinScore != nil {
		q.MinScore = *req.MinScore
	}

	results, err := s.deps.Index.Search(c.Context(), q)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(resultList(results))
}

// Suggest handles POST /api/v1/suggest
func (s *Server) Suggest(c fiber.Ctx) error {
	var req SuggestRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}

	if strings.TrimSpace(req.Query) == "" {
		return badRequest("query is required")
	}

	results, err := s.deps.Index.SuggestForQuery(c.Context(), req.Query, req.Tables, req.TopK)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(resultList(results))
}

// FindSimilar handles GET /api/v1/views/:name/similar
func (s *Server) FindSimilar(c fiber.Ctx) error {
	defaults := s.deps.Index.Config()

	topK, err := intQuery(c, "top_k", defaults.SimilarTopK)
	if err != nil {
		return err
	}

	minScore, err := floatQuery(c, "min_score", defaults.SimilarMinScore)
	if err != nil {
		return err
	}

	results, err := s.deps.Index.FindSimilar(c.Context(), c.Params("name"), topK, minScore)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(resultList(results))
}

// CacheStats handles GET /api/v1/search/cache
func (s *Server) CacheStats(c fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(s.deps.Index.CacheStats())
}

// ClearCache handles DELETE /api/v1/search/cache
func (s *Server) ClearCache(c fiber.Ctx) error {
	if err := s.deps.Index.ClearCache(c.Context()); err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(s.deps.Index.CacheStats())
}

func resultList(results []search.Result) fiber.Map {
	if results == nil {
		results = []search.Result{}
	}

	return fiber.Map{
		"results": results,
		"total":   len(results),
	}
}
