package handlers

import (
	"github.com/gofiber/fiber/v3"
)

// SchemaStatistics handles GET /api/v1/schema/stats
func (s *Server) SchemaStatistics(c fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(s.deps.Schema.Current().Statistics())
}

// SchemaPath handles GET /api/v1/schema/path
func (s *Server) SchemaPath(c fiber.Ctx) error {
	from, to := c.Query("from"), c.Query("to")
	if from == "" || to == "" {
		return badRequest("from and to are required")
	}

	g := s.deps.Schema.Current()

	path, err := g.ShortestPath(from, to)
	if err != nil {
		return toHTTPError(err)
	}

	cost, err := g.JoinCost(from, to)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"from": from,
		"to":   to,
		"path": path,
		"cost": cost,
	})
}

// SchemaTable handles GET /api/v1/schema/tables/:name
func (s *Server) SchemaTable(c fiber.Ctx) error {
	g := s.deps.Schema.Current()

	table, err := g.Table(c.Params("name"))
	if err != nil {
		return toHTTPError(err)
	}

	keys, err := g.ForeignKeysOf(table.Name)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"table":        table,
		"foreign_keys": keys,
	})
}
