package handlers

import (
	"strconv"

	"github.com/ethpandaops/viewgraph/pkg/catalog"
	"github.com/gofiber/fiber/v3"
)

// RegisterView handles POST /api/v1/views
func (s *Server) RegisterView(c fiber.Ctx) error {
	var v catalog.View
	if err := bindJSON(c, &v); err != nil {
		return err
	}

	created, err := s.deps.Catalog.Register(c.Context(), &v)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

// ListViews handles GET /api/v1/views
func (s *Server) ListViews(c fiber.Ctx) error {
	layer, err := layerQuery(c)
	if err != nil {
		return err
	}

	filter := catalog.Filter{
		Layer:  layer,
		Status: catalog.Status(c.Query("status")),
		Domain: catalog.Domain(c.Query("domain")),
	}

	views, err := s.deps.Catalog.List(c.Context(), filter)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(viewList(views))
}

// GetView handles GET /api/v1/views/:name
func (s *Server) GetView(c fiber.Ctx) error {
	v, err := s.deps.Catalog.FindByName(c.Context(), c.Params("name"))
	if err != nil {
		return toHTTPError(err)
	}

	if v == nil {
		return ErrViewNotFound
	}

	return c.Status(fiber.StatusOK).JSON(v)
}

// GetViewByID handles GET /api/v1/views/id/:id
func (s *Server) GetViewByID(c fiber.Ctx) error {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return badRequest("invalid view id: " + c.Params("id"))
	}

	v, err := s.deps.Catalog.FindByID(c.Context(), id)
	if err != nil {
		return toHTTPError(err)
	}

	if v == nil {
		return ErrViewNotFound
	}

	return c.Status(fiber.StatusOK).JSON(v)
}

// ListDomainViews handles GET /api/v1/domains/:domain/views
func (s *Server) ListDomainViews(c fiber.Ctx) error {
	layer, err := layerQuery(c)
	if err != nil {
		return err
	}

	views, err := s.deps.Catalog.FindByDomain(c.Context(), catalog.Domain(c.Params("domain")), layer)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(viewList(views))
}

// UpdateView handles PATCH /api/v1/views/:name
func (s *Server) UpdateView(c fiber.Ctx) error {
	var u catalog.ViewUpdate
	if err := bindJSON(c, &u); err != nil {
		return err
	}

	v, err := s.deps.Catalog.Update(c.Context(), c.Params("name"), &u)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(v)
}

// ArchiveView handles DELETE /api/v1/views/:name
func (s *Server) ArchiveView(c fiber.Ctx) error {
	changed, err := s.deps.Catalog.Archive(c.Context(), c.Params("name"))
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"view":     c.Params("name"),
		"archived": changed,
	})
}

// IncrementUsage handles POST /api/v1/views/:name/usage
func (s *Server) IncrementUsage(c fiber.Ctx) error {
	v, promoted, err := s.deps.Catalog.IncrementUsage(c.Context(), c.Params("name"))
	if err != nil {
		return toHTTPError(err)
	}

	if v == nil {
		return ErrViewNotFound
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"view":     v,
		"promoted": promoted,
	})
}

// PromoteView handles POST /api/v1/views/:name/promote
func (s *Server) PromoteView(c fiber.Ctx) error {
	changed, err := s.deps.Catalog.Promote(c.Context(), c.Params("name"))
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"view":     c.Params("name"),
		"promoted": changed,
	})
}

// GetLineage handles GET /api/v1/views/:name/lineage
func (s *Server) GetLineage(c fiber.Ctx) error {
	lineage, err := s.deps.Catalog.Lineage(c.Context(), c.Params("name"))
	if err != nil {
		return toHTTPError(err)
	}

	if lineage == nil {
		return ErrViewNotFound
	}

	return c.Status(fiber.StatusOK).JSON(lineage)
}

// ImpactAnalysis handles GET /api/v1/views/:name/impact
func (s *Server) ImpactAnalysis(c fiber.Ctx) error {
	impact, err := s.deps.Advisor.ImpactAnalysis(c.Context(), c.Params("name"))
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(impact)
}

// CatalogStatistics handles GET /api/v1/catalog/stats
func (s *Server) CatalogStatistics(c fiber.Ctx) error {
	stats, err := s.deps.Catalog.Statistics(c.Context())
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(stats)
}

// LineageLevels handles GET /api/v1/catalog/lineage
func (s *Server) LineageLevels(c fiber.Ctx) error {
	levels, err := s.deps.Catalog.LineageLevels(c.Context())
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(levels)
}

func viewList(views []*catalog.View) fiber.Map {
	if views == nil {
		views = []*catalog.View{}
	}

	return fiber.Map{
		"views": views,
		"total": len(views),
	}
}
