package handlers

import (
	"errors"

	"github.com/ethpandaops/viewgraph/pkg/advisor"
	"github.com/ethpandaops/viewgraph/pkg/catalog"
	"github.com/ethpandaops/viewgraph/pkg/schema"
	"github.com/ethpandaops/viewgraph/pkg/steiner"
	"github.com/gofiber/fiber/v3"
)

// ErrViewNotFound is returned when a view is not found
var ErrViewNotFound = fiber.NewError(fiber.StatusNotFound, "view not found")

// ErrInvalidBody is returned when the request body is not valid JSON for the route
var ErrInvalidBody = fiber.NewError(fiber.StatusBadRequest, "invalid request body")

// toHTTPError maps domain errors onto status codes. Unmapped errors fall
// through to the error handler as 500s.
func toHTTPError(err error) error {
	switch {
	case errors.Is(err, schema.ErrTableNotFound),
		errors.Is(err, schema.ErrNoPath),
		errors.Is(err, catalog.ErrViewNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, catalog.ErrDuplicateView),
		errors.Is(err, catalog.ErrEditConflict):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case errors.Is(err, catalog.ErrInvalidView),
		errors.Is(err, catalog.ErrUnknownDependency),
		errors.Is(err, catalog.ErrUnknownTable),
		errors.Is(err, catalog.ErrDependencyCycle),
		errors.Is(err, advisor.ErrNameRequired):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, steiner.ErrInputTooLarge):
		return fiber.NewError(fiber.StatusRequestEntityTooLarge, err.Error())
	default:
		return err
	}
}

func badRequest(msg string) error {
	return fiber.NewError(fiber.StatusBadRequest, msg)
}
