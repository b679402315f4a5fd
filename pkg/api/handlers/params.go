package handlers

import (
	"strconv"

	"github.com/ethpandaops/viewgraph/pkg/catalog"
	"github.com/gofiber/fiber/v3"
)

func intQuery(c fiber.Ctx, key string, def int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}

	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, badRequest("invalid " + key + ": " + raw)
	}

	return n, nil
}

func floatQuery(c fiber.Ctx, key string, def float64) (float64, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}

	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, badRequest("invalid " + key + ": " + raw)
	}

	return f, nil
}

// layerQuery accepts 1-3 or the layer label
func layerQuery(c fiber.Ctx) (catalog.Layer, error) {
	raw := c.Query("layer")
	if raw == "" {
		return 0, nil
	}

	for _, l := range []catalog.Layer{catalog.LayerDiscovery, catalog.LayerResearch, catalog.LayerCompound} {
		if raw == l.String() || raw == strconv.Itoa(int(l)) {
			return l, nil
		}
	}

	return 0, badRequest("invalid layer: " + raw)
}

func bindJSON(c fiber.Ctx, out any) error {
	if err := c.Bind().JSON(out); err != nil {
		return ErrInvalidBody
	}

	return nil
}
