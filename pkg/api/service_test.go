package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/ethpandaops/viewgraph/internal/testutil"
	"github.com/ethpandaops/viewgraph/pkg/advisor"
	"github.com/ethpandaops/viewgraph/pkg/api/handlers"
	"github.com/ethpandaops/viewgraph/pkg/catalog"
	"github.com/ethpandaops/viewgraph/pkg/schema"
	"github.com/ethpandaops/viewgraph/pkg/search"
	"github.com/ethpandaops/viewgraph/pkg/steiner"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	app     *fiber.App
	catalog *catalog.Catalog
	mr      *miniredis.Miniredis
}

func setupAPI(t *testing.T, solverCfg steiner.Config) *fixture {
	t.Helper()

	return setupAPIWithSearch(t, solverCfg, search.DefaultConfig())
}

func setupAPIWithSearch(t *testing.T, solverCfg steiner.Config, searchCfg search.Config) *fixture {
	t.Helper()

	mr, client := testutil.NewMiniredisClient(t)
	log := testutil.NewLogger()
	holder := schema.NewHolder(testutil.FraudGraph(t))

	cat := catalog.New(log, catalog.NewRedisStore(client, testutil.RedisConfig(mr)), catalog.WithTableChecker(holder))
	index := search.NewIndex(log, cat, search.NewHashingModel(64), nil, searchCfg)
	solver := steiner.NewSolver(log, holder, cat, solverCfg)

	deps := handlers.Dependencies{
		Catalog: cat,
		Index:   index,
		Planner: solver,
		Advisor: advisor.New(log, cat, index, solver, advisor.DefaultConfig()),
		Schema:  holder,
	}

	return &fixture{
		app:     NewApp(&Config{Enabled: true, Addr: ":0"}, deps, log),
		catalog: cat,
		mr:      mr,
	}
}

func (f *fixture) do(t *testing.T, method, path string, body any) (int, map[string]any) {
	t.Helper()

	var reader io.Reader = http.NoBody

	if body != nil {
		raw, ok := body.(string)
		if !ok {
			encoded, err := json.Marshal(body)
			require.NoError(t, err)

			raw = string(encoded)
		}

		reader = bytes.NewBufferString(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.app.Test(req)
	require.NoError(t, err)

	defer resp.Body.Close()

	out := map[string]any{}
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	if len(data) > 0 && data[0] == '{' {
		require.NoError(t, json.Unmarshal(data, &out))
	}

	return resp.StatusCode, out
}

func (f *fixture) register(t *testing.T, v *catalog.View) {
	t.Helper()

	if v.Layer == 0 {
		v.Layer = catalog.LayerDiscovery
	}

	if v.Domain == "" {
		v.Domain = catalog.DomainFraud
	}

	if v.ViewDefinition == "" {
		v.ViewDefinition = "SELECT 1"
	}

	_, err := f.catalog.Register(context.Background(), v)
	require.NoError(t, err)
}

func TestRegisterView(t *testing.T) {
	f := setupAPI(t, steiner.DefaultConfig())

	body := map[string]any{
		"view_name":       "v_merchant_risk_profile",
		"layer":           1,
		"domain":          "merchant",
		"description":     "merchant risk by category",
		"base_tables":     []string{"transactions", "merchants"},
		"view_definition": "SELECT * FROM merchants",
	}

	status, out := f.do(t, http.MethodPost, "/api/v1/views", body)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "DRAFT", out["status"])
	assert.InDelta(t, 1, out["view_id"], 0)

	status, out = f.do(t, http.MethodPost, "/api/v1/views", body)
	assert.Equal(t, http.StatusConflict, status)
	assert.InDelta(t, http.StatusConflict, out["code"], 0)

	tests := []struct {
		name   string
		body   any
		status int
	}{
		{name: "bad prefix", body: map[string]any{"view_name": "merchants_2", "layer": 1, "domain": "merchant", "view_definition": "x"}, status: http.StatusBadRequest},
		{name: "unknown table", body: map[string]any{"view_name": "v_x", "layer": 1, "domain": "merchant", "view_definition": "x", "base_tables": []string{"ledger"}}, status: http.StatusBadRequest},
		{name: "unknown dependency", body: map[string]any{"view_name": "v_y", "layer": 1, "domain": "merchant", "view_definition": "x", "depends_on_views": []string{"v_missing"}}, status: http.StatusBadRequest},
		{name: "malformed json", body: "{not json", status: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, _ := f.do(t, http.MethodPost, "/api/v1/views", tt.body)
			assert.Equal(t, tt.status, status)
		})
	}
}

func TestViewLookups(t *testing.T) {
	f := setupAPI(t, steiner.DefaultConfig())
	f.register(t, &catalog.View{Name: "v_fraud_velocity", BaseTables: []string{"transactions"}})
	f.register(t, &catalog.View{Name: "v_customer_segments", Domain: catalog.DomainCustomer, Layer: catalog.LayerResearch})

	status, out := f.do(t, http.MethodGet, "/api/v1/views/v_fraud_velocity", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "v_fraud_velocity", out["view_name"])

	status, _ = f.do(t, http.MethodGet, "/api/v1/views/v_missing", nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, out = f.do(t, http.MethodGet, "/api/v1/views/id/2", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "v_customer_segments", out["view_name"])

	status, _ = f.do(t, http.MethodGet, "/api/v1/views/id/99", nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = f.do(t, http.MethodGet, "/api/v1/views/id/abc", nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, out = f.do(t, http.MethodGet, "/api/v1/views?layer=research", nil)
	require.Equal(t, http.StatusOK, status)
	assert.InDelta(t, 1, out["total"], 0)

	status, _ = f.do(t, http.MethodGet, "/api/v1/views?layer=7", nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, out = f.do(t, http.MethodGet, "/api/v1/domains/fraud/views", nil)
	require.Equal(t, http.StatusOK, status)
	assert.InDelta(t, 1, out["total"], 0)

	status, out = f.do(t, http.MethodGet, "/api/v1/catalog/stats", nil)
	require.Equal(t, http.StatusOK, status)
	assert.InDelta(t, 2, out["total_views"], 0)
}

func TestLifecycleRoutes(t *testing.T) {
	f := setupAPI(t, steiner.DefaultConfig())
	f.register(t, &catalog.View{Name: "v_fraud_velocity"})

	var out map[string]any
	for i := 0; i < catalog.PromotionThreshold; i++ {
		var status int
		status, out = f.do(t, http.MethodPost, "/api/v1/views/v_fraud_velocity/usage", nil)
		require.Equal(t, http.StatusOK, status)
	}

	assert.Equal(t, true, out["promoted"], "third use promotes")

	status, out := f.do(t, http.MethodPost, "/api/v1/views/v_fraud_velocity/promote", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, false, out["promoted"], "already promoted")

	status, _ = f.do(t, http.MethodPost, "/api/v1/views/v_missing/usage", nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = f.do(t, http.MethodPost, "/api/v1/views/v_missing/promote", nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, out = f.do(t, http.MethodDelete, "/api/v1/views/v_fraud_velocity", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, out["archived"])

	status, out = f.do(t, http.MethodGet, "/api/v1/views/v_fraud_velocity", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ARCHIVED", out["status"], "archive is a soft delete")

	status, _ = f.do(t, http.MethodDelete, "/api/v1/views/v_missing", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestUpdateAndLineage(t *testing.T) {
	f := setupAPI(t, steiner.DefaultConfig())
	f.register(t, &catalog.View{Name: "v_base"})
	f.register(t, &catalog.View{Name: "v_derived", DependsOnViews: []string{"v_base"}})

	status, out := f.do(t, http.MethodPatch, "/api/v1/views/v_base", map[string]any{"description": "base rollup"})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "base rollup", out["description"])

	status, _ = f.do(t, http.MethodPatch, "/api/v1/views/v_base", map[string]any{"depends_on_views": []string{"v_derived"}})
	assert.Equal(t, http.StatusBadRequest, status, "cycle rejected")

	status, _ = f.do(t, http.MethodPatch, "/api/v1/views/v_missing", map[string]any{"description": "x"})
	assert.Equal(t, http.StatusNotFound, status)

	status, out = f.do(t, http.MethodGet, "/api/v1/views/v_derived/lineage", nil)
	require.Equal(t, http.StatusOK, status)
	assert.InDelta(t, 1, out["depth"], 0)
	assert.Len(t, out["upstream_views"], 1)

	status, out = f.do(t, http.MethodGet, "/api/v1/catalog/lineage", nil)
	require.Equal(t, http.StatusOK, status)
	assert.InDelta(t, 1, out["max_level"], 0)
	assert.Equal(t, []any{"v_base"}, out["roots"])

	status, _ = f.do(t, http.MethodGet, "/api/v1/views/v_missing/lineage", nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, out = f.do(t, http.MethodGet, "/api/v1/views/v_base/impact", nil)
	require.Equal(t, http.StatusOK, status)
	assert.InDelta(t, 1, out["downstream_views"], 0)

	status, _ = f.do(t, http.MethodGet, "/api/v1/views/v_missing/impact", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestPlanningRoutes(t *testing.T) {
	f := setupAPI(t, steiner.Config{MaxTerminals: 3, MaxGraphNodes: 100})

	status, out := f.do(t, http.MethodPost, "/api/v1/solve", map[string]any{"tables": []string{"transactions", "mcc_codes"}})
	require.Equal(t, http.StatusOK, status)
	assert.InDelta(t, 2.0, out["total_cost"], 1e-9)

	status, _ = f.do(t, http.MethodPost, "/api/v1/solve", map[string]any{"tables": []string{"ledger"}})
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = f.do(t, http.MethodPost, "/api/v1/solve", map[string]any{
		"tables": []string{"transactions", "mcc_codes", "customers", "channels"},
	})
	assert.Equal(t, http.StatusRequestEntityTooLarge, status)

	f.register(t, &catalog.View{
		Name:       "v_merchant_risk_profile",
		Status:     catalog.StatusPromoted,
		BaseTables: []string{"transactions", "merchants", "mcc_codes"},
	})

	status, out = f.do(t, http.MethodPost, "/api/v1/compare", map[string]any{"tables": []string{"transactions", "mcc_codes"}})
	require.Equal(t, http.StatusOK, status)
	savings, ok := out["savings"].(map[string]any)
	require.True(t, ok)
	assert.InDelta(t, 100.0, savings["cost_reduction_pct"], 1e-9)

	status, out = f.do(t, http.MethodPost, "/api/v1/recommend", map[string]any{"tables": []string{"transactions", "mcc_codes"}})
	require.Equal(t, http.StatusOK, status)
	assert.InDelta(t, 1, out["total"], 0)

	status, out = f.do(t, http.MethodPost, "/api/v1/should-create", map[string]any{
		"query":           "merchant risk",
		"terminal_tables": []string{"transactions"},
	})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, false, out["should_create"])

	status, out = f.do(t, http.MethodPost, "/api/v1/optimal-views", map[string]any{
		"query":  "merchant risk profile",
		"tables": []string{"transactions", "mcc_codes"},
	})
	require.Equal(t, http.StatusOK, status)
	assert.NotEmpty(t, out["recommended_views"])

	status, out = f.do(t, http.MethodGet, "/api/v1/view-name?domain=fraud&concept=velocity&granularity=daily", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "v_fraud_velocity_daily", out["name"])

	status, _ = f.do(t, http.MethodGet, "/api/v1/view-name?domain=fraud", nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestSearchRoutes(t *testing.T) {
	f := setupAPI(t, steiner.DefaultConfig())
	f.register(t, &catalog.View{
		Name:        "v_merchant_risk_profile",
		Domain:      catalog.DomainMerchant,
		Description: "merchant risk profile by category",
		BaseTables:  []string{"merchants", "mcc_codes"},
	})
	f.register(t, &catalog.View{
		Name:        "v_merchant_risk_daily",
		Domain:      catalog.DomainMerchant,
		Description: "merchant risk profile by category per day",
		BaseTables:  []string{"merchants", "mcc_codes"},
	})

	status, out := f.do(t, http.MethodPost, "/api/v1/search", map[string]any{"query": "merchant risk profile", "min_score": 0.1})
	require.Equal(t, http.StatusOK, status)
	assert.InDelta(t, 2, out["total"], 0)

	status, _ = f.do(t, http.MethodPost, "/api/v1/search", map[string]any{"query": "  "})
	assert.Equal(t, http.StatusBadRequest, status)

	status, out = f.do(t, http.MethodPost, "/api/v1/suggest", map[string]any{"query": "merchant risk", "tables": []string{"merchants"}})
	require.Equal(t, http.StatusOK, status)
	assert.InDelta(t, 2, out["total"], 0)

	status, out = f.do(t, http.MethodGet, "/api/v1/views/v_merchant_risk_profile/similar", nil)
	require.Equal(t, http.StatusOK, status)
	assert.InDelta(t, 1, out["total"], 0)

	status, _ = f.do(t, http.MethodGet, "/api/v1/views/v_merchant_risk_profile/similar?top_k=x", nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, out = f.do(t, http.MethodGet, "/api/v1/search/cache", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, out["model_loaded"])

	status, out = f.do(t, http.MethodDelete, "/api/v1/search/cache", nil)
	require.Equal(t, http.StatusOK, status)
	assert.InDelta(t, 0, out["cached_views"], 0)
}

func TestSearchUsesConfiguredThresholds(t *testing.T) {
	searchCfg := search.DefaultConfig()
	searchCfg.MinScore = 1
	searchCfg.SimilarMinScore = 1

	f := setupAPIWithSearch(t, steiner.DefaultConfig(), searchCfg)
	f.register(t, &catalog.View{
		Name:        "v_merchant_risk_profile",
		Domain:      catalog.DomainMerchant,
		Description: "merchant risk profile by category",
		BaseTables:  []string{"merchants", "mcc_codes"},
	})
	f.register(t, &catalog.View{
		Name:        "v_merchant_risk_daily",
		Domain:      catalog.DomainMerchant,
		Description: "merchant risk profile by category per day",
		BaseTables:  []string{"merchants", "mcc_codes"},
	})

	status, out := f.do(t, http.MethodPost, "/api/v1/search", map[string]any{"query": "merchant risk profile"})
	require.Equal(t, http.StatusOK, status)
	assert.InDelta(t, 0, out["total"], 0, "configured minScore filters partial matches")

	status, out = f.do(t, http.MethodPost, "/api/v1/search", map[string]any{"query": "merchant risk profile", "min_score": 0.1})
	require.Equal(t, http.StatusOK, status)
	assert.InDelta(t, 2, out["total"], 0, "explicit min_score overrides the configured one")

	status, out = f.do(t, http.MethodGet, "/api/v1/views/v_merchant_risk_profile/similar", nil)
	require.Equal(t, http.StatusOK, status)
	assert.InDelta(t, 0, out["total"], 0)

	status, out = f.do(t, http.MethodGet, "/api/v1/views/v_merchant_risk_profile/similar?min_score=0.1", nil)
	require.Equal(t, http.StatusOK, status)
	assert.InDelta(t, 1, out["total"], 0)
}

func TestSchemaRoutes(t *testing.T) {
	f := setupAPI(t, steiner.DefaultConfig())

	status, out := f.do(t, http.MethodGet, "/api/v1/schema/stats", nil)
	require.Equal(t, http.StatusOK, status)
	assert.InDelta(t, 5, out["num_tables"], 0)

	status, out = f.do(t, http.MethodGet, "/api/v1/schema/path?from=customers&to=mcc_codes", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, []any{"customers", "transactions", "merchants", "mcc_codes"}, out["path"])
	assert.InDelta(t, 3.0, out["cost"], 1e-9)

	status, _ = f.do(t, http.MethodGet, "/api/v1/schema/path?from=customers", nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = f.do(t, http.MethodGet, "/api/v1/schema/path?from=customers&to=ledger", nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, out = f.do(t, http.MethodGet, "/api/v1/schema/tables/merchants", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, out["foreign_keys"], 2)
}

func TestStorageFailureIsInternalError(t *testing.T) {
	f := setupAPI(t, steiner.DefaultConfig())
	f.mr.Close()

	status, out := f.do(t, http.MethodGet, "/api/v1/views", nil)
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "Internal Server Error", out["error"])
}

func TestHealth(t *testing.T) {
	f := setupAPI(t, steiner.DefaultConfig())

	req := httptest.NewRequest(http.MethodGet, "/health", http.NoBody)
	resp, err := f.app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, (&Config{Enabled: false}).Validate())
	assert.ErrorIs(t, (&Config{Enabled: true}).Validate(), ErrAPIAddrRequired)
	assert.NoError(t, (&Config{Enabled: true, Addr: ":8080"}).Validate())
}
