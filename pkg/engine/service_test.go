package engine

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/creasty/defaults"
	"github.com/ethpandaops/viewgraph/internal/testutil"
	"github.com/ethpandaops/viewgraph/pkg/catalog"
	"github.com/ethpandaops/viewgraph/pkg/metadata"
	"github.com/ethpandaops/viewgraph/pkg/schema"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fraudSchema = `
tables:
  - name: transactions
    rowCount: 1000
  - name: merchants
    rowCount: 1000
  - name: mcc_codes
    rowCount: 1000
  - name: audit_log
    rowCount: 10
foreignKeys:
  - from: transactions.merchant_id
    to: merchants.merchant_id
  - from: merchants.mcc_code
    to: mcc_codes.mcc_code
`

type recordingQueue struct {
	mu    sync.Mutex
	names []string
}

func (q *recordingQueue) EnqueueEmbed(_ context.Context, name, _ string, _ ...asynq.Option) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.names = append(q.names, name)

	return nil
}

func (q *recordingQueue) Close() error { return nil }

func newTestConfig(t *testing.T, schemaPath, redisURL string) *Config {
	t.Helper()

	cfg := &Config{}
	require.NoError(t, defaults.Set(cfg))

	cfg.Redis.URL = redisURL
	cfg.Metadata.Driver = metadata.DriverFile
	cfg.Metadata.Path = schemaPath
	cfg.Metadata.Exclude = []string{"audit_log"}

	return cfg
}

func setupEngine(t *testing.T) *Service {
	t.Helper()

	path := filepath.Join(t.TempDir(), "schema.yaml")
	require.NoError(t, os.WriteFile(path, []byte(fraudSchema), 0o600))

	mr, client := testutil.NewMiniredisClient(t)
	cfg := newTestConfig(t, path, "redis://"+mr.Addr())
	require.NoError(t, cfg.Validate())

	return newService(testutil.NewLogger(), cfg, client, metadata.NewFileProvider(path))
}

func TestDefaultsValidate(t *testing.T) {
	cfg := newTestConfig(t, "schema.yaml", "redis://localhost:6379/0")
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "info", cfg.Logging)
	assert.Equal(t, "viewgraph", cfg.Redis.Prefix)
	assert.Equal(t, 64, cfg.Solver.MaxTerminals)
	assert.Equal(t, 384, cfg.Search.Dimensions)
	assert.Equal(t, "@every 10m", cfg.Scheduler.Schedule)
	assert.Equal(t, ":8080", cfg.API.Addr)
}

func TestConfigValidateNamesSection(t *testing.T) {
	cfg := newTestConfig(t, "schema.yaml", "redis://localhost:6379/0")
	cfg.Scheduler.Schedule = "whenever"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scheduler:")

	cfg = newTestConfig(t, "schema.yaml", "redis://localhost:6379/0")
	cfg.Logging = "loud"
	assert.Error(t, cfg.Validate())

	cfg = newTestConfig(t, "schema.yaml", "")
	assert.Error(t, cfg.Validate())
}

func TestRefreshSchema(t *testing.T) {
	s := setupEngine(t)
	ctx := context.Background()

	assert.False(t, s.Schema().HasTable("transactions"), "empty before the first refresh")

	require.NoError(t, s.RefreshSchema(ctx))

	g := s.Schema().Current()
	assert.Equal(t, []string{"mcc_codes", "merchants", "transactions"}, g.TableNames())
	assert.False(t, g.HasTable("audit_log"), "excluded tables stay out")

	sol, err := s.Solver().Solve(ctx, []string{"transactions", "mcc_codes"}, true)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, sol.TotalCost, 1e-9)
}

func TestRefreshSchemaKeepsGraphOnFailure(t *testing.T) {
	s := setupEngine(t)
	ctx := context.Background()

	require.NoError(t, s.RefreshSchema(ctx))
	before := s.Schema().Current()

	s.provider = metadata.NewFileProvider(filepath.Join(t.TempDir(), "missing.yaml"))

	require.Error(t, s.RefreshSchema(ctx))
	assert.Same(t, before, s.Schema().Current())
}

func TestViewEditsQueueReembedding(t *testing.T) {
	s := setupEngine(t)
	ctx := context.Background()
	require.NoError(t, s.RefreshSchema(ctx))

	queue := &recordingQueue{}
	s.queue = queue

	_, err := s.Catalog().Register(ctx, &catalog.View{
		Name:           "v_merchant_risk",
		Layer:          catalog.LayerDiscovery,
		Domain:         catalog.DomainMerchant,
		Description:    "merchant risk",
		BaseTables:     []string{"merchants"},
		ViewDefinition: "SELECT 1",
	})
	require.NoError(t, err)

	count, err := s.ReindexAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, 1, s.Index().CacheStats().CachedViews)

	desc := "merchant risk by mcc"
	_, err = s.Catalog().Update(ctx, "v_merchant_risk", &catalog.ViewUpdate{Description: &desc})
	require.NoError(t, err)

	assert.Equal(t, 0, s.Index().CacheStats().CachedViews, "edit drops the cached embedding")
	assert.Equal(t, []string{"v_merchant_risk"}, queue.names)

	note := "reviewed"
	_, err = s.Catalog().Update(ctx, "v_merchant_risk", &catalog.ViewUpdate{ReviewNotes: &note})
	require.NoError(t, err)
	assert.Len(t, queue.names, 1, "governance edits do not re-embed")
}

func TestDependencies(t *testing.T) {
	s := setupEngine(t)

	deps := s.Dependencies()
	assert.Same(t, s.Catalog(), deps.Catalog)
	assert.Same(t, s.Solver(), deps.Planner)
	assert.Same(t, s.Advisor(), deps.Advisor)
	assert.Same(t, s.Index(), deps.Index)

	var provider schema.Provider = s.Schema()
	assert.Equal(t, provider, deps.Schema)
}
