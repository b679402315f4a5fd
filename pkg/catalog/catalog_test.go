package catalog

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ethpandaops/viewgraph/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(time.Second)

	return c.now
}

func setupCatalog(t *testing.T, opts ...Option) (*Catalog, *miniredis.Miniredis) {
	t.Helper()

	mr, client := testutil.NewMiniredisClient(t)
	store := NewRedisStore(client, testutil.RedisConfig(mr))

	clock := &fakeClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
	opts = append([]Option{
		WithTableChecker(testutil.FraudGraph(t)),
		WithClock(clock.Now),
	}, opts...)

	return New(testutil.NewLogger(), store, opts...), mr
}

func newView(name string, domain Domain, tables ...string) *View {
	return &View{
		Name:           name,
		Layer:          LayerDiscovery,
		Domain:         domain,
		Description:    "view over " + name,
		BaseTables:     tables,
		ViewDefinition: "SELECT 1",
	}
}

func mustRegister(t *testing.T, c *Catalog, v *View) *View {
	t.Helper()

	rec, err := c.Register(context.Background(), v)
	require.NoError(t, err)

	return rec
}

func TestRegisterAndFind(t *testing.T) {
	c, _ := setupCatalog(t)
	ctx := context.Background()

	rec := mustRegister(t, c, &View{
		Name:           "v_merchant_risk_profile",
		Layer:          LayerResearch,
		Domain:         DomainMerchant,
		Description:    "Merchant risk with category codes",
		Tags:           []string{"risk", "merchant", "risk"},
		BaseTables:     []string{"transactions", "merchants", "mcc_codes"},
		ViewDefinition: "SELECT * FROM merchants",
	})

	assert.Equal(t, int64(1), rec.ID)
	assert.Equal(t, StatusDraft, rec.Status)
	assert.Equal(t, DefaultRole, rec.CreatedByRole)
	assert.Equal(t, FreshnessLive, rec.FreshnessType)
	assert.True(t, rec.IsValid)
	assert.False(t, rec.CreatedAt.IsZero())
	require.NotNil(t, rec.LastValidated)

	byName, err := c.FindByName(ctx, "v_merchant_risk_profile")
	require.NoError(t, err)
	require.NotNil(t, byName)
	assert.Equal(t, []string{"merchant", "risk"}, byName.Tags)
	assert.Equal(t, []string{"mcc_codes", "merchants", "transactions"}, byName.BaseTables)
	assert.Equal(t, LayerResearch, byName.Layer)
	assert.True(t, rec.CreatedAt.Equal(byName.CreatedAt))

	byID, err := c.FindByID(ctx, rec.ID)
	require.NoError(t, err)
	require.NotNil(t, byID)
	assert.Equal(t, "v_merchant_risk_profile", byID.Name)

	missing, err := c.FindByName(ctx, "v_missing")
	require.NoError(t, err)
	assert.Nil(t, missing)

	missing, err = c.FindByID(ctx, 99)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestRegisterDuplicateLeavesStateUnchanged(t *testing.T) {
	c, mr := setupCatalog(t)

	mustRegister(t, c, newView("v_high_risk_tx", DomainFraud, "transactions"))
	before := mr.Dump()

	dup := newView("v_high_risk_tx", DomainRisk, "merchants")
	dup.Description = "different"

	_, err := c.Register(context.Background(), dup)
	require.ErrorIs(t, err, ErrDuplicateView)
	assert.Equal(t, before, mr.Dump())
}

func TestRegisterValidation(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(v *View)
		expectedErr error
	}{
		{name: "missing prefix", mutate: func(v *View) { v.Name = "merchant_view" }, expectedErr: ErrInvalidView},
		{name: "unknown domain", mutate: func(v *View) { v.Domain = "marketing" }, expectedErr: ErrInvalidView},
		{name: "layer out of range", mutate: func(v *View) { v.Layer = 4 }, expectedErr: ErrInvalidView},
		{name: "missing definition", mutate: func(v *View) { v.ViewDefinition = "" }, expectedErr: ErrInvalidView},
		{name: "unknown status", mutate: func(v *View) { v.Status = "LIVE" }, expectedErr: ErrInvalidView},
		{name: "unknown table", mutate: func(v *View) { v.BaseTables = []string{"ledger"} }, expectedErr: ErrUnknownTable},
		{name: "colon in name", mutate: func(v *View) { v.Name = "v_a:tags" }, expectedErr: ErrInvalidView},
		{name: "unknown dependency", mutate: func(v *View) { v.DependsOnViews = []string{"v_nope"} }, expectedErr: ErrUnknownDependency},
		{name: "self dependency", mutate: func(v *View) { v.DependsOnViews = []string{v.Name} }, expectedErr: ErrDependencyCycle},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := setupCatalog(t)

			v := newView("v_candidate", DomainFraud, "transactions")
			tt.mutate(v)

			_, err := c.Register(context.Background(), v)
			require.ErrorIs(t, err, tt.expectedErr)

			views, err := c.List(context.Background(), Filter{})
			require.NoError(t, err)
			assert.Empty(t, views)
		})
	}
}

func TestRegisterMaintainsUsedBy(t *testing.T) {
	c, _ := setupCatalog(t)
	ctx := context.Background()

	mustRegister(t, c, newView("v_base", DomainFraud, "transactions"))

	child := newView("v_child", DomainFraud, "transactions")
	child.DependsOnViews = []string{"v_base"}
	mustRegister(t, c, child)

	base, err := c.FindByName(ctx, "v_base")
	require.NoError(t, err)
	assert.Equal(t, []string{"v_child"}, base.UsedByViews)
}

func TestIncrementUsagePromotesAtThreshold(t *testing.T) {
	c, _ := setupCatalog(t)
	ctx := context.Background()

	mustRegister(t, c, newView("v_reused", DomainFraud, "transactions"))

	for i := int64(1); i < PromotionThreshold; i++ {
		v, promoted, err := c.IncrementUsage(ctx, "v_reused")
		require.NoError(t, err)
		assert.False(t, promoted)
		assert.Equal(t, i, v.UsageCount)
		assert.Equal(t, StatusDraft, v.Status)
		assert.NotNil(t, v.LastUsed)
	}

	v, promoted, err := c.IncrementUsage(ctx, "v_reused")
	require.NoError(t, err)
	assert.True(t, promoted)
	assert.Equal(t, StatusPromoted, v.Status)
	assert.Equal(t, int64(PromotionThreshold), v.UsageCount)
	require.NotNil(t, v.PromotedAt)

	v, promoted, err = c.IncrementUsage(ctx, "v_reused")
	require.NoError(t, err)
	assert.False(t, promoted)
	assert.Equal(t, StatusPromoted, v.Status)

	promotedViews, err := c.List(ctx, Filter{Status: StatusPromoted})
	require.NoError(t, err)
	require.Len(t, promotedViews, 1)

	drafts, err := c.List(ctx, Filter{Status: StatusDraft})
	require.NoError(t, err)
	assert.Empty(t, drafts)
}

func TestIncrementUsageConcurrentPromotesOnce(t *testing.T) {
	c, _ := setupCatalog(t)
	ctx := context.Background()

	mustRegister(t, c, newView("v_hot", DomainFraud, "transactions"))

	const callers = 20

	var (
		wg        sync.WaitGroup
		promotion atomic.Int32
	)

	for i := 0; i < callers; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			_, promoted, err := c.IncrementUsage(ctx, "v_hot")
			assert.NoError(t, err)

			if promoted {
				promotion.Add(1)
			}
		}()
	}

	wg.Wait()

	assert.Equal(t, int32(1), promotion.Load())

	v, err := c.FindByName(ctx, "v_hot")
	require.NoError(t, err)
	assert.Equal(t, int64(callers), v.UsageCount)
	assert.Equal(t, StatusPromoted, v.Status)
}

func TestIncrementUsageUnknown(t *testing.T) {
	c, _ := setupCatalog(t)

	v, promoted, err := c.IncrementUsage(context.Background(), "v_ghost")
	require.NoError(t, err)
	assert.Nil(t, v)
	assert.False(t, promoted)
}

func TestIncrementUsageLeavesArchivedViews(t *testing.T) {
	c, _ := setupCatalog(t)
	ctx := context.Background()

	mustRegister(t, c, newView("v_old", DomainFraud, "transactions"))

	archived, err := c.Archive(ctx, "v_old")
	require.NoError(t, err)
	assert.True(t, archived)

	for i := 0; i < PromotionThreshold+1; i++ {
		_, promoted, err := c.IncrementUsage(ctx, "v_old")
		require.NoError(t, err)
		assert.False(t, promoted)
	}

	v, err := c.FindByName(ctx, "v_old")
	require.NoError(t, err)
	assert.Equal(t, StatusArchived, v.Status)
}

func TestPromote(t *testing.T) {
	c, _ := setupCatalog(t)
	ctx := context.Background()

	mustRegister(t, c, newView("v_manual", DomainCompliance, "customers"))

	changed, err := c.Promote(ctx, "v_manual")
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = c.Promote(ctx, "v_manual")
	require.NoError(t, err)
	assert.False(t, changed)

	v, err := c.FindByName(ctx, "v_manual")
	require.NoError(t, err)
	assert.Equal(t, StatusPromoted, v.Status)
	assert.NotNil(t, v.PromotedAt)

	_, err = c.Promote(ctx, "v_missing")
	require.ErrorIs(t, err, ErrViewNotFound)
}

func TestArchive(t *testing.T) {
	c, _ := setupCatalog(t)
	ctx := context.Background()

	mustRegister(t, c, newView("v_retired", DomainRisk, "merchants"))

	changed, err := c.Archive(ctx, "v_retired")
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = c.Archive(ctx, "v_retired")
	require.NoError(t, err)
	assert.False(t, changed)

	// Archived views can no longer be promoted
	changed, err = c.Promote(ctx, "v_retired")
	require.NoError(t, err)
	assert.False(t, changed)

	v, err := c.FindByName(ctx, "v_retired")
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, StatusArchived, v.Status)
}

func TestFindByDomainOrdering(t *testing.T) {
	c, _ := setupCatalog(t)
	ctx := context.Background()

	low := newView("v_fraud_low", DomainFraud, "transactions")
	low.UsageCount = 1
	high := newView("v_fraud_high", DomainFraud, "transactions")
	high.UsageCount = 5
	other := newView("v_merchant_top", DomainMerchant, "merchants")
	other.UsageCount = 10
	tie := newView("v_fraud_tie", DomainFraud, "customers")
	tie.UsageCount = 1
	tie.Layer = LayerCompound

	for _, v := range []*View{low, high, other, tie} {
		mustRegister(t, c, v)
	}

	views, err := c.FindByDomain(ctx, DomainFraud, 0)
	require.NoError(t, err)

	names := make([]string, 0, len(views))
	for _, v := range views {
		assert.Equal(t, DomainFraud, v.Domain)
		names = append(names, v.Name)
	}

	// Equal usage falls back to the most recently created
	assert.Equal(t, []string{"v_fraud_high", "v_fraud_tie", "v_fraud_low"}, names)

	compound, err := c.FindByDomain(ctx, DomainFraud, LayerCompound)
	require.NoError(t, err)
	require.Len(t, compound, 1)
	assert.Equal(t, "v_fraud_tie", compound[0].Name)
}

func TestFindByBaseTables(t *testing.T) {
	c, _ := setupCatalog(t)
	ctx := context.Background()

	mustRegister(t, c, newView("v_tx", DomainFraud, "transactions"))
	mustRegister(t, c, newView("v_merchant", DomainMerchant, "merchants", "mcc_codes"))
	mustRegister(t, c, newView("v_customer", DomainCustomer, "customers"))

	views, err := c.FindByBaseTables(ctx, []string{"mcc_codes", "transactions"})
	require.NoError(t, err)

	names := make([]string, 0, len(views))
	for _, v := range views {
		names = append(names, v.Name)
	}

	assert.ElementsMatch(t, []string{"v_tx", "v_merchant"}, names)

	empty, err := c.FindByBaseTables(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestUpdate(t *testing.T) {
	var fired []string

	c, _ := setupCatalog(t)
	c.OnChange(func(_ context.Context, name string) { fired = append(fired, name) })

	ctx := context.Background()
	mustRegister(t, c, newView("v_editable", DomainFraud, "transactions"))

	definition := "SELECT 2"
	v, err := c.Update(ctx, "v_editable", &ViewUpdate{ViewDefinition: &definition})
	require.NoError(t, err)
	assert.Equal(t, "SELECT 2", v.ViewDefinition)
	assert.Empty(t, fired)

	description := "High value card-not-present transactions"
	tables := []string{"merchants"}
	v, err = c.Update(ctx, "v_editable", &ViewUpdate{Description: &description, BaseTables: &tables})
	require.NoError(t, err)
	assert.Equal(t, description, v.Description)
	assert.Equal(t, []string{"merchants"}, v.BaseTables)
	assert.Equal(t, StatusDraft, v.Status)
	assert.Equal(t, []string{"v_editable"}, fired)

	byOldTable, err := c.FindByBaseTables(ctx, []string{"transactions"})
	require.NoError(t, err)
	assert.Empty(t, byOldTable)

	byNewTable, err := c.FindByBaseTables(ctx, []string{"merchants"})
	require.NoError(t, err)
	assert.Len(t, byNewTable, 1)

	_, err = c.Update(ctx, "v_missing", &ViewUpdate{Description: &description})
	require.ErrorIs(t, err, ErrViewNotFound)

	badTables := []string{"ledger"}
	_, err = c.Update(ctx, "v_editable", &ViewUpdate{BaseTables: &badTables})
	require.ErrorIs(t, err, ErrInvalidView)
}

func TestUpdateDomainMovesIndex(t *testing.T) {
	c, _ := setupCatalog(t)
	ctx := context.Background()

	mustRegister(t, c, newView("v_moving", DomainFraud, "transactions"))

	domain := DomainRisk
	_, err := c.Update(ctx, "v_moving", &ViewUpdate{Domain: &domain})
	require.NoError(t, err)

	fraud, err := c.FindByDomain(ctx, DomainFraud, 0)
	require.NoError(t, err)
	assert.Empty(t, fraud)

	risk, err := c.FindByDomain(ctx, DomainRisk, 0)
	require.NoError(t, err)
	assert.Len(t, risk, 1)
}

func TestUpdateDependencies(t *testing.T) {
	c, _ := setupCatalog(t)
	ctx := context.Background()

	mustRegister(t, c, newView("v_a", DomainFraud, "transactions"))

	b := newView("v_b", DomainFraud, "transactions")
	b.DependsOnViews = []string{"v_a"}
	mustRegister(t, c, b)

	deps := []string{"v_b"}
	_, err := c.Update(ctx, "v_a", &ViewUpdate{DependsOnViews: &deps})
	require.ErrorIs(t, err, ErrDependencyCycle)

	unknown := []string{"v_zzz"}
	_, err = c.Update(ctx, "v_a", &ViewUpdate{DependsOnViews: &unknown})
	require.ErrorIs(t, err, ErrUnknownDependency)

	none := []string{}
	_, err = c.Update(ctx, "v_b", &ViewUpdate{DependsOnViews: &none})
	require.NoError(t, err)

	a, err := c.FindByName(ctx, "v_a")
	require.NoError(t, err)
	assert.Empty(t, a.UsedByViews)

	// With the edge gone the reverse dependency is allowed
	_, err = c.Update(ctx, "v_a", &ViewUpdate{DependsOnViews: &deps})
	require.NoError(t, err)

	b2, err := c.FindByName(ctx, "v_b")
	require.NoError(t, err)
	assert.Equal(t, []string{"v_a"}, b2.UsedByViews)
}

func TestUpdateConcurrentDependenciesNeverFormCycle(t *testing.T) {
	c, _ := setupCatalog(t)
	ctx := context.Background()

	for i := 0; i < 25; i++ {
		a := fmt.Sprintf("v_left_%d", i)
		b := fmt.Sprintf("v_right_%d", i)

		mustRegister(t, c, newView(a, DomainFraud, "transactions"))
		mustRegister(t, c, newView(b, DomainFraud, "merchants"))

		var (
			wg   sync.WaitGroup
			errs = make([]error, 2)
		)

		edits := [][2]string{{a, b}, {b, a}}
		for j, edit := range edits {
			wg.Add(1)

			go func(j int, name, dep string) {
				defer wg.Done()

				deps := []string{dep}
				_, errs[j] = c.Update(ctx, name, &ViewUpdate{DependsOnViews: &deps})
			}(j, edit[0], edit[1])
		}

		wg.Wait()

		failed := 0

		for _, err := range errs {
			if err != nil {
				require.ErrorIs(t, err, ErrDependencyCycle)

				failed++
			}
		}

		assert.Equal(t, 1, failed, "exactly one of the opposing edits must lose")

		lineage, err := c.Lineage(ctx, a)
		require.NoError(t, err)
		require.NotNil(t, lineage)
	}

	levels, err := c.LineageLevels(ctx)
	require.NoError(t, err)
	assert.Equal(t, 50, levels.TotalViews)
}

func TestUpdateDuringUsageIncrements(t *testing.T) {
	c, _ := setupCatalog(t)
	ctx := context.Background()

	mustRegister(t, c, newView("v_busy", DomainFraud, "transactions"))

	done := make(chan struct{})
	stopped := make(chan struct{})

	go func() {
		defer close(stopped)

		for {
			select {
			case <-done:
				return
			default:
				_, _, err := c.IncrementUsage(ctx, "v_busy")
				assert.NoError(t, err)
			}
		}
	}()

	for i := 0; i < 100; i++ {
		description := fmt.Sprintf("revision %d", i)
		_, err := c.Update(ctx, "v_busy", &ViewUpdate{Description: &description})
		require.NoError(t, err)
	}

	close(done)
	<-stopped

	v, err := c.FindByName(ctx, "v_busy")
	require.NoError(t, err)
	assert.Equal(t, "revision 99", v.Description)
	assert.Positive(t, v.UsageCount)
}

func TestTransitionsMoveStatusIndex(t *testing.T) {
	c, _ := setupCatalog(t)
	ctx := context.Background()

	mustRegister(t, c, newView("v_lifecycle", DomainFraud, "transactions"))

	names := func(st Status) []string {
		views, err := c.List(ctx, Filter{Status: st})
		require.NoError(t, err)

		out := make([]string, 0, len(views))
		for _, v := range views {
			out = append(out, v.Name)
		}

		return out
	}

	assert.Equal(t, []string{"v_lifecycle"}, names(StatusDraft))

	changed, err := c.Promote(ctx, "v_lifecycle")
	require.NoError(t, err)
	require.True(t, changed)
	assert.Empty(t, names(StatusDraft))
	assert.Equal(t, []string{"v_lifecycle"}, names(StatusPromoted))

	changed, err = c.Archive(ctx, "v_lifecycle")
	require.NoError(t, err)
	require.True(t, changed)
	assert.Empty(t, names(StatusPromoted))
	assert.Equal(t, []string{"v_lifecycle"}, names(StatusArchived))
}

func TestLineage(t *testing.T) {
	c, _ := setupCatalog(t)
	ctx := context.Background()

	mustRegister(t, c, newView("v_root", DomainFraud, "transactions"))

	mid := newView("v_mid", DomainFraud, "transactions", "merchants")
	mid.DependsOnViews = []string{"v_root"}
	mustRegister(t, c, mid)

	leaf := newView("v_leaf", DomainFraud, "merchants")
	leaf.DependsOnViews = []string{"v_mid", "v_root"}
	mustRegister(t, c, leaf)

	lineage, err := c.Lineage(ctx, "v_leaf")
	require.NoError(t, err)
	require.NotNil(t, lineage)
	assert.Equal(t, 2, lineage.Depth)
	assert.Len(t, lineage.Upstream, 2)
	assert.Empty(t, lineage.Downstream)
	assert.Equal(t, []string{"merchants"}, lineage.BaseTables)

	root, err := c.Lineage(ctx, "v_root")
	require.NoError(t, err)
	assert.Equal(t, 0, root.Depth)
	require.Len(t, root.Downstream, 2)
	assert.Equal(t, "v_leaf", root.Downstream[0].Name)
	assert.Equal(t, "v_mid", root.Downstream[1].Name)

	missing, err := c.Lineage(ctx, "v_missing")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestStatistics(t *testing.T) {
	c, _ := setupCatalog(t)
	ctx := context.Background()

	popular := newView("v_popular", DomainMerchant, "merchants")
	popular.UsageCount = 7
	popular.Layer = LayerResearch

	mustRegister(t, c, newView("v_one", DomainFraud, "transactions"))
	mustRegister(t, c, popular)
	mustRegister(t, c, newView("v_two", DomainFraud, "customers"))

	_, err := c.Archive(ctx, "v_two")
	require.NoError(t, err)

	stats, err := c.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalViews)
	assert.Equal(t, 2, stats.ByDomain[DomainFraud])
	assert.Equal(t, 1, stats.ByLayer[LayerResearch])
	assert.Equal(t, 1, stats.ByStatus[StatusArchived])
	assert.Equal(t, int64(7), stats.TotalUsage)
	require.NotNil(t, stats.MostUsed)
	assert.Equal(t, "v_popular", stats.MostUsed.Name)
}

func TestMarkValidated(t *testing.T) {
	c, _ := setupCatalog(t)
	ctx := context.Background()

	rec := mustRegister(t, c, newView("v_checked", DomainFraud, "transactions"))

	v, err := c.MarkValidated(ctx, "v_checked", false)
	require.NoError(t, err)
	assert.False(t, v.IsValid)
	assert.True(t, v.LastValidated.After(*rec.LastValidated))
}

func TestSummary(t *testing.T) {
	v := newView("v_merchant_risk", DomainMerchant, "merchants", "mcc_codes")
	v.Description = "risk by category"

	assert.Equal(t, "v_merchant_risk (L1, merchant): risk by category [tables: merchants, mcc_codes]", v.Summary())
}
