package schema

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fraudTables() []Table {
	return []Table{
		{Name: "transactions", RowCount: 1000, Columns: []string{"transaction_id", "merchant_id", "channel_id", "amount"}},
		{Name: "merchants", RowCount: 1000, Columns: []string{"merchant_id", "mcc_code", "name"}},
		{Name: "channels", RowCount: 1000, Columns: []string{"channel_id", "name"}},
		{Name: "mcc_codes", RowCount: 1000, Columns: []string{"mcc_code", "description"}},
	}
}

func fraudKeys() []ForeignKey {
	return []ForeignKey{
		{FromTable: "transactions", FromColumn: "merchant_id", ToTable: "merchants", ToColumn: "merchant_id"},
		{FromTable: "transactions", FromColumn: "channel_id", ToTable: "channels", ToColumn: "channel_id"},
		{FromTable: "merchants", FromColumn: "mcc_code", ToTable: "mcc_codes", ToColumn: "mcc_code"},
	}
}

func buildFraudGraph(t *testing.T) *Graph {
	t.Helper()

	g, err := Build(fraudTables(), fraudKeys())
	require.NoError(t, err)

	return g
}

func TestBuild(t *testing.T) {
	g := buildFraudGraph(t)

	assert.Equal(t, []string{"channels", "mcc_codes", "merchants", "transactions"}, g.TableNames())
	assert.Len(t, g.Edges(), 3)

	for _, e := range g.Edges() {
		assert.InDelta(t, 1.0, e.Weight, 1e-9)
	}
}

func TestBuildUnknownTable(t *testing.T) {
	_, err := Build(fraudTables(), []ForeignKey{
		{FromTable: "transactions", FromColumn: "customer_id", ToTable: "customers", ToColumn: "customer_id"},
	})
	require.ErrorIs(t, err, ErrTableNotFound)
}

func TestJoinWeight(t *testing.T) {
	tests := []struct {
		name     string
		from, to int64
		max      int64
		expected float64
	}{
		{name: "equal sizes", from: 100, to: 100, max: 100, expected: 1.0},
		{name: "small tables", from: 10, to: 30, max: 100, expected: 0.2},
		{name: "empty schema", from: 0, to: 0, max: 0, expected: 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, JoinWeight(tt.from, tt.to, tt.max), 1e-9)
		})
	}
}

func TestShortestPath(t *testing.T) {
	g := buildFraudGraph(t)

	path, err := g.ShortestPath("channels", "mcc_codes")
	require.NoError(t, err)
	assert.Equal(t, []string{"channels", "transactions", "merchants", "mcc_codes"}, path)

	path, err = g.ShortestPath("merchants", "merchants")
	require.NoError(t, err)
	assert.Equal(t, []string{"merchants"}, path)

	_, err = g.ShortestPath("merchants", "missing")
	require.ErrorIs(t, err, ErrTableNotFound)
}

func TestShortestPathDisconnected(t *testing.T) {
	tables := append(fraudTables(), Table{Name: "audit_log", RowCount: 10})
	g, err := Build(tables, fraudKeys())
	require.NoError(t, err)

	_, err = g.ShortestPath("transactions", "audit_log")
	require.ErrorIs(t, err, ErrNoPath)

	cost, err := g.JoinCost("transactions", "audit_log")
	require.NoError(t, err)
	assert.True(t, math.IsInf(cost, 1))
}

func TestJoinCost(t *testing.T) {
	g := buildFraudGraph(t)

	tests := []struct {
		a, b     string
		expected float64
	}{
		{a: "transactions", b: "merchants", expected: 1.0},
		{a: "transactions", b: "mcc_codes", expected: 2.0},
		{a: "channels", b: "mcc_codes", expected: 3.0},
		{a: "channels", b: "channels", expected: 0},
	}

	for _, tt := range tests {
		t.Run(tt.a+"_"+tt.b, func(t *testing.T) {
			cost, err := g.JoinCost(tt.a, tt.b)
			require.NoError(t, err)
			assert.InDelta(t, tt.expected, cost, 1e-9)
		})
	}
}

func TestJoinCostPrefersCheaperPath(t *testing.T) {
	tables := []Table{
		{Name: "a", RowCount: 100},
		{Name: "b", RowCount: 10},
		{Name: "c", RowCount: 1000},
		{Name: "d", RowCount: 100},
	}
	keys := []ForeignKey{
		{FromTable: "a", ToTable: "c"},
		{FromTable: "c", ToTable: "d"},
		{FromTable: "a", ToTable: "b"},
		{FromTable: "b", ToTable: "d"},
	}

	g, err := Build(tables, keys)
	require.NoError(t, err)

	path, err := g.ShortestPath("a", "d")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "d"}, path)

	cost, err := g.JoinCost("a", "d")
	require.NoError(t, err)
	assert.InDelta(t, 0.11, cost, 1e-9)

	cost, err = g.JoinCost("a", "c")
	require.NoError(t, err)
	assert.InDelta(t, 0.55, cost, 1e-9)
}

func TestConnectedTables(t *testing.T) {
	g := buildFraudGraph(t)

	tests := []struct {
		name     string
		depth    int
		expected []string
	}{
		{name: "zero depth", depth: 0, expected: []string{}},
		{name: "direct neighbours", depth: 1, expected: []string{"channels", "merchants"}},
		{name: "two hops", depth: 2, expected: []string{"channels", "mcc_codes", "merchants"}},
		{name: "beyond diameter", depth: 10, expected: []string{"channels", "mcc_codes", "merchants"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := g.ConnectedTables("transactions", tt.depth)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}

	_, err := g.ConnectedTables("missing", 2)
	require.ErrorIs(t, err, ErrTableNotFound)
}

func TestSubgraph(t *testing.T) {
	g := buildFraudGraph(t)

	sub := g.Subgraph([]string{"transactions", "merchants", "unknown"})
	assert.Equal(t, []string{"merchants", "transactions"}, sub.TableNames())
	require.Len(t, sub.Edges(), 1)
	assert.InDelta(t, 1.0, sub.Edges()[0].Weight, 1e-9)
}

func TestStatistics(t *testing.T) {
	g := buildFraudGraph(t)

	stats := g.Statistics()
	assert.Equal(t, 4, stats.Tables)
	assert.Equal(t, 3, stats.ForeignKeys)
	assert.True(t, stats.IsConnected)
	assert.Equal(t, 1, stats.Components)
	assert.InDelta(t, 1.5, stats.AvgDegree, 1e-9)
	assert.Equal(t, int64(4000), stats.TotalRows)
}

func TestStatisticsCountsDistinctPairs(t *testing.T) {
	keys := append(fraudKeys(),
		ForeignKey{FromTable: "transactions", FromColumn: "refund_merchant_id", ToTable: "merchants", ToColumn: "merchant_id"},
		ForeignKey{FromTable: "merchants", FromColumn: "parent_id", ToTable: "merchants", ToColumn: "merchant_id"},
	)
	tables := append(fraudTables(), Table{Name: "audit_log"})

	g, err := Build(tables, keys)
	require.NoError(t, err)

	stats := g.Statistics()
	assert.Equal(t, 4, stats.ForeignKeys)
	assert.False(t, stats.IsConnected)
	assert.Equal(t, 2, stats.Components)
	assert.Len(t, g.Edges(), 3)
}

func TestStatisticsEmpty(t *testing.T) {
	g, err := Build(nil, nil)
	require.NoError(t, err)

	stats := g.Statistics()
	assert.Equal(t, 0, stats.Tables)
	assert.False(t, stats.IsConnected)
	assert.Zero(t, stats.AvgDegree)
}

func TestForeignKeysOf(t *testing.T) {
	g := buildFraudGraph(t)

	refs, err := g.ForeignKeysOf("merchants")
	require.NoError(t, err)
	require.Len(t, refs, 2)
	assert.Equal(t, DirectionOutgoing, refs[0].Direction)
	assert.Equal(t, "mcc_codes", refs[0].ToTable)
	assert.Equal(t, DirectionIncoming, refs[1].Direction)
	assert.Equal(t, "transactions", refs[1].FromTable)

	_, err = g.ForeignKeysOf("missing")
	require.ErrorIs(t, err, ErrTableNotFound)
}

func TestComponents(t *testing.T) {
	tables := append(fraudTables(), Table{Name: "audit_log"}, Table{Name: "aaa_orphan"})
	g, err := Build(tables, fraudKeys())
	require.NoError(t, err)

	comps := g.Components()
	require.Len(t, comps, 3)
	assert.Equal(t, []string{"channels", "mcc_codes", "merchants", "transactions"}, comps[0])
	assert.Equal(t, []string{"aaa_orphan"}, comps[1])
	assert.Equal(t, []string{"audit_log"}, comps[2])
}

func TestHolderSwap(t *testing.T) {
	h := NewHolder(nil)
	assert.False(t, h.HasTable("transactions"))

	h.Swap(buildFraudGraph(t))
	assert.True(t, h.HasTable("transactions"))
	assert.Equal(t, 4, h.Current().Statistics().Tables)
}
