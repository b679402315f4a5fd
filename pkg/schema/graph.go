// Package schema models database tables as a weighted join graph
package schema

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
	"gonum.org/v1/gonum/graph/traverse"
)

// Graph is an immutable snapshot of tables and their foreign-key relationships.
// Traversal happens over the undirected projection, weighted by the relative size
// of the joined tables.
type Graph struct {
	tables map[string]Table
	ids    map[string]int64
	names  map[int64]string
	keys   []ForeignKey
	g      *simple.WeightedUndirectedGraph
}

func newGraph() *Graph {
	return &Graph{
		tables: make(map[string]Table),
		ids:    make(map[string]int64),
		names:  make(map[int64]string),
		g:      simple.NewWeightedUndirectedGraph(0, math.Inf(1)),
	}
}

// Build creates a graph from table metadata and declared foreign keys.
// A key referencing a table missing from tables fails with ErrTableNotFound.
func Build(tables []Table, foreignKeys []ForeignKey) (*Graph, error) {
	g := newGraph()
	for _, t := range tables {
		g.addTable(t)
	}

	var maxRows int64
	for _, t := range g.tables {
		if t.RowCount > maxRows {
			maxRows = t.RowCount
		}
	}

	for _, fk := range foreignKeys {
		from, ok := g.tables[fk.FromTable]
		if !ok {
			return nil, fmt.Errorf("%w: %s (foreign key %s.%s)", ErrTableNotFound, fk.FromTable, fk.FromTable, fk.FromColumn)
		}

		to, ok := g.tables[fk.ToTable]
		if !ok {
			return nil, fmt.Errorf("%w: %s (referenced by %s.%s)", ErrTableNotFound, fk.ToTable, fk.FromTable, fk.FromColumn)
		}

		g.addForeignKey(fk, JoinWeight(from.RowCount, to.RowCount, maxRows))
	}

	return g, nil
}

// JoinWeight is the traversal cost of joining two tables: their mean row count
// relative to the largest table, or 1 when no table has rows.
func JoinWeight(fromRows, toRows, maxRows int64) float64 {
	if maxRows <= 0 {
		return 1.0
	}

	return float64(fromRows+toRows) / (2 * float64(maxRows))
}

func (g *Graph) addTable(t Table) {
	if _, exists := g.ids[t.Name]; !exists {
		id := int64(len(g.ids))
		g.ids[t.Name] = id
		g.names[id] = t.Name
		g.g.AddNode(simple.Node(id))
	}

	g.tables[t.Name] = t
}

func (g *Graph) addForeignKey(fk ForeignKey, weight float64) {
	g.keys = append(g.keys, fk)

	// Self references are kept as metadata but never traversed
	if fk.FromTable == fk.ToTable {
		return
	}

	from := simple.Node(g.ids[fk.FromTable])
	to := simple.Node(g.ids[fk.ToTable])
	g.g.SetWeightedEdge(g.g.NewWeightedEdge(from, to, weight))
}

// Current returns the graph itself so a bare graph satisfies Provider
func (g *Graph) Current() *Graph {
	return g
}

// HasTable reports whether name is a node of the graph
func (g *Graph) HasTable(name string) bool {
	_, ok := g.tables[name]
	return ok
}

// Table returns the metadata of one table
func (g *Graph) Table(name string) (Table, error) {
	t, ok := g.tables[name]
	if !ok {
		return Table{}, fmt.Errorf("%w: %s", ErrTableNotFound, name)
	}

	return t, nil
}

// Tables returns all tables ordered by name
func (g *Graph) Tables() []Table {
	out := make([]Table, 0, len(g.tables))
	for _, t := range g.tables {
		out = append(out, t)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })

	return out
}

// TableNames returns all table names in sorted order
func (g *Graph) TableNames() []string {
	out := make([]string, 0, len(g.tables))
	for name := range g.tables {
		out = append(out, name)
	}

	sort.Strings(out)

	return out
}

// ForeignKeys returns every declared foreign key in declaration order
func (g *Graph) ForeignKeys() []ForeignKey {
	out := make([]ForeignKey, len(g.keys))
	copy(out, g.keys)

	return out
}

// ForeignKeysOf lists the keys leaving name followed by the keys referencing it
func (g *Graph) ForeignKeysOf(name string) ([]ForeignKeyRef, error) {
	if !g.HasTable(name) {
		return nil, fmt.Errorf("%w: %s", ErrTableNotFound, name)
	}

	out := make([]ForeignKeyRef, 0)
	for _, fk := range g.keys {
		if fk.FromTable == name {
			out = append(out, ForeignKeyRef{ForeignKey: fk, Direction: DirectionOutgoing})
		}
	}

	for _, fk := range g.keys {
		if fk.ToTable == name {
			out = append(out, ForeignKeyRef{ForeignKey: fk, Direction: DirectionIncoming})
		}
	}

	return out, nil
}

// Edges returns the undirected traversal edges, endpoints ordered by name
func (g *Graph) Edges() []Edge {
	out := make([]Edge, 0)

	edges := g.g.WeightedEdges()
	for edges.Next() {
		e := edges.WeightedEdge()
		a, b := g.names[e.From().ID()], g.names[e.To().ID()]
		if b < a {
			a, b = b, a
		}

		out = append(out, Edge{From: a, To: b, Weight: e.Weight()})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].From != out[j].From {
			return out[i].From < out[j].From
		}

		return out[i].To < out[j].To
	})

	return out
}

// ShortestPath returns the cheapest sequence of tables joining a to b, both inclusive
func (g *Graph) ShortestPath(a, b string) ([]string, error) {
	ida, idb, err := g.lookupPair(a, b)
	if err != nil {
		return nil, err
	}

	ids, _ := ShortestPaths(g.g, ida, g.label).To(idb)
	if ids == nil {
		return nil, fmt.Errorf("%w: %s -> %s", ErrNoPath, a, b)
	}

	return g.namesOf(ids), nil
}

// JoinCost returns the weight of the direct edge between a and b when one exists,
// otherwise the cost of the shortest path, or +Inf when they are disconnected.
func (g *Graph) JoinCost(a, b string) (float64, error) {
	ida, idb, err := g.lookupPair(a, b)
	if err != nil {
		return 0, err
	}

	if w, ok := g.g.Weight(ida, idb); ok {
		return w, nil
	}

	return ShortestPaths(g.g, ida, g.label).WeightTo(idb), nil
}

// ConnectedTables lists tables reachable from name within maxDepth hops, excluding
// name itself, in sorted order.
func (g *Graph) ConnectedTables(name string, maxDepth int) ([]string, error) {
	id, ok := g.ids[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTableNotFound, name)
	}

	out := make([]string, 0)
	if maxDepth < 1 {
		return out, nil
	}

	var bfs traverse.BreadthFirst
	bfs.Walk(g.g, simple.Node(id), func(n graph.Node, depth int) bool {
		if depth > maxDepth {
			return true
		}

		if n.ID() != id {
			out = append(out, g.names[n.ID()])
		}

		return false
	})

	sort.Strings(out)

	return out, nil
}

// Subgraph returns the graph induced by the given tables. Unknown names are ignored
// and edge weights are carried over unchanged.
func (g *Graph) Subgraph(tables []string) *Graph {
	sub := newGraph()
	for _, name := range tables {
		if t, ok := g.tables[name]; ok {
			sub.addTable(t)
		}
	}

	for _, fk := range g.keys {
		if !sub.HasTable(fk.FromTable) || !sub.HasTable(fk.ToTable) {
			continue
		}

		w, _ := g.g.Weight(g.ids[fk.FromTable], g.ids[fk.ToTable])
		sub.addForeignKey(fk, w)
	}

	return sub
}

// Components returns the connected components of the undirected projection,
// largest first. Tables inside a component are sorted.
func (g *Graph) Components() [][]string {
	raw := topo.ConnectedComponents(g.g)

	out := make([][]string, 0, len(raw))
	for _, nodes := range raw {
		names := make([]string, 0, len(nodes))
		for _, n := range nodes {
			names = append(names, g.names[n.ID()])
		}

		sort.Strings(names)
		out = append(out, names)
	}

	sort.Slice(out, func(i, j int) bool {
		if len(out[i]) != len(out[j]) {
			return len(out[i]) > len(out[j])
		}

		return out[i][0] < out[j][0]
	})

	return out
}

// Statistics summarizes table and key counts, connectivity and degree
func (g *Graph) Statistics() Statistics {
	pairs := make(map[[2]string]struct{}, len(g.keys))
	for _, fk := range g.keys {
		pairs[[2]string{fk.FromTable, fk.ToTable}] = struct{}{}
	}

	var rows int64
	for _, t := range g.tables {
		rows += t.RowCount
	}

	stats := Statistics{
		Tables:      len(g.tables),
		ForeignKeys: len(pairs),
		TotalRows:   rows,
	}

	if stats.Tables == 0 {
		return stats
	}

	stats.Components = len(topo.ConnectedComponents(g.g))
	stats.IsConnected = stats.Components == 1
	// Every directed key adds one to the out-degree and one to the in-degree
	stats.AvgDegree = 2 * float64(stats.ForeignKeys) / float64(stats.Tables)

	return stats
}

func (g *Graph) lookupPair(a, b string) (ida, idb int64, err error) {
	ida, ok := g.ids[a]
	if !ok {
		return 0, 0, fmt.Errorf("%w: %s", ErrTableNotFound, a)
	}

	idb, ok = g.ids[b]
	if !ok {
		return 0, 0, fmt.Errorf("%w: %s", ErrTableNotFound, b)
	}

	return ida, idb, nil
}

func (g *Graph) label(id int64) string {
	return g.names[id]
}

func (g *Graph) namesOf(ids []int64) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = g.names[id]
	}

	return out
}
