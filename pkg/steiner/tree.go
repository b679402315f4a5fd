package steiner

import (
	"math"
	"sort"

	"github.com/ethpandaops/viewgraph/pkg/catalog"
	"github.com/ethpandaops/viewgraph/pkg/schema"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

// workGraph is the graph a solve runs on: the undirected schema projection,
// optionally extended with view nodes joined to their base tables at zero cost.
type workGraph struct {
	g     *simple.WeightedUndirectedGraph
	ids   map[string]int64
	names map[int64]string
	views map[int64]*catalog.View
}

type treeEdge struct {
	u, v   int64
	weight float64
}

func newWorkGraph(sg *schema.Graph) *workGraph {
	w := &workGraph{
		g:     simple.NewWeightedUndirectedGraph(0, math.Inf(1)),
		ids:   make(map[string]int64),
		names: make(map[int64]string),
		views: make(map[int64]*catalog.View),
	}

	for _, name := range sg.TableNames() {
		w.addNode(name)
	}

	for _, e := range sg.Edges() {
		w.g.SetWeightedEdge(w.g.NewWeightedEdge(simple.Node(w.ids[e.From]), simple.Node(w.ids[e.To]), e.Weight))
	}

	return w
}

func (w *workGraph) addNode(name string) int64 {
	id := int64(len(w.ids))
	w.ids[name] = id
	w.names[id] = name
	w.g.AddNode(simple.Node(id))

	return id
}

// addView links v to each of its base tables present in the graph. It reports
// false when the view name is already taken by another node.
func (w *workGraph) addView(v *catalog.View) bool {
	if _, taken := w.ids[v.Name]; taken {
		return false
	}

	id := w.addNode(v.Name)
	w.views[id] = v

	for _, table := range v.BaseTables {
		tid, ok := w.ids[table]
		if !ok || w.views[tid] != nil {
			continue
		}

		w.g.SetWeightedEdge(w.g.NewWeightedEdge(simple.Node(id), simple.Node(tid), 0))
	}

	return true
}

func (w *workGraph) label(id int64) string {
	return w.names[id]
}

func (w *workGraph) size() int {
	return len(w.ids)
}

func (w *workGraph) isView(id int64) bool {
	return w.views[id] != nil
}

// edge orders the endpoints by name so equal edges compare equal
func (w *workGraph) edge(u, v int64, weight float64) treeEdge {
	if w.names[u] > w.names[v] {
		u, v = v, u
	}

	return treeEdge{u: u, v: v, weight: weight}
}

// pickComponent keeps the terminals of the component holding the most of them.
// Ties go to the larger component, then to the one with the smallest node name.
func (w *workGraph) pickComponent(terminals []string) (kept, dropped []string) {
	type candidate struct {
		members map[int64]bool
		count   int
		size    int
		first   string
	}

	var best *candidate

	for _, comp := range topo.ConnectedComponents(w.g) {
		c := &candidate{members: make(map[int64]bool, len(comp)), size: len(comp)}

		for _, n := range comp {
			c.members[n.ID()] = true

			if name := w.names[n.ID()]; c.first == "" || name < c.first {
				c.first = name
			}
		}

		for _, t := range terminals {
			if c.members[w.ids[t]] {
				c.count++
			}
		}

		if c.count == 0 {
			continue
		}

		if best == nil ||
			c.count > best.count ||
			(c.count == best.count && c.size > best.size) ||
			(c.count == best.count && c.size == best.size && c.first < best.first) {
			best = c
		}
	}

	for _, t := range terminals {
		if best != nil && best.members[w.ids[t]] {
			kept = append(kept, t)
		} else {
			dropped = append(dropped, t)
		}
	}

	return kept, dropped
}

// connected reports whether all names sit in one component
func (w *workGraph) connected(names []string) bool {
	if len(names) < 2 {
		return true
	}

	tree := schema.ShortestPaths(w.g, w.ids[names[0]], w.label)
	for _, name := range names[1:] {
		if !tree.Reachable(w.ids[name]) {
			return false
		}
	}

	return true
}

// steinerTree approximates the minimum tree spanning terminals, which must all
// be connected. It builds the shortest-path metric closure over the terminals,
// takes its spanning tree, expands each closure edge into its path, spans the
// union again and prunes non-terminal leaves.
func (w *workGraph) steinerTree(terminals []string) []treeEdge {
	if len(terminals) < 2 {
		return nil
	}

	ids := make([]int64, len(terminals))
	keep := make(map[int64]bool, len(terminals))
	trees := make(map[int64]*schema.PathTree, len(terminals))

	for i, t := range terminals {
		ids[i] = w.ids[t]
		keep[ids[i]] = true
		trees[ids[i]] = schema.ShortestPaths(w.g, ids[i], w.label)
	}

	closure := make([]treeEdge, 0, len(ids)*(len(ids)-1)/2)
	for i := range ids {
		for j := i + 1; j < len(ids); j++ {
			closure = append(closure, w.edge(ids[i], ids[j], trees[ids[i]].WeightTo(ids[j])))
		}
	}

	union := make(map[[2]int64]treeEdge)

	for _, e := range w.spanningTree(closure) {
		path, _ := trees[e.u].To(e.v)

		for k := 1; k < len(path); k++ {
			weight, _ := w.g.Weight(path[k-1], path[k])
			te := w.edge(path[k-1], path[k], weight)
			union[[2]int64{te.u, te.v}] = te
		}
	}

	expanded := make([]treeEdge, 0, len(union))
	for _, e := range union {
		expanded = append(expanded, e)
	}

	return prune(w.spanningTree(expanded), keep)
}

// spanningTree runs Kruskal over edges. Equal weights resolve by endpoint names.
func (w *workGraph) spanningTree(edges []treeEdge) []treeEdge {
	sorted := append([]treeEdge(nil), edges...)
	sort.Slice(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.weight != b.weight {
			return a.weight < b.weight
		}

		if w.names[a.u] != w.names[b.u] {
			return w.names[a.u] < w.names[b.u]
		}

		return w.names[a.v] < w.names[b.v]
	})

	sets := newDisjointSet()
	tree := make([]treeEdge, 0, len(sorted))

	for _, e := range sorted {
		if sets.union(e.u, e.v) {
			tree = append(tree, e)
		}
	}

	return tree
}

// prune repeatedly drops leaves that are not in keep
func prune(edges []treeEdge, keep map[int64]bool) []treeEdge {
	for {
		degree := make(map[int64]int)
		for _, e := range edges {
			degree[e.u]++
			degree[e.v]++
		}

		out := make([]treeEdge, 0, len(edges))
		for _, e := range edges {
			if (degree[e.u] == 1 && !keep[e.u]) || (degree[e.v] == 1 && !keep[e.v]) {
				continue
			}

			out = append(out, e)
		}

		if len(out) == len(edges) {
			return out
		}

		edges = out
	}
}

func treeCost(edges []treeEdge) float64 {
	var total float64
	for _, e := range edges {
		total += e.weight
	}

	return math.Round(total*1e4) / 1e4
}

type disjointSet struct {
	parent map[int64]int64
	rank   map[int64]int
}

func newDisjointSet() *disjointSet {
	return &disjointSet{
		parent: make(map[int64]int64),
		rank:   make(map[int64]int),
	}
}

func (d *disjointSet) find(x int64) int64 {
	p, ok := d.parent[x]
	if !ok {
		d.parent[x] = x
		return x
	}

	if p != x {
		p = d.find(p)
		d.parent[x] = p
	}

	return p
}

// union merges the sets of a and b, reporting false when they were already joined
func (d *disjointSet) union(a, b int64) bool {
	ra, rb := d.find(a), d.find(b)
	if ra == rb {
		return false
	}

	switch {
	case d.rank[ra] < d.rank[rb]:
		d.parent[ra] = rb
	case d.rank[ra] > d.rank[rb]:
		d.parent[rb] = ra
	default:
		d.parent[rb] = ra
		d.rank[ra]++
	}

	return true
}
