package schema

import (
	"container/heap"
	"math"
	"sort"

	"gonum.org/v1/gonum/graph"
)

// PathTree holds single-source shortest paths over a weighted undirected graph.
// Equal-cost alternatives resolve towards the lexicographically smaller label,
// so repeated runs over the same graph always return the same paths.
type PathTree struct {
	source int64
	dist   map[int64]float64
	prev   map[int64]int64
}

// ShortestPaths runs Dijkstra from source over g. label names nodes for tie-breaking.
func ShortestPaths(g graph.WeightedUndirected, source int64, label func(int64) string) *PathTree {
	tree := &PathTree{
		source: source,
		dist:   map[int64]float64{source: 0},
		prev:   make(map[int64]int64),
	}

	done := make(map[int64]bool)
	pq := &pathQueue{label: label}
	heap.Push(pq, queued{id: source, dist: 0})

	for pq.Len() > 0 {
		cur, _ := heap.Pop(pq).(queued)
		if done[cur.id] {
			continue
		}

		done[cur.id] = true

		neighbours := graph.NodesOf(g.From(cur.id))
		sort.Slice(neighbours, func(i, j int) bool {
			return label(neighbours[i].ID()) < label(neighbours[j].ID())
		})

		for _, n := range neighbours {
			id := n.ID()
			if done[id] {
				continue
			}

			w, ok := g.Weight(cur.id, id)
			if !ok {
				continue
			}

			next := cur.dist + w
			if d, seen := tree.dist[id]; seen && next >= d {
				continue
			}

			tree.dist[id] = next
			tree.prev[id] = cur.id
			heap.Push(pq, queued{id: id, dist: next})
		}
	}

	return tree
}

// Reachable reports whether id is connected to the source
func (t *PathTree) Reachable(id int64) bool {
	_, ok := t.dist[id]
	return ok
}

// WeightTo returns the path cost to id, or +Inf when unreachable
func (t *PathTree) WeightTo(id int64) float64 {
	d, ok := t.dist[id]
	if !ok {
		return math.Inf(1)
	}

	return d
}

// To returns the node ids from the source to id inclusive, and the path cost.
// The path is nil when id is unreachable.
func (t *PathTree) To(id int64) ([]int64, float64) {
	d, ok := t.dist[id]
	if !ok {
		return nil, math.Inf(1)
	}

	path := []int64{id}
	for cur := id; cur != t.source; {
		cur = t.prev[cur]
		path = append(path, cur)
	}

	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}

	return path, d
}

type queued struct {
	id   int64
	dist float64
}

type pathQueue struct {
	items []queued
	label func(int64) string
}

func (q *pathQueue) Len() int { return len(q.items) }

func (q *pathQueue) Less(i, j int) bool {
	if q.items[i].dist != q.items[j].dist {
		return q.items[i].dist < q.items[j].dist
	}

	return q.label(q.items[i].id) < q.label(q.items[j].id)
}

func (q *pathQueue) Swap(i, j int) { q.items[i], q.items[j] = q.items[j], q.items[i] }

func (q *pathQueue) Push(x any) {
	item, _ := x.(queued)
	q.items = append(q.items, item)
}

func (q *pathQueue) Pop() any {
	n := len(q.items)
	item := q.items[n-1]
	q.items = q.items[:n-1]

	return item
}
