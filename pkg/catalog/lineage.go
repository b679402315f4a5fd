package catalog

import (
	"fmt"
	"sort"
	"sync"

	"github.com/heimdalr/dag"
)

// LineageGraph is the dependency DAG between views. Edges point from a
// dependency to the view built on top of it.
type LineageGraph struct {
	dag   *dag.DAG
	mutex sync.RWMutex
}

// BuildLineageGraph builds the DAG for views. A dependency on a view missing from
// views fails with ErrUnknownDependency and a cycle fails with ErrDependencyCycle.
func BuildLineageGraph(views []*View) (*LineageGraph, error) {
	l := &LineageGraph{dag: dag.NewDAG()}

	for _, v := range views {
		if err := l.dag.AddVertexByID(v.Name, v); err != nil {
			return nil, fmt.Errorf("failed to add vertex %s: %w", v.Name, err)
		}
	}

	for _, v := range views {
		for _, dep := range v.DependsOnViews {
			if _, err := l.dag.GetVertex(dep); err != nil {
				return nil, fmt.Errorf("%w: %s depends on %s", ErrUnknownDependency, v.Name, dep)
			}

			// AddEdge refuses edges that would close a loop
			if err := l.dag.AddEdge(dep, v.Name); err != nil {
				return nil, fmt.Errorf("%w: %s -> %s: %w", ErrDependencyCycle, dep, v.Name, err)
			}
		}
	}

	return l, nil
}

// View returns the record stored for name, or nil
func (l *LineageGraph) View(name string) *View {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	vertex, err := l.dag.GetVertex(name)
	if err != nil {
		return nil
	}

	v, _ := vertex.(*View)

	return v
}

// Dependencies returns the views name is built on
func (l *LineageGraph) Dependencies(name string) []string {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	parents, err := l.dag.GetParents(name)
	if err != nil {
		return nil
	}

	return sortedKeys(parents)
}

// Dependents returns the views built directly on name
func (l *LineageGraph) Dependents(name string) []string {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	children, err := l.dag.GetChildren(name)
	if err != nil {
		return nil
	}

	return sortedKeys(children)
}

// AllDependencies returns every transitive dependency of name
func (l *LineageGraph) AllDependencies(name string) []string {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	ancestors, err := l.dag.GetAncestors(name)
	if err != nil {
		return nil
	}

	return sortedKeys(ancestors)
}

// AllDependents returns every view transitively built on name
func (l *LineageGraph) AllDependents(name string) []string {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	descendants, err := l.dag.GetDescendants(name)
	if err != nil {
		return nil
	}

	return sortedKeys(descendants)
}

// Depth is the length of the longest dependency chain below name. Views without
// dependencies have depth 0.
func (l *LineageGraph) Depth(name string) int {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	return l.depth(name, make(map[string]int))
}

func (l *LineageGraph) depth(name string, memo map[string]int) int {
	if d, ok := memo[name]; ok {
		return d
	}

	parents, err := l.dag.GetParents(name)
	if err != nil {
		return 0
	}

	best := 0
	for parent := range parents {
		if d := l.depth(parent, memo) + 1; d > best {
			best = d
		}
	}

	memo[name] = best

	return best
}

// Levels groups views by depth, each level sorted by name
func (l *LineageGraph) Levels() *LineageLevels {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	memo := make(map[string]int)
	out := &LineageLevels{Levels: make(map[int][]string), Roots: []string{}}

	for name := range l.dag.GetVertices() {
		level := l.depth(name, memo)
		out.Levels[level] = append(out.Levels[level], name)

		if level > out.MaxLevel {
			out.MaxLevel = level
		}

		if level == 0 {
			out.Roots = append(out.Roots, name)
		}

		out.TotalViews++
	}

	for level := range out.Levels {
		sort.Strings(out.Levels[level])
	}

	sort.Strings(out.Roots)

	return out
}

// IsPathBetween reports whether to is built, directly or transitively, on from
func (l *LineageGraph) IsPathBetween(from, to string) bool {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	descendants, err := l.dag.GetDescendants(from)
	if err != nil {
		return false
	}

	_, exists := descendants[to]

	return exists
}

func sortedKeys(m map[string]interface{}) []string {
	out := make([]string, 0, len(m))
	for id := range m {
		out = append(out, id)
	}

	sort.Strings(out)

	return out
}
