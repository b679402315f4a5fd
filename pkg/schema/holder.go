package schema

import "sync"

// Provider hands out the current schema graph snapshot
type Provider interface {
	Current() *Graph
}

// Holder keeps the live graph and swaps it atomically when metadata is reloaded
type Holder struct {
	mu    sync.RWMutex
	graph *Graph
}

// NewHolder creates a holder starting from g, which may be nil
func NewHolder(g *Graph) *Holder {
	if g == nil {
		g = newGraph()
	}

	return &Holder{graph: g}
}

// Current returns the graph in use
func (h *Holder) Current() *Graph {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return h.graph
}

// Swap replaces the graph in use
func (h *Holder) Swap(g *Graph) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.graph = g
}

// HasTable reports whether the current graph contains name
func (h *Holder) HasTable(name string) bool {
	return h.Current().HasTable(name)
}
