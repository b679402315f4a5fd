// Package search ranks catalog views by embedding similarity to free text
package search

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethpandaops/viewgraph/pkg/catalog"
	"github.com/ethpandaops/viewgraph/pkg/observability"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// ViewSource is the part of the catalog the index reads
type ViewSource interface {
	FindByName(ctx context.Context, name string) (*catalog.View, error)
	FindByDomain(ctx context.Context, domain catalog.Domain, layer catalog.Layer) ([]*catalog.View, error)
	List(ctx context.Context, filter catalog.Filter) ([]*catalog.View, error)
	FindByBaseTables(ctx context.Context, tables []string) ([]*catalog.View, error)
}

// Query is a free-text search, optionally restricted to a domain and layer
type Query struct {
	Text     string         `json:"query"`
	TopK     int            `json:"top_k"`
	MinScore float64        `json:"min_score"`
	Domain   catalog.Domain `json:"domain,omitempty"`
	Layer    catalog.Layer  `json:"layer,omitempty"`
}

// Result is a view with its similarity to the query
type Result struct {
	View  *catalog.View `json:"view"`
	Score float64       `json:"similarity_score"`
}

// CacheStats reports the state of the embedding cache
type CacheStats struct {
	CachedViews int    `json:"cached_views"`
	ModelLoaded bool   `json:"model_loaded"`
	Model       string `json:"model"`
}

// Index embeds views lazily and answers similarity queries over them.
// Archived views are never returned.
type Index struct {
	log     logrus.FieldLogger
	source  ViewSource
	model   Model
	vectors VectorStore
	cfg     Config

	loadMu sync.Mutex
	loaded atomic.Bool

	mu    sync.RWMutex
	cache map[string][]float32
}

// NewIndex creates an index over source. vectors may be nil to keep embeddings in memory only.
func NewIndex(log logrus.FieldLogger, source ViewSource, model Model, vectors VectorStore, cfg Config) *Index {
	return &Index{
		log:     log.WithField("component", "search"),
		source:  source,
		model:   model,
		vectors: vectors,
		cfg:     cfg,
		cache:   make(map[string][]float32),
	}
}

// ensureLoaded loads the model once. A failed load is retried by the next caller.
func (i *Index) ensureLoaded(ctx context.Context) error {
	if i.loaded.Load() {
		return nil
	}

	i.loadMu.Lock()
	defer i.loadMu.Unlock()

	if i.loaded.Load() {
		return nil
	}

	start := time.Now()

	if err := i.model.Load(ctx); err != nil {
		i.log.WithError(err).Error("Failed to load embedding model")

		return fmt.Errorf("embedding model unavailable: %w", err)
	}

	i.loaded.Store(true)
	i.log.WithFields(logrus.Fields{
		"model":    i.model.Name(),
		"duration": time.Since(start),
	}).Info("Loaded embedding model")

	return nil
}

// Embed encodes arbitrary text, loading the model on first use
func (i *Index) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := i.ensureLoaded(ctx); err != nil {
		return nil, err
	}

	return i.model.Encode(ctx, text)
}

// ViewText builds the text a view is embedded from
func ViewText(v *catalog.View) string {
	parts := []string{
		v.Description,
		"domain: " + string(v.Domain),
		"layer: " + v.Layer.String(),
	}

	if len(v.Tags) > 0 {
		parts = append(parts, "tags: "+strings.Join(v.Tags, ", "))
	}

	if len(v.BaseTables) > 0 {
		parts = append(parts, "tables: "+strings.Join(v.BaseTables, ", "))
	}

	return strings.Join(parts, " | ")
}

// EmbedView returns the embedding of v, from memory, the vector store or the model
func (i *Index) EmbedView(ctx context.Context, v *catalog.View) ([]float32, error) {
	i.mu.RLock()
	vec, ok := i.cache[v.Name]
	i.mu.RUnlock()

	observability.RecordEmbeddingCache("memory", ok)

	if ok {
		return vec, nil
	}

	if i.vectors != nil {
		cached, err := i.vectors.GetVector(ctx, v.Name)
		if err != nil {
			i.log.WithError(err).WithField("view", v.Name).Warn("Failed to read cached embedding")
		}

		hit := cached != nil && cached.Model == i.model.Name() && len(cached.Vector) > 0
		observability.RecordEmbeddingCache("redis", hit)

		if hit {
			i.remember(v.Name, cached.Vector)
			return cached.Vector, nil
		}
	}

	vec, err := i.Embed(ctx, ViewText(v))
	if err != nil {
		return nil, err
	}

	i.remember(v.Name, vec)

	if i.vectors != nil {
		err := i.vectors.SetVector(ctx, CachedVector{
			ViewName:  v.Name,
			Model:     i.model.Name(),
			Vector:    vec,
			UpdatedAt: time.Now(),
		})
		if err != nil {
			i.log.WithError(err).WithField("view", v.Name).Warn("Failed to persist embedding")
		}
	}

	return vec, nil
}

func (i *Index) remember(name string, vec []float32) {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.cache[name] = vec
}

// IndexAll embeds every non-archived view and returns how many were processed
func (i *Index) IndexAll(ctx context.Context) (int, error) {
	views, err := i.source.List(ctx, catalog.Filter{})
	if err != nil {
		return 0, err
	}

	var count atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(i.cfg.IndexConcurrency)

	for _, v := range views {
		if v.Status == catalog.StatusArchived {
			continue
		}

		g.Go(func() error {
			if _, err := i.EmbedView(gctx, v); err != nil {
				return fmt.Errorf("failed to embed %s: %w", v.Name, err)
			}

			count.Add(1)

			return nil
		})
	}

	err = g.Wait()

	i.log.WithField("views", count.Load()).Debug("Indexed views")

	return int(count.Load()), err
}

// Reindex drops the cached embedding of name and computes it again
func (i *Index) Reindex(ctx context.Context, name string) error {
	if err := i.Invalidate(ctx, name); err != nil {
		return err
	}

	v, err := i.source.FindByName(ctx, name)
	if err != nil {
		return err
	}

	if v == nil || v.Status == catalog.StatusArchived {
		return nil
	}

	_, err = i.EmbedView(ctx, v)

	return err
}

// CosineSimilarity returns the cosine of the angle between u and v, or 0 when
// either has zero norm or their lengths differ
func CosineSimilarity(u, v []float32) float64 {
	if len(u) != len(v) {
		return 0
	}

	var dot, nu, nv float64
	for k := range u {
		dot += float64(u[k]) * float64(v[k])
		nu += float64(u[k]) * float64(u[k])
		nv += float64(v[k]) * float64(v[k])
	}

	if nu == 0 || nv == 0 {
		return 0
	}

	return dot / (math.Sqrt(nu) * math.Sqrt(nv))
}

// Config returns the settings the index was built with
func (i *Index) Config() Config {
	return i.cfg
}

// Search ranks views against q.Text and returns up to q.TopK results scoring at
// least q.MinScore. A non-positive TopK uses the configured default.
func (i *Index) Search(ctx context.Context, q Query) ([]Result, error) {
	observability.RecordSearch("search")

	if q.TopK <= 0 {
		q.TopK = i.cfg.TopK
	}

	qvec, err := i.Embed(ctx, q.Text)
	if err != nil {
		return nil, err
	}

	var candidates []*catalog.View
	if q.Domain != "" {
		candidates, err = i.source.FindByDomain(ctx, q.Domain, q.Layer)
	} else {
		candidates, err = i.source.List(ctx, catalog.Filter{Layer: q.Layer})
	}

	if err != nil {
		return nil, err
	}

	return i.rank(ctx, qvec, candidates, q.TopK, q.MinScore, "")
}

// FindSimilar returns views resembling the view called name, excluding itself.
// Unknown names give an empty result.
func (i *Index) FindSimilar(ctx context.Context, name string, topK int, minScore float64) ([]Result, error) {
	observability.RecordSearch("similar")

	if topK <= 0 {
		topK = i.cfg.SimilarTopK
	}

	ref, err := i.source.FindByName(ctx, name)
	if err != nil {
		return nil, err
	}

	if ref == nil {
		return []Result{}, nil
	}

	refVec, err := i.EmbedView(ctx, ref)
	if err != nil {
		return nil, err
	}

	candidates, err := i.source.List(ctx, catalog.Filter{})
	if err != nil {
		return nil, err
	}

	return i.rank(ctx, refVec, candidates, topK, minScore, name)
}

// SearchByTables returns views sharing a base table with tables, most used first
func (i *Index) SearchByTables(ctx context.Context, tables []string, topK int) ([]*catalog.View, error) {
	observability.RecordSearch("tables")

	if topK <= 0 {
		topK = i.cfg.TopK
	}

	views, err := i.source.FindByBaseTables(ctx, tables)
	if err != nil {
		return nil, err
	}

	out := make([]*catalog.View, 0, len(views))
	for _, v := range views {
		if v.Status != catalog.StatusArchived {
			out = append(out, v)
		}
	}

	catalog.SortByUsage(out)

	if len(out) > topK {
		out = out[:topK]
	}

	return out, nil
}

// SuggestForQuery re-ranks views over tables by similarity to text. Without
// tables, or when none of them is covered by a view, it falls back to a full
// search with the fallback score threshold.
func (i *Index) SuggestForQuery(ctx context.Context, text string, tables []string, topK int) ([]Result, error) {
	observability.RecordSearch("suggest")

	if topK <= 0 {
		topK = i.cfg.TopK
	}

	if len(tables) > 0 {
		candidates, err := i.SearchByTables(ctx, tables, i.cfg.TableCandidates)
		if err != nil {
			return nil, err
		}

		if len(candidates) > 0 {
			qvec, err := i.Embed(ctx, text)
			if err != nil {
				return nil, err
			}

			return i.rank(ctx, qvec, candidates, topK, math.Inf(-1), "")
		}
	}

	return i.Search(ctx, Query{Text: text, TopK: topK, MinScore: i.cfg.FallbackMinScore})
}

// rank scores candidates against qvec, keeping those at or above minScore
func (i *Index) rank(ctx context.Context, qvec []float32, candidates []*catalog.View, topK int, minScore float64, exclude string) ([]Result, error) {
	results := make([]Result, 0, len(candidates))

	for _, v := range candidates {
		if v.Name == exclude || v.Status == catalog.StatusArchived {
			continue
		}

		vec, err := i.EmbedView(ctx, v)
		if err != nil {
			return nil, err
		}

		score := CosineSimilarity(qvec, vec)
		if score >= minScore {
			results = append(results, Result{View: v, Score: score})
		}
	}

	sort.SliceStable(results, func(a, b int) bool {
		if results[a].Score != results[b].Score {
			return results[a].Score > results[b].Score
		}

		return results[a].View.Name < results[b].View.Name
	})

	if len(results) > topK {
		results = results[:topK]
	}

	return results, nil
}

// Invalidate forgets the embedding of name in memory and in the vector store
func (i *Index) Invalidate(ctx context.Context, name string) error {
	i.mu.Lock()
	delete(i.cache, name)
	i.mu.Unlock()

	if i.vectors == nil {
		return nil
	}

	return i.vectors.InvalidateVector(ctx, name)
}

// ClearCache forgets every embedding
func (i *Index) ClearCache(ctx context.Context) error {
	i.mu.Lock()
	i.cache = make(map[string][]float32)
	i.mu.Unlock()

	if i.vectors == nil {
		return nil
	}

	removed, err := i.vectors.Purge(ctx)
	if err != nil {
		return err
	}

	i.log.WithField("removed", removed).Info("Cleared embedding cache")

	return nil
}

// CacheStats reports the number of embeddings held in memory and the model state
func (i *Index) CacheStats() CacheStats {
	i.mu.RLock()
	defer i.mu.RUnlock()

	return CacheStats{
		CachedViews: len(i.cache),
		ModelLoaded: i.loaded.Load(),
		Model:       i.model.Name(),
	}
}
