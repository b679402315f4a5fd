// Package catalog is the registry of reusable views: records, lifecycle,
// promotion and lineage
package catalog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethpandaops/viewgraph/pkg/observability"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
)

// TableChecker reports whether a table exists in the schema
type TableChecker interface {
	HasTable(name string) bool
}

// ChangeHook is called after a view's searchable fields change
type ChangeHook func(ctx context.Context, name string)

// Option configures a Catalog
type Option func(*Catalog)

// WithTableChecker validates base tables against the schema
func WithTableChecker(tc TableChecker) Option {
	return func(c *Catalog) {
		c.tables = tc
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(c *Catalog) {
		c.now = now
	}
}

// Catalog validates and records views on top of a Store
type Catalog struct {
	log      logrus.FieldLogger
	store    Store
	tables   TableChecker
	validate *validator.Validate
	now      func() time.Time

	hooksMu sync.RWMutex
	hooks   []ChangeHook
}

// New creates a catalog backed by store
func New(log logrus.FieldLogger, store Store, opts ...Option) *Catalog {
	c := &Catalog{
		log:      log.WithField("component", "catalog"),
		store:    store,
		validate: newValidator(),
		now:      time.Now,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// OnChange registers a hook fired after searchable fields of a view change
func (c *Catalog) OnChange(hook ChangeHook) {
	c.hooksMu.Lock()
	defer c.hooksMu.Unlock()

	c.hooks = append(c.hooks, hook)
}

func (c *Catalog) fireChange(ctx context.Context, name string) {
	c.hooksMu.RLock()
	hooks := append([]ChangeHook(nil), c.hooks...)
	c.hooksMu.RUnlock()

	for _, hook := range hooks {
		hook(ctx, name)
	}
}

// Register validates and stores a new view. Unset status, role, freshness and
// timestamps are defaulted; the stored record is returned with its ID.
func (c *Catalog) Register(ctx context.Context, v *View) (*View, error) {
	rec := *v
	rec.Tags = normalizeSet(v.Tags)
	rec.BaseTables = normalizeSet(v.BaseTables)
	rec.DependsOnViews = normalizeSet(v.DependsOnViews)
	rec.UsedByViews = []string{}
	rec.IsValid = true

	now := c.now()
	if rec.Status == "" {
		rec.Status = StatusDraft
	}

	if rec.CreatedByRole == "" {
		rec.CreatedByRole = DefaultRole
	}

	if rec.FreshnessType == "" {
		rec.FreshnessType = FreshnessLive
	}

	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}

	if rec.LastValidated == nil {
		rec.LastValidated = &now
	}

	if err := c.validateView(&rec); err != nil {
		observability.RecordCatalogOperation("register", "invalid")

		return nil, err
	}

	for _, dep := range rec.DependsOnViews {
		existing, err := c.store.Get(ctx, dep)
		if err != nil {
			return nil, err
		}

		if existing == nil {
			observability.RecordCatalogOperation("register", "invalid")

			return nil, fmt.Errorf("%w: %s depends on %s", ErrUnknownDependency, rec.Name, dep)
		}
	}

	if err := c.store.Insert(ctx, &rec); err != nil {
		observability.RecordCatalogOperation("register", "error")

		return nil, err
	}

	observability.RecordCatalogOperation("register", "success")

	c.log.WithFields(logrus.Fields{
		"view":   rec.Name,
		"id":     rec.ID,
		"domain": rec.Domain,
		"layer":  int(rec.Layer),
		"status": rec.Status,
	}).Info("Registered view")

	return &rec, nil
}

// FindByName returns the view called name, or nil
func (c *Catalog) FindByName(ctx context.Context, name string) (*View, error) {
	return c.store.Get(ctx, name)
}

// FindByID returns the view with the given id, or nil
func (c *Catalog) FindByID(ctx context.Context, id int64) (*View, error) {
	return c.store.GetByID(ctx, id)
}

// FindByDomain lists the views of a domain, optionally restricted to one layer (0 for all)
func (c *Catalog) FindByDomain(ctx context.Context, domain Domain, layer Layer) ([]*View, error) {
	return c.store.List(ctx, Filter{Domain: domain, Layer: layer})
}

// List returns views matching filter, most used first
func (c *Catalog) List(ctx context.Context, filter Filter) ([]*View, error) {
	return c.store.List(ctx, filter)
}

// FindByBaseTables returns views sharing at least one base table with tables
func (c *Catalog) FindByBaseTables(ctx context.Context, tables []string) ([]*View, error) {
	if len(tables) == 0 {
		return []*View{}, nil
	}

	return c.store.List(ctx, Filter{Tables: tables})
}

// IncrementUsage records one reuse of a view. A DRAFT view reaching the promotion
// threshold is promoted in the same atomic step; promoted reports whether this
// call did it. Unknown names return (nil, false, nil).
func (c *Catalog) IncrementUsage(ctx context.Context, name string) (*View, bool, error) {
	count, promoted, err := c.store.IncrementUsage(ctx, name, c.now(), PromotionThreshold)
	if errors.Is(err, ErrViewNotFound) {
		observability.RecordCatalogOperation("increment_usage", "miss")

		return nil, false, nil
	}

	if err != nil {
		observability.RecordCatalogOperation("increment_usage", "error")

		return nil, false, err
	}

	v, err := c.store.Get(ctx, name)
	if err != nil {
		return nil, promoted, err
	}

	if v != nil {
		observability.RecordViewUsage(string(v.Domain), promoted)
	}

	observability.RecordCatalogOperation("increment_usage", "success")

	if promoted {
		c.log.WithFields(logrus.Fields{
			"view":        name,
			"usage_count": count,
		}).Info("Promoted view after reuse")
	}

	return v, promoted, nil
}

// Promote moves a DRAFT view to PROMOTED. Views in any other state are left as
// they are and false is returned.
func (c *Catalog) Promote(ctx context.Context, name string) (bool, error) {
	changed, err := c.store.Transition(ctx, name, StatusDraft, StatusPromoted, c.now())
	if err != nil {
		observability.RecordCatalogOperation("promote", "error")

		return false, err
	}

	observability.RecordCatalogOperation("promote", "success")

	if changed {
		if v, err := c.store.Get(ctx, name); err == nil && v != nil {
			observability.RecordManualPromotion(string(v.Domain))
		}

		c.log.WithField("view", name).Info("Promoted view")
	}

	return changed, nil
}

// Archive soft-deletes a view. The record is kept with status ARCHIVED.
func (c *Catalog) Archive(ctx context.Context, name string) (bool, error) {
	changed, err := c.store.Transition(ctx, name, "", StatusArchived, c.now())
	if err != nil {
		observability.RecordCatalogOperation("archive", "error")

		return false, err
	}

	observability.RecordCatalogOperation("archive", "success")

	if changed {
		c.log.WithField("view", name).Info("Archived view")
	}

	return changed, nil
}

// Update applies a partial edit. Dependency edits are checked for unknown views and
// cycles; edits to searchable fields fire the change hooks.
func (c *Catalog) Update(ctx context.Context, name string, u *ViewUpdate) (*View, error) {
	if u == nil || u.Empty() {
		cur, err := c.store.Get(ctx, name)
		if err != nil {
			return nil, err
		}

		if cur == nil {
			return nil, fmt.Errorf("%w: %s", ErrViewNotFound, name)
		}

		return cur, nil
	}

	lineage := u.DependsOnViews != nil

	err := c.store.Modify(ctx, name, lineage, func(cur *View) (*View, error) {
		next := *cur
		u.Apply(&next)

		if err := c.validateView(&next); err != nil {
			return nil, err
		}

		if lineage {
			if err := c.checkLineage(ctx, &next); err != nil {
				return nil, err
			}
		}

		return &next, nil
	})
	if err != nil {
		status := "error"
		if isEditError(err) {
			status = "invalid"
		}

		observability.RecordCatalogOperation("update", status)

		return nil, err
	}

	observability.RecordCatalogOperation("update", "success")

	c.log.WithField("view", name).Debug("Updated view")

	if u.AffectsEmbedding() {
		c.fireChange(ctx, name)
	}

	return c.store.Get(ctx, name)
}

// MarkValidated records the outcome of a definition check
func (c *Catalog) MarkValidated(ctx context.Context, name string, valid bool) (*View, error) {
	now := c.now()

	return c.Update(ctx, name, &ViewUpdate{IsValid: &valid, LastValidated: &now})
}

// checkLineage rebuilds the lineage graph with next in place of its stored version
func (c *Catalog) checkLineage(ctx context.Context, next *View) error {
	all, err := c.store.List(ctx, Filter{})
	if err != nil {
		return err
	}

	for i, v := range all {
		if v.Name == next.Name {
			all[i] = next
		}
	}

	_, err = BuildLineageGraph(all)

	return err
}

// Statistics counts views per layer, domain and status
func (c *Catalog) Statistics(ctx context.Context) (*Statistics, error) {
	views, err := c.store.List(ctx, Filter{})
	if err != nil {
		return nil, err
	}

	stats := &Statistics{
		TotalViews: len(views),
		ByLayer:    make(map[Layer]int),
		ByDomain:   make(map[Domain]int),
		ByStatus:   make(map[Status]int),
	}

	for _, v := range views {
		stats.ByLayer[v.Layer]++
		stats.ByDomain[v.Domain]++
		stats.ByStatus[v.Status]++
		stats.TotalUsage += v.UsageCount
	}

	// List is ordered by usage, so the first view is the most used
	if len(views) > 0 {
		stats.MostUsed = views[0]
	}

	return stats, nil
}

// Lineage returns the direct upstream and downstream views of name and its depth.
// Unknown names return (nil, nil).
func (c *Catalog) Lineage(ctx context.Context, name string) (*Lineage, error) {
	all, err := c.store.List(ctx, Filter{})
	if err != nil {
		return nil, err
	}

	graph, err := BuildLineageGraph(all)
	if err != nil {
		return nil, err
	}

	v := graph.View(name)
	if v == nil {
		return nil, nil //nolint:nilnil // unknown view
	}

	lineage := &Lineage{
		View:       v,
		BaseTables: v.BaseTables,
		Upstream:   make([]*View, 0),
		Downstream: make([]*View, 0),
		Depth:      graph.Depth(name),
	}

	for _, dep := range graph.Dependencies(name) {
		lineage.Upstream = append(lineage.Upstream, graph.View(dep))
	}

	for _, child := range graph.Dependents(name) {
		lineage.Downstream = append(lineage.Downstream, graph.View(child))
	}

	return lineage, nil
}

// LineageLevels lays out every view by the length of its longest dependency chain
func (c *Catalog) LineageLevels(ctx context.Context) (*LineageLevels, error) {
	all, err := c.store.List(ctx, Filter{})
	if err != nil {
		return nil, err
	}

	graph, err := BuildLineageGraph(all)
	if err != nil {
		return nil, err
	}

	return graph.Levels(), nil
}
