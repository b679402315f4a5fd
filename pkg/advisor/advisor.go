// Package advisor decides which existing views serve a query and when a new
// view is worth creating
package advisor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/ethpandaops/viewgraph/pkg/catalog"
	"github.com/ethpandaops/viewgraph/pkg/observability"
	"github.com/ethpandaops/viewgraph/pkg/search"
	"github.com/ethpandaops/viewgraph/pkg/steiner"
	"github.com/sirupsen/logrus"
)

// ErrNameRequired is returned when a view name cannot be built from empty parts
var ErrNameRequired = errors.New("domain and concept are required")

// maxNameSuffix bounds the search for a free view name
const maxNameSuffix = 10000

// Combined score weights
const (
	semanticWeight = 0.5
	steinerWeight  = 0.3
	usageWeight    = 0.2
)

// Searcher ranks views by similarity to a query
type Searcher interface {
	SuggestForQuery(ctx context.Context, text string, tables []string, topK int) ([]search.Result, error)
}

// Planner solves join plans over the schema graph
type Planner interface {
	Solve(ctx context.Context, terminals []string, useViews bool) (*steiner.Solution, error)
	CompareSolutions(ctx context.Context, terminals []string) (*steiner.Comparison, error)
	RecommendViews(ctx context.Context, terminals []string, topK int) ([]steiner.Recommendation, error)
}

// Catalog is the part of the view catalog the advisor reads
type Catalog interface {
	FindByName(ctx context.Context, name string) (*catalog.View, error)
	List(ctx context.Context, filter catalog.Filter) ([]*catalog.View, error)
	Lineage(ctx context.Context, name string) (*catalog.Lineage, error)
}

// Advisor combines semantic search and join planning into view recommendations
type Advisor struct {
	log      logrus.FieldLogger
	catalog  Catalog
	searcher Searcher
	planner  Planner
	cfg      Config
}

// New creates an advisor
func New(log logrus.FieldLogger, cat Catalog, searcher Searcher, planner Planner, cfg Config) *Advisor {
	return &Advisor{
		log:      log.WithField("component", "advisor"),
		catalog:  cat,
		searcher: searcher,
		planner:  planner,
		cfg:      cfg,
	}
}

// FindOptimalViews merges semantic matches for query with the solver's
// recommendations for terminals. Each candidate scores
// 0.5 × similarity + 0.3 × (recommended by the solver) + 0.2 × usage/100.
func (a *Advisor) FindOptimalViews(ctx context.Context, query string, terminals []string) (*OptimalViews, error) {
	comparison, err := a.planner.CompareSolutions(ctx, terminals)
	if err != nil {
		return nil, err
	}

	semantic, err := a.searcher.SuggestForQuery(ctx, query, terminals, a.cfg.SourceCandidates)
	if err != nil {
		return nil, fmt.Errorf("semantic search failed: %w", err)
	}

	recommended, err := a.planner.RecommendViews(ctx, terminals, a.cfg.SourceCandidates)
	if err != nil {
		return nil, fmt.Errorf("view recommendation failed: %w", err)
	}

	merged := make(map[string]*Candidate)

	var order []string

	for _, r := range semantic {
		merged[r.View.Name] = &Candidate{
			View:          r.View,
			SemanticScore: r.Score,
			Source:        SourceSemantic,
		}
		order = append(order, r.View.Name)
	}

	for _, r := range recommended {
		if c, ok := merged[r.View.Name]; ok {
			c.SteinerScore = 1
			c.Source = SourceBoth

			continue
		}

		merged[r.View.Name] = &Candidate{
			View:         r.View,
			SteinerScore: 1,
			Source:       SourceSteiner,
		}
		order = append(order, r.View.Name)
	}

	candidates := make([]Candidate, 0, len(order))

	for _, name := range order {
		c := merged[name]
		c.CombinedScore = semanticWeight*c.SemanticScore +
			steinerWeight*c.SteinerScore +
			usageWeight*float64(c.View.UsageCount)/100
		candidates = append(candidates, *c)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].CombinedScore != candidates[j].CombinedScore {
			return candidates[i].CombinedScore > candidates[j].CombinedScore
		}

		return candidates[i].View.Name < candidates[j].View.Name
	})

	top := candidates
	if len(top) > a.cfg.Recommended {
		top = top[:a.cfg.Recommended]
	}

	a.log.WithFields(logrus.Fields{
		"terminals":  len(terminals),
		"candidates": len(candidates),
	}).Debug("Ranked candidate views")

	return &OptimalViews{
		Query:       query,
		Terminals:   terminals,
		Recommended: top,
		Candidates:  candidates,
		Comparison:  comparison,
	}, nil
}

// ShouldCreateView decides whether a query justifies a new view. Queries over
// fewer tables than the complexity threshold never do; neither do queries an
// existing view already covers well enough.
func (a *Advisor) ShouldCreateView(ctx context.Context, req CreationRequest) (*Decision, error) {
	threshold := req.ComplexityThreshold
	if threshold <= 0 {
		threshold = a.cfg.ComplexityThreshold
	}

	if len(req.Terminals) < threshold {
		observability.RecordRecommendation("too_simple")

		return &Decision{
			Reason: fmt.Sprintf("Query too simple (%d tables < %d threshold)", len(req.Terminals), threshold),
		}, nil
	}

	optimal, err := a.FindOptimalViews(ctx, req.Query, req.Terminals)
	if err != nil {
		return nil, err
	}

	if len(optimal.Recommended) > 0 {
		best := optimal.Recommended[0]
		if best.CombinedScore > a.cfg.ReuseThreshold {
			observability.RecordRecommendation("reuse")

			return &Decision{
				Reason:       fmt.Sprintf("Existing view '%s' already covers this (score: %.2f)", best.View.Name, best.CombinedScore),
				Confidence:   best.CombinedScore,
				ExistingView: best.View,
			}, nil
		}
	}

	baseline, err := a.planner.Solve(ctx, req.Terminals, false)
	if err != nil {
		return nil, err
	}

	confidence := math.Min(float64(len(req.Terminals))/10, baseline.TotalCost/5)
	confidence = math.Max(0, math.Min(confidence, 1))

	decision := &Decision{
		ShouldCreate:   true,
		Reason:         fmt.Sprintf("Complex query (%d tables, cost %.2f) with no existing coverage", len(req.Terminals), baseline.TotalCost),
		Confidence:     confidence,
		SuggestedLayer: catalog.LayerDiscovery,
		BaseTables:     req.Terminals,
		BaselineCost:   baseline.TotalCost,
	}

	if req.Domain != "" {
		concept := req.Concept
		if concept == "" {
			concept = req.Terminals[0]
		}

		decision.SuggestedName, err = a.SuggestViewName(ctx, string(req.Domain), concept, req.Granularity)
		if err != nil {
			return nil, err
		}
	}

	observability.RecordRecommendation("create")

	return decision, nil
}

// SuggestViewName returns v_<domain>_<concept>[_<granularity>], with _1, _2, …
// appended until the name is free. Parts are lowercased and non alphanumeric
// runs become underscores.
func (a *Advisor) SuggestViewName(ctx context.Context, domain, concept, granularity string) (string, error) {
	parts := []string{"v", slug(domain), slug(concept)}
	if parts[1] == "" || parts[2] == "" {
		return "", ErrNameRequired
	}

	if g := slug(granularity); g != "" {
		parts = append(parts, g)
	}

	base := strings.Join(parts, "_")
	name := base

	for i := 1; i <= maxNameSuffix; i++ {
		existing, err := a.catalog.FindByName(ctx, name)
		if err != nil {
			return "", err
		}

		if existing == nil {
			return name, nil
		}

		name = base + "_" + strconv.Itoa(i)
	}

	return "", fmt.Errorf("no free name for %s after %d attempts", base, maxNameSuffix)
}

// ImpactAnalysis reports the views that share base tables with name. Each
// sharing view could save one join per shared table; the impact score is the
// view's usage plus two per beneficiary.
func (a *Advisor) ImpactAnalysis(ctx context.Context, name string) (*Impact, error) {
	view, err := a.catalog.FindByName(ctx, name)
	if err != nil {
		return nil, err
	}

	if view == nil {
		return nil, fmt.Errorf("%w: %s", catalog.ErrViewNotFound, name)
	}

	lineage, err := a.catalog.Lineage(ctx, name)
	if err != nil {
		return nil, err
	}

	all, err := a.catalog.List(ctx, catalog.Filter{})
	if err != nil {
		return nil, err
	}

	tables := make(map[string]bool, len(view.BaseTables))
	for _, t := range view.BaseTables {
		tables[t] = true
	}

	beneficiaries := make([]Beneficiary, 0)

	for _, candidate := range all {
		if candidate.Name == name || candidate.Status == catalog.StatusArchived {
			continue
		}

		var overlap []string
		for _, t := range candidate.BaseTables {
			if tables[t] {
				overlap = append(overlap, t)
			}
		}

		if len(overlap) == 0 {
			continue
		}

		beneficiaries = append(beneficiaries, Beneficiary{
			View:             candidate.Name,
			TablesOverlap:    overlap,
			PotentialSavings: len(overlap),
		})
	}

	sort.SliceStable(beneficiaries, func(i, j int) bool {
		if beneficiaries[i].PotentialSavings != beneficiaries[j].PotentialSavings {
			return beneficiaries[i].PotentialSavings > beneficiaries[j].PotentialSavings
		}

		return beneficiaries[i].View < beneficiaries[j].View
	})

	impact := &Impact{
		View:                   view,
		UsageCount:             view.UsageCount,
		BaseTables:             view.BaseTables,
		PotentialBeneficiaries: len(beneficiaries),
		ImpactScore:            view.UsageCount + 2*int64(len(beneficiaries)),
		Recommendations:        beneficiaries,
	}

	if lineage != nil {
		impact.DownstreamViews = len(lineage.Downstream)
	}

	if len(impact.Recommendations) > a.cfg.ImpactBeneficiaries {
		impact.Recommendations = impact.Recommendations[:a.cfg.ImpactBeneficiaries]
	}

	return impact, nil
}

func slug(s string) string {
	var b strings.Builder

	pending := false

	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pending && b.Len() > 0 {
				b.WriteByte('_')
			}

			pending = false

			b.WriteRune(r)

			continue
		}

		pending = true
	}

	return b.String()
}
