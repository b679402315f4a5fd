// Package steiner finds the cheapest set of tables and reusable views joining a
// set of required tables
package steiner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"text/template"
	"time"

	"github.com/Masterminds/sprig/v3"
	"github.com/ethpandaops/viewgraph/pkg/catalog"
	"github.com/ethpandaops/viewgraph/pkg/observability"
	"github.com/ethpandaops/viewgraph/pkg/schema"
	"github.com/sirupsen/logrus"
)

// ErrInputTooLarge is returned when a solve exceeds the configured terminal or graph size bounds
var ErrInputTooLarge = errors.New("solver input too large")

// DefaultRecommendations is the number of views RecommendViews returns when topK is not positive
const DefaultRecommendations = 3

const descriptionText = `Required tables: {{ join ", " .Terminals }}
{{- if .ViewNames }}
Views used as shortcuts: {{ join ", " .ViewNames }}
{{- range .Views }}
  - {{ .Name }} covers: {{ join ", " .Covers }}
{{- end }}
{{- end }}
{{- if .Extra }}
Additional tables for joins: {{ join ", " .Extra }}
{{- end }}
{{- if .Dropped }}
Unreachable tables dropped: {{ join ", " .Dropped }}
{{- end }}`

//nolint:gochecknoglobals // parsed once
var descriptionTemplate = template.Must(template.New("solution").Funcs(sprig.TxtFuncMap()).Parse(descriptionText))

// ViewSource is the part of the catalog the solver reads
type ViewSource interface {
	List(ctx context.Context, filter catalog.Filter) ([]*catalog.View, error)
	FindByBaseTables(ctx context.Context, tables []string) ([]*catalog.View, error)
}

// Solver answers join planning questions against the current schema graph
type Solver struct {
	log    logrus.FieldLogger
	graphs schema.Provider
	views  ViewSource
	cfg    Config
}

// NewSolver creates a solver. views may be nil, in which case solves never use views.
func NewSolver(log logrus.FieldLogger, graphs schema.Provider, views ViewSource, cfg Config) *Solver {
	return &Solver{
		log:    log.WithField("component", "steiner"),
		graphs: graphs,
		views:  views,
		cfg:    cfg,
	}
}

// Solve finds an approximately minimal tree joining terminals. With useViews,
// promoted and materialized views act as zero-cost shortcuts between their
// base tables. Terminals outside the best-covered connected component are
// dropped and reported.
func (s *Solver) Solve(ctx context.Context, terminals []string, useViews bool) (*Solution, error) {
	start := time.Now()
	g := s.graphs.Current()
	terms := dedupe(terminals)

	if len(terms) > s.cfg.MaxTerminals {
		return nil, fmt.Errorf("%w: %d terminals exceeds limit of %d", ErrInputTooLarge, len(terms), s.cfg.MaxTerminals)
	}

	var missing []string
	for _, t := range terms {
		if !g.HasTable(t) {
			missing = append(missing, t)
		}
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", schema.ErrTableNotFound, strings.Join(missing, ", "))
	}

	switch len(terms) {
	case 0:
		return emptySolution(), nil
	case 1:
		return singleSolution(terms[0], nil, nil), nil
	}

	w := newWorkGraph(g)

	var warnings []string

	viewsAdded := 0

	if useViews && s.views != nil {
		views, err := s.reusableViews(ctx)
		if err != nil {
			return nil, err
		}

		for _, v := range views {
			if !w.addView(v) {
				warnings = append(warnings, fmt.Sprintf("view %s skipped: name collides with a table", v.Name))
				continue
			}

			viewsAdded++
		}
	}

	if w.size() > s.cfg.MaxGraphNodes {
		return nil, fmt.Errorf("%w: %d graph nodes exceeds limit of %d", ErrInputTooLarge, w.size(), s.cfg.MaxGraphNodes)
	}

	kept, dropped := w.pickComponent(terms)
	if len(dropped) > 0 {
		warnings = append(warnings, fmt.Sprintf("graph is disconnected; dropped terminals outside the main component: %s", strings.Join(dropped, ", ")))

		s.log.WithFields(logrus.Fields{
			"kept":    kept,
			"dropped": dropped,
		}).Warn("Terminals span disconnected components")
	}

	if len(kept) < 2 {
		sol := singleSolution(kept[0], dropped, warnings)
		sol.UsedViews = useViews

		return sol, nil
	}

	edges := w.steinerTree(kept)

	// Approximation is not monotone in added edges, so keep the plain tree
	// whenever it is cheaper than the one found through views
	if viewsAdded > 0 {
		plain := newWorkGraph(g)
		if plain.connected(kept) {
			if plainEdges := plain.steinerTree(kept); treeCost(plainEdges) < treeCost(edges) {
				w, edges = plain, plainEdges
			}
		}
	}

	sol, err := s.buildSolution(w, kept, dropped, edges, warnings)
	if err != nil {
		return nil, err
	}

	sol.UsedViews = useViews

	observability.RecordSolve(useViews, time.Since(start).Seconds(), sol.TotalCost, len(dropped))

	s.log.WithFields(logrus.Fields{
		"terminals": len(kept),
		"tables":    len(sol.TablesUsed),
		"views":     len(sol.ViewsUsed),
		"cost":      sol.TotalCost,
		"use_views": useViews,
	}).Debug("Solved Steiner tree")

	return sol, nil
}

// reusableViews returns promoted and materialized views ordered by name
func (s *Solver) reusableViews(ctx context.Context) ([]*catalog.View, error) {
	var out []*catalog.View

	for _, status := range []catalog.Status{catalog.StatusPromoted, catalog.StatusMaterialized} {
		views, err := s.views.List(ctx, catalog.Filter{Status: status})
		if err != nil {
			return nil, fmt.Errorf("failed to list %s views: %w", status, err)
		}

		out = append(out, views...)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].Name < out[j].Name
	})

	return out, nil
}

func (s *Solver) buildSolution(w *workGraph, terminals, dropped []string, edges []treeEdge, warnings []string) (*Solution, error) {
	nodes := make(map[int64]bool)
	for _, e := range edges {
		nodes[e.u] = true
		nodes[e.v] = true
	}

	isTerminal := make(map[string]bool, len(terminals))
	for _, t := range terminals {
		isTerminal[t] = true
	}

	sol := &Solution{
		Terminals:        terminals,
		TablesUsed:       []string{},
		ViewsUsed:        []string{},
		Edges:            make([]schema.Edge, 0, len(edges)),
		TotalNodes:       len(nodes),
		TotalEdges:       len(edges),
		TotalCost:        treeCost(edges),
		DroppedTerminals: dropped,
		Warnings:         warnings,
	}

	var extra []string

	for id := range nodes {
		name := w.names[id]
		if w.isView(id) {
			sol.ViewsUsed = append(sol.ViewsUsed, name)
			continue
		}

		sol.TablesUsed = append(sol.TablesUsed, name)
		if !isTerminal[name] {
			extra = append(extra, name)
		}
	}

	sort.Strings(sol.TablesUsed)
	sort.Strings(sol.ViewsUsed)
	sort.Strings(extra)

	for _, e := range edges {
		sol.Edges = append(sol.Edges, schema.Edge{From: w.names[e.u], To: w.names[e.v], Weight: e.weight})
	}

	sort.Slice(sol.Edges, func(i, j int) bool {
		if sol.Edges[i].From != sol.Edges[j].From {
			return sol.Edges[i].From < sol.Edges[j].From
		}

		return sol.Edges[i].To < sol.Edges[j].To
	})

	type coverage struct {
		Name   string
		Covers []string
	}

	var covered []coverage

	for _, name := range sol.ViewsUsed {
		v := w.views[w.ids[name]]

		var covers []string
		for _, t := range v.BaseTables {
			if isTerminal[t] {
				covers = append(covers, t)
			}
		}

		if len(covers) > 0 {
			covered = append(covered, coverage{Name: name, Covers: covers})
		}
	}

	var buf bytes.Buffer

	err := descriptionTemplate.Execute(&buf, map[string]interface{}{
		"Terminals": terminals,
		"ViewNames": sol.ViewsUsed,
		"Views":     covered,
		"Extra":     extra,
		"Dropped":   dropped,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to render solution description: %w", err)
	}

	sol.Description = strings.TrimSpace(buf.String())

	return sol, nil
}

// CompareSolutions solves with and without views and reports what views save
func (s *Solver) CompareSolutions(ctx context.Context, terminals []string) (*Comparison, error) {
	without, err := s.Solve(ctx, terminals, false)
	if err != nil {
		return nil, err
	}

	with := without
	if s.views != nil {
		with, err = s.Solve(ctx, terminals, true)
		if err != nil {
			return nil, err
		}
	}

	reduction := without.TotalCost - with.TotalCost

	cmp := &Comparison{
		WithoutViews: summarize(without),
		WithViews:    summarize(with),
		Savings: Savings{
			CostReduction: math.Round(reduction*1e4) / 1e4,
			TablesAvoided: len(without.TablesUsed) - len(with.TablesUsed),
		},
	}

	if without.TotalCost > 0 {
		cmp.Savings.CostReductionPct = math.Round(reduction/without.TotalCost*100*100) / 100
	}

	s.log.WithFields(logrus.Fields{
		"cost_reduction": cmp.Savings.CostReduction,
		"tables_avoided": cmp.Savings.TablesAvoided,
	}).Debug("Compared solutions")

	return cmp, nil
}

// RecommendViews scores existing views by how many terminals their base tables
// cover, ten points each, plus their usage count. Archived views are skipped.
func (s *Solver) RecommendViews(ctx context.Context, terminals []string, topK int) ([]Recommendation, error) {
	if s.views == nil {
		return []Recommendation{}, nil
	}

	if topK <= 0 {
		topK = DefaultRecommendations
	}

	terms := dedupe(terminals)

	candidates, err := s.views.FindByBaseTables(ctx, terms)
	if err != nil {
		return nil, err
	}

	wanted := make(map[string]bool, len(terms))
	for _, t := range terms {
		wanted[t] = true
	}

	recs := make([]Recommendation, 0, len(candidates))

	for _, v := range candidates {
		if v.Status == catalog.StatusArchived {
			continue
		}

		var coverage []string
		for _, t := range v.BaseTables {
			if wanted[t] {
				coverage = append(coverage, t)
			}
		}

		if len(coverage) == 0 {
			continue
		}

		recs = append(recs, Recommendation{
			View:     v,
			Coverage: coverage,
			Score:    int64(len(coverage))*10 + v.UsageCount,
		})
	}

	sort.SliceStable(recs, func(i, j int) bool {
		if recs[i].Score != recs[j].Score {
			return recs[i].Score > recs[j].Score
		}

		return recs[i].View.Name < recs[j].View.Name
	})

	if len(recs) > topK {
		recs = recs[:topK]
	}

	return recs, nil
}

func emptySolution() *Solution {
	return &Solution{
		Terminals:   []string{},
		TablesUsed:  []string{},
		ViewsUsed:   []string{},
		Edges:       []schema.Edge{},
		Description: "No tables specified",
	}
}

func singleSolution(table string, dropped, warnings []string) *Solution {
	return &Solution{
		Terminals:        []string{table},
		TablesUsed:       []string{table},
		ViewsUsed:        []string{},
		Edges:            []schema.Edge{},
		TotalNodes:       1,
		Description:      "Single table: " + table,
		DroppedTerminals: dropped,
		Warnings:         warnings,
	}
}

// dedupe drops repeated names, keeping first occurrences in order
func dedupe(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))

	for _, n := range names {
		if seen[n] {
			continue
		}

		seen[n] = true
		out = append(out, n)
	}

	return out
}
