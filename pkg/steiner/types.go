package steiner

import (
	"github.com/ethpandaops/viewgraph/pkg/catalog"
	"github.com/ethpandaops/viewgraph/pkg/schema"
)

// Solution is an approximate Steiner tree over tables and, optionally, views
type Solution struct {
	Terminals        []string      `json:"terminal_tables"`
	TablesUsed       []string      `json:"tables_used"`
	ViewsUsed        []string      `json:"views_used"`
	Edges            []schema.Edge `json:"edges"`
	TotalNodes       int           `json:"total_nodes"`
	TotalEdges       int           `json:"total_edges"`
	TotalCost        float64       `json:"total_cost"`
	Description      string        `json:"path_description"`
	UsedViews        bool          `json:"used_views"`
	DroppedTerminals []string      `json:"dropped_terminals,omitempty"`
	Warnings         []string      `json:"warnings,omitempty"`
}

// PlanSummary is one side of a comparison
type PlanSummary struct {
	Tables    []string `json:"tables"`
	Views     []string `json:"views,omitempty"`
	Terminals []string `json:"terminals"`
	Cost      float64  `json:"cost"`
	Edges     int      `json:"edges"`
}

// Savings is what views bring over plain joins
type Savings struct {
	CostReduction    float64 `json:"cost_reduction"`
	CostReductionPct float64 `json:"cost_reduction_pct"`
	TablesAvoided    int     `json:"tables_avoided"`
}

// Comparison contrasts the plans found with and without views
type Comparison struct {
	WithoutViews PlanSummary `json:"without_views"`
	WithViews    PlanSummary `json:"with_views"`
	Savings      Savings     `json:"savings"`
}

// Recommendation is an existing view scored against a set of terminals
type Recommendation struct {
	View     *catalog.View `json:"view"`
	Coverage []string      `json:"coverage"`
	Score    int64         `json:"score"`
}

func summarize(s *Solution) PlanSummary {
	return PlanSummary{
		Tables:    s.TablesUsed,
		Views:     s.ViewsUsed,
		Terminals: s.Terminals,
		Cost:      s.TotalCost,
		Edges:     s.TotalEdges,
	}
}
