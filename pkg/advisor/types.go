package advisor

import (
	"github.com/ethpandaops/viewgraph/pkg/catalog"
	"github.com/ethpandaops/viewgraph/pkg/steiner"
)

// Candidate sources
const (
	SourceSemantic = "semantic"
	SourceSteiner  = "steiner"
	SourceBoth     = "both"
)

// Candidate is an existing view considered for a query
type Candidate struct {
	View          *catalog.View `json:"view"`
	CombinedScore float64       `json:"combined_score"`
	SemanticScore float64       `json:"semantic_score"`
	SteinerScore  float64       `json:"steiner_score"`
	Source        string        `json:"source"`
}

// OptimalViews is the merged ranking of views for a query
type OptimalViews struct {
	Query       string              `json:"query"`
	Terminals   []string            `json:"terminal_tables"`
	Recommended []Candidate         `json:"recommended_views"`
	Candidates  []Candidate         `json:"all_candidates"`
	Comparison  *steiner.Comparison `json:"steiner_comparison"`
}

// CreationRequest asks whether a new view is worth creating for a query
type CreationRequest struct {
	Query     string   `json:"query"`
	Terminals []string `json:"terminal_tables"`
	// ComplexityThreshold overrides the configured threshold when positive
	ComplexityThreshold int `json:"complexity_threshold,omitempty"`
	// Domain and Concept, when set, produce a suggested name
	Domain      catalog.Domain `json:"domain,omitempty"`
	Concept     string         `json:"concept,omitempty"`
	Granularity string         `json:"granularity,omitempty"`
}

// Decision is the answer to a CreationRequest
type Decision struct {
	ShouldCreate   bool          `json:"should_create"`
	Reason         string        `json:"reason"`
	Confidence     float64       `json:"confidence"`
	ExistingView   *catalog.View `json:"existing_view,omitempty"`
	SuggestedLayer catalog.Layer `json:"suggested_layer,omitempty"`
	BaseTables     []string      `json:"base_tables,omitempty"`
	SuggestedName  string        `json:"suggested_name,omitempty"`
	BaselineCost   float64       `json:"baseline_cost"`
}

// Beneficiary is a view sharing base tables with the analysed view
type Beneficiary struct {
	View             string   `json:"view"`
	TablesOverlap    []string `json:"tables_overlap"`
	PotentialSavings int      `json:"potential_savings"`
}

// Impact describes how much other views stand to gain from a view
type Impact struct {
	View                   *catalog.View `json:"view"`
	UsageCount             int64         `json:"usage_count"`
	BaseTables             []string      `json:"base_tables"`
	DownstreamViews        int           `json:"downstream_views"`
	PotentialBeneficiaries int           `json:"potential_beneficiaries"`
	ImpactScore            int64         `json:"impact_score"`
	Recommendations        []Beneficiary `json:"recommendations"`
}
