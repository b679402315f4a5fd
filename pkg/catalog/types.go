package catalog

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Layer is the maturity tier of a view
type Layer int

// View layers
const (
	LayerDiscovery Layer = 1
	LayerResearch  Layer = 2
	LayerCompound  Layer = 3
)

// String returns the lowercase layer label
func (l Layer) String() string {
	switch l {
	case LayerDiscovery:
		return "discovery"
	case LayerResearch:
		return "research"
	case LayerCompound:
		return "compound"
	default:
		return "unknown"
	}
}

// Domain is the business area a view belongs to
type Domain string

// Known domains
const (
	DomainFraud       Domain = "fraud"
	DomainCompliance  Domain = "compliance"
	DomainCustomer    Domain = "customer"
	DomainMerchant    Domain = "merchant"
	DomainTransaction Domain = "transaction"
	DomainRisk        Domain = "risk"
)

// Status is the lifecycle state of a view
type Status string

// Lifecycle states. New views start as DRAFT and are promoted once reused.
const (
	StatusDraft        Status = "DRAFT"
	StatusPromoted     Status = "PROMOTED"
	StatusMaterialized Status = "MATERIALIZED"
	StatusStale        Status = "STALE"
	StatusArchived     Status = "ARCHIVED"
)

// Statuses lists every lifecycle state
var Statuses = []Status{StatusDraft, StatusPromoted, StatusMaterialized, StatusStale, StatusArchived} //nolint:gochecknoglobals // fixed enumeration

// Reusable reports whether views in this state act as shortcuts for planning
func (s Status) Reusable() bool {
	return s == StatusPromoted || s == StatusMaterialized
}

// Freshness describes how a view's data is kept current
type Freshness string

// Freshness types
const (
	FreshnessLive      Freshness = "LIVE"
	FreshnessStatic    Freshness = "STATIC"
	FreshnessScheduled Freshness = "SCHEDULED"
)

const (
	// PromotionThreshold is the usage count at which a DRAFT view is promoted
	PromotionThreshold = 3
	// DefaultRole is recorded when a view is registered without a creator role
	DefaultRole = "fraud_analyst"
)

// View is a named reusable query artifact tracked by the catalog
type View struct {
	ID             int64     `json:"view_id"`
	Name           string    `json:"view_name" validate:"required,startswith=v_,max=128"`
	Layer          Layer     `json:"layer" validate:"min=1,max=3"`
	Domain         Domain    `json:"domain" validate:"oneof=fraud compliance customer merchant transaction risk"`
	Description    string    `json:"description"`
	Tags           []string  `json:"tags" validate:"dive,required"`
	BaseTables     []string  `json:"base_tables" validate:"dive,required"`
	DependsOnViews []string  `json:"depends_on_views" validate:"dive,required"`
	UsedByViews    []string  `json:"used_by_views"`
	ViewDefinition string    `json:"view_definition" validate:"required"`
	Status         Status    `json:"status" validate:"oneof=DRAFT PROMOTED MATERIALIZED STALE ARCHIVED"`
	UsageCount     int64     `json:"usage_count" validate:"gte=0"`
	FreshnessType  Freshness `json:"freshness_type" validate:"oneof=LIVE STATIC SCHEDULED"`
	IsValid        bool      `json:"is_valid"`

	CreatedBySession string `json:"created_by_session,omitempty"`
	CreatedByRole    string `json:"created_by_role"`
	CreatedByQuery   string `json:"created_by_query,omitempty"`

	CreatedAt      time.Time  `json:"created_date"`
	LastUsed       *time.Time `json:"last_used,omitempty"`
	PromotedAt     *time.Time `json:"promoted_date,omitempty"`
	MaterializedAt *time.Time `json:"materialized_date,omitempty"`
	LastValidated  *time.Time `json:"last_validated,omitempty"`
	AvgQueryTimeMs *float64   `json:"avg_query_time_ms,omitempty"`

	ApprovedBy   string     `json:"approved_by,omitempty"`
	ApprovalDate *time.Time `json:"approval_date,omitempty"`
	ReviewNotes  string     `json:"review_notes,omitempty"`
}

// Summary renders a one-line description of the view
func (v *View) Summary() string {
	summary := fmt.Sprintf("%s (L%d, %s): %s", v.Name, v.Layer, v.Domain, v.Description)
	if len(v.BaseTables) > 0 {
		summary += " [tables: " + strings.Join(v.BaseTables, ", ") + "]"
	}

	return summary
}

// ViewUpdate holds the editable fields of a view. Nil fields are left unchanged.
type ViewUpdate struct {
	Description    *string    `json:"description,omitempty"`
	Tags           *[]string  `json:"tags,omitempty"`
	BaseTables     *[]string  `json:"base_tables,omitempty"`
	DependsOnViews *[]string  `json:"depends_on_views,omitempty"`
	Layer          *Layer     `json:"layer,omitempty"`
	Domain         *Domain    `json:"domain,omitempty"`
	ViewDefinition *string    `json:"view_definition,omitempty"`
	FreshnessType  *Freshness `json:"freshness_type,omitempty"`
	IsValid        *bool      `json:"is_valid,omitempty"`
	LastValidated  *time.Time `json:"last_validated,omitempty"`
	AvgQueryTimeMs *float64   `json:"avg_query_time_ms,omitempty"`
	MaterializedAt *time.Time `json:"materialized_date,omitempty"`
	ApprovedBy     *string    `json:"approved_by,omitempty"`
	ApprovalDate   *time.Time `json:"approval_date,omitempty"`
	ReviewNotes    *string    `json:"review_notes,omitempty"`
}

// Empty reports whether the update changes nothing
func (u *ViewUpdate) Empty() bool {
	return *u == ViewUpdate{}
}

// AffectsEmbedding reports whether the update touches fields the search text is built from
func (u *ViewUpdate) AffectsEmbedding() bool {
	return u.Description != nil || u.Tags != nil || u.BaseTables != nil || u.Layer != nil || u.Domain != nil
}

// Apply writes the set fields onto v
func (u *ViewUpdate) Apply(v *View) {
	if u.Description != nil {
		v.Description = *u.Description
	}

	if u.Tags != nil {
		v.Tags = normalizeSet(*u.Tags)
	}

	if u.BaseTables != nil {
		v.BaseTables = normalizeSet(*u.BaseTables)
	}

	if u.DependsOnViews != nil {
		v.DependsOnViews = normalizeSet(*u.DependsOnViews)
	}

	if u.Layer != nil {
		v.Layer = *u.Layer
	}

	if u.Domain != nil {
		v.Domain = *u.Domain
	}

	if u.ViewDefinition != nil {
		v.ViewDefinition = *u.ViewDefinition
	}

	if u.FreshnessType != nil {
		v.FreshnessType = *u.FreshnessType
	}

	if u.IsValid != nil {
		v.IsValid = *u.IsValid
	}

	if u.LastValidated != nil {
		v.LastValidated = u.LastValidated
	}

	if u.AvgQueryTimeMs != nil {
		v.AvgQueryTimeMs = u.AvgQueryTimeMs
	}

	if u.MaterializedAt != nil {
		v.MaterializedAt = u.MaterializedAt
	}

	if u.ApprovedBy != nil {
		v.ApprovedBy = *u.ApprovedBy
	}

	if u.ApprovalDate != nil {
		v.ApprovalDate = u.ApprovalDate
	}

	if u.ReviewNotes != nil {
		v.ReviewNotes = *u.ReviewNotes
	}
}

// Filter narrows a listing. Zero values match everything.
type Filter struct {
	Domain Domain
	Layer  Layer
	Status Status
	// Tables matches views sharing at least one base table
	Tables []string
}

// Statistics summarizes the catalog contents
type Statistics struct {
	TotalViews int            `json:"total_views"`
	ByLayer    map[Layer]int  `json:"by_layer"`
	ByDomain   map[Domain]int `json:"by_domain"`
	ByStatus   map[Status]int `json:"by_status"`
	TotalUsage int64          `json:"total_usage"`
	MostUsed   *View          `json:"most_used,omitempty"`
}

// Lineage describes where a view comes from and what builds on it
type Lineage struct {
	View       *View    `json:"view"`
	BaseTables []string `json:"base_tables"`
	Upstream   []*View  `json:"upstream_views"`
	Downstream []*View  `json:"downstream_views"`
	Depth      int      `json:"depth"`
}

// LineageLevels lays the whole lineage DAG out by depth
type LineageLevels struct {
	Levels     map[int][]string `json:"levels"`
	MaxLevel   int              `json:"max_level"`
	Roots      []string         `json:"roots"`
	TotalViews int              `json:"total_views"`
}

// SortByUsage orders views by usage count descending, then newest first, then name
func SortByUsage(views []*View) {
	sort.SliceStable(views, func(i, j int) bool {
		a, b := views[i], views[j]
		if a.UsageCount != b.UsageCount {
			return a.UsageCount > b.UsageCount
		}

		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}

		return a.Name < b.Name
	})
}

// normalizeSet removes duplicates and sorts
func normalizeSet(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))

	for _, item := range items {
		if _, ok := seen[item]; ok {
			continue
		}

		seen[item] = struct{}{}
		out = append(out, item)
	}

	sort.Strings(out)

	return out
}
