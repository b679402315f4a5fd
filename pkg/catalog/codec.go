package catalog

import (
	"fmt"
	"strconv"
	"time"
)

// encodeView returns every scalar field as hash entries. Unset optional values
// are stored as empty strings.
func encodeView(v *View) map[string]interface{} {
	fields := encodeEditable(v)

	fields["id"] = strconv.FormatInt(v.ID, 10)
	fields["name"] = v.Name
	fields["status"] = string(v.Status)
	fields["usage_count"] = strconv.FormatInt(v.UsageCount, 10)
	fields["created_by_session"] = v.CreatedBySession
	fields["created_by_role"] = v.CreatedByRole
	fields["created_by_query"] = v.CreatedByQuery
	fields["created_at"] = formatTime(v.CreatedAt)
	fields["last_used"] = formatTimePtr(v.LastUsed)
	fields["promoted_at"] = formatTimePtr(v.PromotedAt)

	return fields
}

// encodeEditable returns the fields a ViewUpdate may change. Status, usage and
// their timestamps are owned by the Lua scripts.
func encodeEditable(v *View) map[string]interface{} {
	avg := ""
	if v.AvgQueryTimeMs != nil {
		avg = strconv.FormatFloat(*v.AvgQueryTimeMs, 'f', -1, 64)
	}

	return map[string]interface{}{
		"layer":             strconv.Itoa(int(v.Layer)),
		"domain":            string(v.Domain),
		"description":       v.Description,
		"view_definition":   v.ViewDefinition,
		"freshness_type":    string(v.FreshnessType),
		"is_valid":          strconv.FormatBool(v.IsValid),
		"last_validated":    formatTimePtr(v.LastValidated),
		"materialized_at":   formatTimePtr(v.MaterializedAt),
		"avg_query_time_ms": avg,
		"approved_by":       v.ApprovedBy,
		"approval_date":     formatTimePtr(v.ApprovalDate),
		"review_notes":      v.ReviewNotes,
	}
}

func decodeView(fields map[string]string) (*View, error) {
	v := &View{
		Name:             fields["name"],
		Domain:           Domain(fields["domain"]),
		Description:      fields["description"],
		ViewDefinition:   fields["view_definition"],
		Status:           Status(fields["status"]),
		FreshnessType:    Freshness(fields["freshness_type"]),
		CreatedBySession: fields["created_by_session"],
		CreatedByRole:    fields["created_by_role"],
		CreatedByQuery:   fields["created_by_query"],
		ApprovedBy:       fields["approved_by"],
		ReviewNotes:      fields["review_notes"],
	}

	var err error

	if v.ID, err = parseInt(fields, "id"); err != nil {
		return nil, err
	}

	if v.UsageCount, err = parseInt(fields, "usage_count"); err != nil {
		return nil, err
	}

	layer, err := parseInt(fields, "layer")
	if err != nil {
		return nil, err
	}

	v.Layer = Layer(layer)

	if raw := fields["is_valid"]; raw != "" {
		if v.IsValid, err = strconv.ParseBool(raw); err != nil {
			return nil, fmt.Errorf("field is_valid: %w", err)
		}
	}

	if raw := fields["avg_query_time_ms"]; raw != "" {
		avg, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("field avg_query_time_ms: %w", err)
		}

		v.AvgQueryTimeMs = &avg
	}

	created, err := parseTimePtr(fields, "created_at")
	if err != nil {
		return nil, err
	}

	if created != nil {
		v.CreatedAt = *created
	}

	for field, dst := range map[string]**time.Time{
		"last_used":       &v.LastUsed,
		"promoted_at":     &v.PromotedAt,
		"materialized_at": &v.MaterializedAt,
		"last_validated":  &v.LastValidated,
		"approval_date":   &v.ApprovalDate,
	} {
		if *dst, err = parseTimePtr(fields, field); err != nil {
			return nil, err
		}
	}

	return v, nil
}

func parseInt(fields map[string]string, field string) (int64, error) {
	raw := fields[field]
	if raw == "" {
		return 0, nil
	}

	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("field %s: %w", field, err)
	}

	return n, nil
}

func parseTimePtr(fields map[string]string, field string) (*time.Time, error) {
	raw := fields[field]
	if raw == "" {
		return nil, nil //nolint:nilnil // unset timestamp
	}

	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return nil, fmt.Errorf("field %s: %w", field, err)
	}

	return &t, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}

	return t.UTC().Format(time.RFC3339Nano)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}

	return formatTime(*t)
}
