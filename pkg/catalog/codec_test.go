package catalog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeOptionalFields(t *testing.T) {
	created := time.Date(2024, 5, 1, 12, 30, 0, 123, time.UTC)
	approved := created.Add(48 * time.Hour)
	avg := 42.5

	v := &View{
		ID:             7,
		Name:           "v_governed",
		Layer:          LayerCompound,
		Domain:         DomainCompliance,
		Status:         StatusMaterialized,
		UsageCount:     12,
		FreshnessType:  FreshnessScheduled,
		IsValid:        true,
		CreatedAt:      created,
		ApprovalDate:   &approved,
		ApprovedBy:     "compliance-lead",
		AvgQueryTimeMs: &avg,
	}

	fields := make(map[string]string)
	for k, val := range encodeView(v) {
		s, ok := val.(string)
		require.True(t, ok, k)

		fields[k] = s
	}

	assert.Empty(t, fields["last_used"])

	decoded, err := decodeView(fields)
	require.NoError(t, err)

	assert.Equal(t, v.ID, decoded.ID)
	assert.Equal(t, v.Layer, decoded.Layer)
	assert.Equal(t, v.UsageCount, decoded.UsageCount)
	assert.True(t, created.Equal(decoded.CreatedAt))
	require.NotNil(t, decoded.ApprovalDate)
	assert.True(t, approved.Equal(*decoded.ApprovalDate))
	require.NotNil(t, decoded.AvgQueryTimeMs)
	assert.InDelta(t, avg, *decoded.AvgQueryTimeMs, 1e-9)
	assert.Nil(t, decoded.LastUsed)
	assert.Nil(t, decoded.PromotedAt)
}

func TestDecodeRejectsCorruptFields(t *testing.T) {
	_, err := decodeView(map[string]string{"name": "v_bad", "usage_count": "many"})
	require.Error(t, err)
}
