package repository

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zlovtnik/leasebill/internal/billing/domain"
)

func TestMemoryOwnership_Load(t *testing.T) {
	seed := `[
		{
			"tenant_id": "t1",
			"property_id": "5b1e4c3a-8f0d-4b7e-9a51-2f6c1d0e3a77",
			"shares": [
				{"partner_id": "0f8fad5b-d9cb-469f-a165-70867728950e", "percentage": "60", "is_main_owner": true},
				{"partner_id": "7c9e6679-7425-40de-944b-e07fc1f90ae7", "percentage": "40", "valid_to": "2024-03-01T00:00:00Z"}
			]
		}
	]`

	m := NewMemoryOwnership()
	require.NoError(t, m.Load(strings.NewReader(seed)))

	property := domain.PropertyID(uuid.MustParse("5b1e4c3a-8f0d-4b7e-9a51-2f6c1d0e3a77"))
	table, err := m.Table(context.Background(), "t1", property)
	require.NoError(t, err)
	require.Len(t, table, 2)
	assert.Equal(t, property, table[1].PropertyID)
	assert.Equal(t, "100", table.TotalPercentage().String())

	active, err := m.ActiveShares(context.Background(), "t1", property, time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.True(t, active[0].IsMainOwner)

	other, err := m.Table(context.Background(), "t2", property)
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestMemoryOwnership_LoadRejects(t *testing.T) {
	tests := []struct {
		name string
		seed string
	}{
		{"not json", `{`},
		{"missing tenant", `[{"property_id": "5b1e4c3a-8f0d-4b7e-9a51-2f6c1d0e3a77", "shares": []}]`},
		{"bad property id", `[{"tenant_id": "t1", "property_id": "lot-7"}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, NewMemoryOwnership().Load(strings.NewReader(tt.seed)))
		})
	}
}
