package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/storyboard/internal/errors"
)

func TestParseTargetScope(t *testing.T) {
	tests := []struct {
		name      string
		raw       map[string]any
		ledger    map[string]any
		wantUnits []string
		wantWarn  int
		wantCode  errors.ErrorCode
	}{
		{
			name:      "slide numbers derive canonical units",
			raw:       map[string]any{"slide_numbers": []any{float64(3), float64(1), float64(3)}},
			wantUnits: []string{"slide:1", "slide:3"},
		},
		{
			name:      "mixed kinds",
			raw:       map[string]any{"page_numbers": []any{float64(2)}, "panel_numbers": []any{float64(4)}},
			wantUnits: []string{"page:2", "panel:4"},
		},
		{
			name:     "unknown key is a hard error",
			raw:      map[string]any{"chapter_numbers": []any{float64(1)}},
			wantCode: errors.ErrCodePatchBadScope,
		},
		{
			name:     "non-numeric entry is a hard error",
			raw:      map[string]any{"slide_numbers": []any{"three"}},
			wantCode: errors.ErrCodePatchBadScope,
		},
		{
			name:     "non-list value is a hard error",
			raw:      map[string]any{"slide_numbers": "3"},
			wantCode: errors.ErrCodePatchBadScope,
		},
		{
			name:      "negative and zero numbers dropped",
			raw:       map[string]any{"slide_numbers": []any{float64(-2), float64(0), float64(5)}},
			wantUnits: []string{"slide:5"},
		},
		{
			name:      "canonical unit ids pass without ledger",
			raw:       map[string]any{"asset_unit_ids": []any{"slide:2", "panel:1"}},
			wantUnits: []string{"slide:2", "panel:1"},
		},
		{
			name:      "ledger-known unit accepted",
			raw:       map[string]any{"asset_unit_ids": []any{"slide:2"}},
			ledger:    map[string]any{"slide:2": map[string]any{"title": "intro"}},
			wantUnits: []string{"slide:2"},
		},
		{
			name:      "ledger-unknown canonical unit warns",
			raw:       map[string]any{"asset_unit_ids": []any{"slide:9"}},
			ledger:    map[string]any{"slide:2": map[string]any{}},
			wantUnits: []string{"slide:9"},
			wantWarn:  1,
		},
		{
			name:     "ledger-unknown non-canonical unit is a hard error",
			raw:      map[string]any{"asset_unit_ids": []any{"mystery-unit"}},
			ledger:   map[string]any{"slide:2": map[string]any{}},
			wantCode: errors.ErrCodePatchUnknownUnit,
		},
		{
			name:      "non-canonical unit without ledger warns",
			raw:       map[string]any{"asset_unit_ids": []any{"mystery-unit"}},
			wantUnits: []string{"mystery-unit"},
			wantWarn:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scope, warnings, err := ParseTargetScope(tt.raw, tt.ledger)
			if tt.wantCode != "" {
				require.Error(t, err)
				assert.True(t, errors.HasCode(err, tt.wantCode), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantUnits, scope.AssetUnitIDs)
			assert.Len(t, warnings, tt.wantWarn)
		})
	}
}

func TestParseTargetScope_UnitCap(t *testing.T) {
	nums := make([]any, 0, 15)
	for i := 1; i <= 15; i++ {
		nums = append(nums, float64(i))
	}

	scope, warnings, err := ParseTargetScope(map[string]any{"slide_numbers": nums}, nil)
	require.NoError(t, err)
	assert.Len(t, scope.AssetUnitIDs, MaxScopeUnits)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "truncated")
}

func TestNormalizeTargetScope_SortsAndDedups(t *testing.T) {
	scope := &TargetScope{SlideNumbers: []int{9, 2, 2, 9, 4}}

	warnings, err := NormalizeTargetScope(scope, nil)
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Equal(t, []int{2, 4, 9}, scope.SlideNumbers)
	assert.Equal(t, []string{"slide:2", "slide:4", "slide:9"}, scope.AssetUnitIDs)
}

func TestIsCanonicalUnitID(t *testing.T) {
	assert.True(t, IsCanonicalUnitID("slide:3"))
	assert.True(t, IsCanonicalUnitID("image:12"))
	assert.False(t, IsCanonicalUnitID("slide:0"))
	assert.False(t, IsCanonicalUnitID("chapter:1"))
	assert.False(t, IsCanonicalUnitID("slide-3"))
}
