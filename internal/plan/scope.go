package plan

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/felixgeelhaar/storyboard/internal/errors"
)

// MaxScopeUnits caps how many asset units a single target scope may address.
const MaxScopeUnits = 10

// unitIDPattern matches canonical "<kind>:<index>" asset unit references.
var unitIDPattern = regexp.MustCompile(`^(slide|page|panel|image):[1-9][0-9]*$`)

// UnitID builds a canonical asset unit reference such as "slide:3".
func UnitID(kind string, index int) string {
	return fmt.Sprintf("%s:%d", kind, index)
}

// IsCanonicalUnitID reports whether id matches the "<kind>:<index>" pattern.
func IsCanonicalUnitID(id string) bool {
	return unitIDPattern.MatchString(id)
}

var scopeKeys = map[string]bool{
	"asset_unit_ids": true,
	"slide_numbers":  true,
	"page_numbers":   true,
	"panel_numbers":  true,
	"character_ids":  true,
	"artifact_ids":   true,
}

// ParseTargetScope validates a raw target_scope payload and returns the
// canonical scope. Unknown keys are hard errors; recoverable issues (unknown
// units with a ledger match pattern, oversized scopes) are downgraded to
// warnings. The ledger maps known asset unit ids to metadata; when supplied
// and non-empty, unknown unit ids that do not match the canonical pattern are
// rejected.
func ParseTargetScope(raw map[string]any, ledger map[string]any) (*TargetScope, []string, error) {
	for key := range raw {
		if !scopeKeys[key] {
			return nil, nil, errors.New(errors.ErrCodePatchBadScope,
				fmt.Sprintf("unknown target_scope key: %s", key))
		}
	}

	scope := &TargetScope{}
	var err error

	if scope.SlideNumbers, err = intList(raw, "slide_numbers"); err != nil {
		return nil, nil, err
	}
	if scope.PageNumbers, err = intList(raw, "page_numbers"); err != nil {
		return nil, nil, err
	}
	if scope.PanelNumbers, err = intList(raw, "panel_numbers"); err != nil {
		return nil, nil, err
	}
	if scope.AssetUnitIDs, err = stringList(raw, "asset_unit_ids"); err != nil {
		return nil, nil, err
	}
	if scope.CharacterIDs, err = stringList(raw, "character_ids"); err != nil {
		return nil, nil, err
	}
	if scope.ArtifactIDs, err = stringList(raw, "artifact_ids"); err != nil {
		return nil, nil, err
	}

	warnings, err := NormalizeTargetScope(scope, ledger)
	if err != nil {
		return nil, nil, err
	}
	return scope, warnings, nil
}

// NormalizeTargetScope canonicalizes a typed scope in place: numeric lists are
// deduplicated, sorted, and restricted to positive integers; canonical
// asset_unit_ids are derived from slide/page/panel numbers; the total unit
// count is capped at MaxScopeUnits.
func NormalizeTargetScope(scope *TargetScope, ledger map[string]any) ([]string, error) {
	var warnings []string

	scope.SlideNumbers = normalizeNumbers(scope.SlideNumbers)
	scope.PageNumbers = normalizeNumbers(scope.PageNumbers)
	scope.PanelNumbers = normalizeNumbers(scope.PanelNumbers)

	units := make([]string, 0, len(scope.AssetUnitIDs))
	seen := make(map[string]bool)
	addUnit := func(id string) {
		if !seen[id] {
			seen[id] = true
			units = append(units, id)
		}
	}

	for _, id := range scope.AssetUnitIDs {
		if len(ledger) > 0 {
			if _, known := ledger[id]; !known {
				if !IsCanonicalUnitID(id) {
					return nil, errors.New(errors.ErrCodePatchUnknownUnit,
						fmt.Sprintf("unknown asset unit id: %s", id))
				}
				warnings = append(warnings, fmt.Sprintf("asset unit %s is not in the unit ledger", id))
			}
		} else if !IsCanonicalUnitID(id) {
			warnings = append(warnings, fmt.Sprintf("asset unit %s does not match kind:index", id))
		}
		addUnit(id)
	}

	for _, n := range scope.SlideNumbers {
		addUnit(UnitID("slide", n))
	}
	for _, n := range scope.PageNumbers {
		addUnit(UnitID("page", n))
	}
	for _, n := range scope.PanelNumbers {
		addUnit(UnitID("panel", n))
	}

	if len(units) > MaxScopeUnits {
		warnings = append(warnings, fmt.Sprintf("target scope addresses %d units, truncated to %d", len(units), MaxScopeUnits))
		units = units[:MaxScopeUnits]
	}
	scope.AssetUnitIDs = units

	return warnings, nil
}

func normalizeNumbers(nums []int) []int {
	seen := make(map[int]bool, len(nums))
	var out []int
	for _, n := range nums {
		if n <= 0 || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	sort.Ints(out)
	return out
}

func intList(raw map[string]any, key string) ([]int, error) {
	val, ok := raw[key]
	if !ok || val == nil {
		return nil, nil
	}
	items, ok := val.([]any)
	if !ok {
		return nil, errors.New(errors.ErrCodePatchBadScope,
			fmt.Sprintf("target_scope %s must be a list", key))
	}
	out := make([]int, 0, len(items))
	for _, item := range items {
		switch v := item.(type) {
		case float64:
			out = append(out, int(v))
		case int:
			out = append(out, v)
		default:
			return nil, errors.New(errors.ErrCodePatchBadScope,
				fmt.Sprintf("target_scope %s contains a non-numeric entry", key))
		}
	}
	return out, nil
}

func stringList(raw map[string]any, key string) ([]string, error) {
	val, ok := raw[key]
	if !ok || val == nil {
		return nil, nil
	}
	items, ok := val.([]any)
	if !ok {
		return nil, errors.New(errors.ErrCodePatchBadScope,
			fmt.Sprintf("target_scope %s must be a list", key))
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, errors.New(errors.ErrCodePatchBadScope,
				fmt.Sprintf("target_scope %s contains a non-string entry", key))
		}
		out = append(out, s)
	}
	return out, nil
}
