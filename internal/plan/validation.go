package plan

import (
	"fmt"
)

// Validate checks a single step against domain rules.
func (s *PlanStep) Validate() error {
	if s.ID <= 0 {
		return fmt.Errorf("step id must be positive, got %d", s.ID)
	}

	if !s.Capability.IsValid() {
		return fmt.Errorf("invalid capability %q", s.Capability)
	}

	switch s.Status {
	case StatusPending, StatusInProgress, StatusCompleted, StatusBlocked:
	default:
		return fmt.Errorf("invalid status %q", s.Status)
	}

	for _, dep := range s.DependsOn {
		if dep == s.ID {
			return fmt.Errorf("step %d depends on itself", s.ID)
		}
		if dep > s.ID {
			return fmt.Errorf("step %d has forward dependency on step %d", s.ID, dep)
		}
		if dep <= 0 {
			return fmt.Errorf("step %d has non-positive dependency %d", s.ID, dep)
		}
	}

	for i, req := range s.AssetRequirements {
		if req.Role == "" {
			return fmt.Errorf("asset requirement at index %d has empty role", i)
		}
		if req.MaxItems < minAssetMaxItems || req.MaxItems > maxAssetMaxItems {
			return fmt.Errorf("asset requirement %q max_items out of range: %d", req.Role, req.MaxItems)
		}
	}

	return nil
}

// Validate checks the plan as a whole: unique ids, resolvable dependencies,
// and the single-flight invariant (at most one in_progress step).
func (p *Plan) Validate() error {
	stepIDs := make(map[int]bool, len(p.Steps))
	inProgress := 0

	for i := range p.Steps {
		step := &p.Steps[i]
		if err := step.Validate(); err != nil {
			return fmt.Errorf("step at index %d is invalid: %w", i, err)
		}

		if stepIDs[step.ID] {
			return fmt.Errorf("duplicate step id %d at index %d", step.ID, i)
		}
		stepIDs[step.ID] = true

		if step.Status == StatusInProgress {
			inProgress++
		}
	}

	if inProgress > 1 {
		return fmt.Errorf("%d steps are in_progress, at most one is allowed", inProgress)
	}

	for i := range p.Steps {
		for _, dep := range p.Steps[i].DependsOn {
			if !stepIDs[dep] {
				return fmt.Errorf("step %d depends on step %d which does not exist", p.Steps[i].ID, dep)
			}
		}
	}

	return nil
}
