package plan

import (
	"sort"
	"strings"
)

// DefaultMode returns the capability's default sub-behavior when a step
// arrives without one.
func DefaultMode(c Capability) string {
	switch c {
	case CapabilityWriter:
		return "content_draft"
	case CapabilityVisualizer:
		return "slide_render"
	case CapabilityResearcher:
		return "topic_research"
	case CapabilityDataAnalyst:
		return "data_summary"
	default:
		return "content_draft"
	}
}

const (
	maxTitleLength   = 60
	minAssetMaxItems = 1
	maxAssetMaxItems = 8
)

// NormalizeStep canonicalizes a step in place so the rest of the system never
// observes a malformed shape. It runs before a step enters a plan:
//   - capability defaults to writer when unknown, mode to the capability default
//   - title and description are backfilled from the instruction
//   - validation and success_criteria backfill each other when one is empty
//   - depends_on is deduplicated, self-references and forward references dropped
//   - asset requirement max_items is clamped to [1,8], scope defaults to global
//   - status defaults to pending
func NormalizeStep(s *PlanStep) {
	if !s.Capability.IsValid() {
		s.Capability = CapabilityWriter
	}
	if strings.TrimSpace(s.Mode) == "" {
		s.Mode = DefaultMode(s.Capability)
	}

	s.Instruction = strings.TrimSpace(s.Instruction)
	if strings.TrimSpace(s.Title) == "" {
		s.Title = truncateTitle(s.Instruction)
	}
	if strings.TrimSpace(s.Description) == "" {
		s.Description = s.Instruction
	}

	// Each non-empty list backfills the other so downstream consumers can read
	// either field.
	if len(s.Validation) == 0 && len(s.SuccessCriteria) > 0 {
		s.Validation = append([]string(nil), s.SuccessCriteria...)
	}
	if len(s.SuccessCriteria) == 0 && len(s.Validation) > 0 {
		s.SuccessCriteria = append([]string(nil), s.Validation...)
	}

	s.DependsOn = normalizeDependsOn(s.ID, s.DependsOn)

	for i := range s.AssetRequirements {
		req := &s.AssetRequirements[i]
		if req.Scope != ScopeGlobal && req.Scope != ScopePerUnit {
			req.Scope = ScopeGlobal
		}
		if req.MaxItems < minAssetMaxItems {
			req.MaxItems = minAssetMaxItems
		}
		if req.MaxItems > maxAssetMaxItems {
			req.MaxItems = maxAssetMaxItems
		}
	}

	switch s.Status {
	case StatusPending, StatusInProgress, StatusCompleted, StatusBlocked:
	default:
		s.Status = StatusPending
	}
}

// normalizeDependsOn removes duplicates, self-references, forward references,
// and non-positive ids, returning a sorted list.
func normalizeDependsOn(stepID int, deps []int) []int {
	if len(deps) == 0 {
		return nil
	}
	seen := make(map[int]bool, len(deps))
	var out []int
	for _, dep := range deps {
		if dep <= 0 || dep == stepID || (stepID > 0 && dep > stepID) {
			continue
		}
		if seen[dep] {
			continue
		}
		seen[dep] = true
		out = append(out, dep)
	}
	sort.Ints(out)
	return out
}

func truncateTitle(instruction string) string {
	title := instruction
	if idx := strings.IndexAny(title, "\n。."); idx > 0 {
		title = title[:idx]
	}
	runes := []rune(title)
	if len(runes) > maxTitleLength {
		title = string(runes[:maxTitleLength])
	}
	return strings.TrimSpace(title)
}

// Normalize canonicalizes every step in the plan.
func (p *Plan) Normalize() {
	for i := range p.Steps {
		NormalizeStep(&p.Steps[i])
	}
}

// AppendStep normalizes the step, assigns it the next monotonic id, and
// appends it as pending. When the step omits depends_on, it defaults to the
// current tail step so ordering stays deterministic.
func (p *Plan) AppendStep(s PlanStep) *PlanStep {
	tail := p.MaxID()
	s.ID = p.NextID()
	s.Status = StatusPending
	if len(s.DependsOn) == 0 && tail > 0 {
		s.DependsOn = []int{tail}
	}
	NormalizeStep(&s)
	p.Steps = append(p.Steps, s)
	return &p.Steps[len(p.Steps)-1]
}
