// Package patch applies structured mutation operators to a frozen plan
// without invalidating completed work. Recoverable issues are downgraded to
// warnings; only structurally invalid payloads are rejected, and a rejection
// leaves the plan unmodified.
package patch

import (
	"encoding/json"
	"fmt"

	"github.com/felixgeelhaar/storyboard/internal/errors"
	"github.com/felixgeelhaar/storyboard/internal/plan"
)

// OpName identifies a patch operator.
type OpName string

const (
	// OpEditPending merges allowed fields into a pending step
	OpEditPending OpName = "edit_pending"
	// OpSplitPending appends refinement steps chained after a pending step
	OpSplitPending OpName = "split_pending"
	// OpAppendTail appends brand-new pending steps to the end of the plan
	OpAppendTail OpName = "append_tail"
)

// Op is one structured mutation. Payload stays loosely typed until the gate
// validates it; every accepted step is re-normalized through the canonical
// step shape before insertion.
type Op struct {
	Op           OpName         `json:"op"`
	TargetStepID int            `json:"target_step_id,omitempty"`
	Payload      map[string]any `json:"payload,omitempty"`
}

// ParseOps decodes a raw patch log into typed ops.
func ParseOps(raw []map[string]any) ([]Op, error) {
	ops := make([]Op, 0, len(raw))
	for i, entry := range raw {
		data, err := json.Marshal(entry)
		if err != nil {
			return nil, errors.NewPatchBadPayloadError(fmt.Sprintf("op %d is not serializable", i))
		}
		var op Op
		if err := json.Unmarshal(data, &op); err != nil {
			return nil, errors.NewPatchBadPayloadError(fmt.Sprintf("op %d: %v", i, err))
		}
		ops = append(ops, op)
	}
	return ops, nil
}

// editableFields are the only step fields edit_pending may merge.
var editableFields = map[string]bool{
	"capability":       true,
	"mode":             true,
	"instruction":      true,
	"title":            true,
	"description":      true,
	"inputs":           true,
	"outputs":          true,
	"preconditions":    true,
	"validation":       true,
	"success_criteria": true,
	"target_scope":     true,
	"fallback":         true,
	"depends_on":       true,
	"design_direction": true,
}

// parseStepPayload converts a loose step map into a canonical PlanStep.
// Ids and statuses in the payload are ignored (the gate assigns both); the
// target_scope sub-payload is validated against the ledger.
func parseStepPayload(raw map[string]any, ledger map[string]any) (plan.PlanStep, []string, error) {
	var warnings []string

	cleaned := make(map[string]any, len(raw))
	for key, value := range raw {
		if key == "id" || key == "status" || key == "target_scope" {
			continue
		}
		cleaned[key] = value
	}

	data, err := json.Marshal(cleaned)
	if err != nil {
		return plan.PlanStep{}, nil, errors.NewPatchBadPayloadError(err.Error())
	}
	var step plan.PlanStep
	if err := json.Unmarshal(data, &step); err != nil {
		return plan.PlanStep{}, nil, errors.NewPatchBadPayloadError(err.Error())
	}

	if rawScope, ok := raw["target_scope"]; ok && rawScope != nil {
		scopeMap, ok := rawScope.(map[string]any)
		if !ok {
			return plan.PlanStep{}, nil, errors.New(errors.ErrCodePatchBadScope, "target_scope must be an object")
		}
		scope, scopeWarnings, err := plan.ParseTargetScope(scopeMap, ledger)
		if err != nil {
			return plan.PlanStep{}, nil, err
		}
		warnings = append(warnings, scopeWarnings...)
		step.TargetScope = scope
	}

	return step, warnings, nil
}

// stepsFromPayload extracts the step list from a payload. split_pending uses
// "new_steps", append_tail uses "steps"; either key is accepted for both.
func stepsFromPayload(payload map[string]any) ([]map[string]any, error) {
	raw, ok := payload["steps"]
	if !ok {
		raw, ok = payload["new_steps"]
	}
	if !ok || raw == nil {
		return nil, errors.NewPatchBadPayloadError("payload has no steps list")
	}

	list, ok := raw.([]any)
	if !ok {
		return nil, errors.NewPatchBadPayloadError("steps must be a list")
	}

	steps := make([]map[string]any, 0, len(list))
	for i, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, errors.NewPatchBadPayloadError(fmt.Sprintf("step %d is not an object", i))
		}
		steps = append(steps, m)
	}
	if len(steps) == 0 {
		return nil, errors.NewPatchBadPayloadError("steps list is empty")
	}
	return steps, nil
}
