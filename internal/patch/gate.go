package patch

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/felixgeelhaar/storyboard/internal/errors"
	"github.com/felixgeelhaar/storyboard/internal/plan"
)

// Result carries the patched plan plus everything the caller needs to report:
// warnings from downgraded operations and the ids of steps the gate created.
type Result struct {
	Plan       *plan.Plan
	Warnings   []string
	NewStepIDs []int
}

// Apply runs a patch log against a plan and returns the patched copy. The
// input plan is never mutated: operations work on a deep copy, and any hard
// error discards the copy entirely. Completed and in-flight steps are
// immutable; edits and splits aimed at them degrade to append_tail with a
// warning instead of failing the whole log.
//
// The ledger maps known asset unit ids to their metadata and is used to
// validate target_scope payloads; pass nil when no ledger exists yet.
func Apply(p *plan.Plan, ops []Op, ledger map[string]any) (*Result, error) {
	working, err := clonePlan(p)
	if err != nil {
		return nil, err
	}

	res := &Result{Plan: working}
	for i, op := range ops {
		switch op.Op {
		case OpEditPending:
			err = applyEditPending(res, op, ledger)
		case OpSplitPending:
			err = applySplitPending(res, op, ledger)
		case OpAppendTail:
			err = applyAppendTail(res, op, ledger)
		default:
			err = errors.NewPatchUnknownOpError(string(op.Op))
		}
		if err != nil {
			if sbErr, ok := err.(*errors.StoryboardError); ok {
				sbErr.Message = fmt.Sprintf("op %d (%s): %s", i, op.Op, sbErr.Message)
				return nil, sbErr
			}
			return nil, err
		}
	}

	working.Normalize()
	if err := working.Validate(); err != nil {
		return nil, err
	}
	return res, nil
}

// applyEditPending merges allowed fields into a pending target. Non-pending
// targets are left untouched and the edit is re-expressed as a tail append.
func applyEditPending(res *Result, op Op, ledger map[string]any) error {
	target := res.Plan.StepByID(op.TargetStepID)
	if target == nil {
		res.Warnings = append(res.Warnings,
			fmt.Sprintf("edit_pending: step %d not found, appending as new step", op.TargetStepID))
		return appendFromPayload(res, op.Payload, ledger)
	}
	if target.Status != plan.StatusPending {
		res.Warnings = append(res.Warnings,
			fmt.Sprintf("edit_pending: step %d is %s, appending as new step instead", target.ID, target.Status))
		return appendFromPayload(res, op.Payload, ledger)
	}

	merged, warnings, err := mergeStep(target, op.Payload, ledger)
	if err != nil {
		return err
	}
	res.Warnings = append(res.Warnings, warnings...)
	*target = merged
	plan.NormalizeStep(target)
	return nil
}

// applySplitPending appends a chain of refinement steps after a pending
// target. Nothing is removed: the first new step depends on the target, each
// subsequent one on its predecessor, so the refinements execute in order once
// the target completes.
func applySplitPending(res *Result, op Op, ledger map[string]any) error {
	rawSteps, err := stepsFromPayload(op.Payload)
	if err != nil {
		return err
	}

	target := res.Plan.StepByID(op.TargetStepID)
	if target == nil || target.Status != plan.StatusPending {
		status := "missing"
		if target != nil {
			status = string(target.Status)
		}
		res.Warnings = append(res.Warnings,
			fmt.Sprintf("split_pending: step %d is %s, appending steps to tail instead", op.TargetStepID, status))
		return appendSteps(res, rawSteps, ledger)
	}

	prevID := target.ID
	for _, raw := range rawSteps {
		step, warnings, err := parseStepPayload(raw, ledger)
		if err != nil {
			return err
		}
		res.Warnings = append(res.Warnings, warnings...)

		step.DependsOn = []int{prevID}
		appended := res.Plan.AppendStep(step)
		prevID = appended.ID
		res.NewStepIDs = append(res.NewStepIDs, appended.ID)
	}
	return nil
}

func applyAppendTail(res *Result, op Op, ledger map[string]any) error {
	rawSteps, err := stepsFromPayload(op.Payload)
	if err != nil {
		return err
	}
	return appendSteps(res, rawSteps, ledger)
}

func appendSteps(res *Result, rawSteps []map[string]any, ledger map[string]any) error {
	for _, raw := range rawSteps {
		if err := appendFromPayload(res, raw, ledger); err != nil {
			return err
		}
	}
	return nil
}

// appendFromPayload normalizes one step payload and appends it as a pending
// tail step. The payload may itself be a steps wrapper (as produced when a
// whole op is downgraded); in that case each inner step is appended.
func appendFromPayload(res *Result, payload map[string]any, ledger map[string]any) error {
	if _, hasSteps := payload["steps"]; hasSteps {
		rawSteps, err := stepsFromPayload(payload)
		if err != nil {
			return err
		}
		return appendSteps(res, rawSteps, ledger)
	}
	if _, hasSteps := payload["new_steps"]; hasSteps {
		rawSteps, err := stepsFromPayload(payload)
		if err != nil {
			return err
		}
		return appendSteps(res, rawSteps, ledger)
	}

	step, warnings, err := parseStepPayload(payload, ledger)
	if err != nil {
		return err
	}
	res.Warnings = append(res.Warnings, warnings...)

	appended := res.Plan.AppendStep(step)
	res.NewStepIDs = append(res.NewStepIDs, appended.ID)
	return nil
}

// mergeStep overlays payload fields onto an existing step, touching only the
// editable field set. Unknown keys are reported as warnings, not errors.
func mergeStep(base *plan.PlanStep, payload map[string]any, ledger map[string]any) (plan.PlanStep, []string, error) {
	var warnings []string

	overlay := make(map[string]any, len(payload))
	ignored := make([]string, 0)
	for key, value := range payload {
		if !editableFields[key] {
			ignored = append(ignored, key)
			continue
		}
		overlay[key] = value
	}
	if len(ignored) > 0 {
		sort.Strings(ignored)
		warnings = append(warnings, fmt.Sprintf("edit_pending: ignored non-editable fields %v on step %d", ignored, base.ID))
	}

	baseData, err := json.Marshal(base)
	if err != nil {
		return plan.PlanStep{}, nil, errors.NewPatchBadPayloadError(err.Error())
	}
	var baseMap map[string]any
	if err := json.Unmarshal(baseData, &baseMap); err != nil {
		return plan.PlanStep{}, nil, errors.NewPatchBadPayloadError(err.Error())
	}
	for key, value := range overlay {
		baseMap[key] = value
	}
	baseMap["id"] = base.ID
	baseMap["status"] = string(base.Status)
	// The existing scope was validated when it entered the plan; only a scope
	// present in the payload goes through ledger validation again.
	if _, ok := overlay["target_scope"]; !ok {
		delete(baseMap, "target_scope")
	}

	merged, mergeWarnings, err := parseStepPayload(baseMap, ledger)
	if err != nil {
		return plan.PlanStep{}, nil, err
	}
	warnings = append(warnings, mergeWarnings...)

	merged.ID = base.ID
	merged.Status = base.Status
	if _, ok := overlay["target_scope"]; !ok {
		merged.TargetScope = base.TargetScope
	}
	return merged, warnings, nil
}

// clonePlan deep-copies a plan through its JSON form so patch application can
// never alias the caller's step slices.
func clonePlan(p *plan.Plan) (*plan.Plan, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, errors.NewPatchBadPayloadError(fmt.Sprintf("plan not serializable: %v", err))
	}
	var clone plan.Plan
	if err := json.Unmarshal(data, &clone); err != nil {
		return nil, errors.NewPatchBadPayloadError(fmt.Sprintf("plan not round-trippable: %v", err))
	}
	return &clone, nil
}
