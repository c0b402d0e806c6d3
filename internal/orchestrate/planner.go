package orchestrate

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/felixgeelhaar/storyboard/internal/errors"
	"github.com/felixgeelhaar/storyboard/internal/log"
	"github.com/felixgeelhaar/storyboard/internal/patch"
	"github.com/felixgeelhaar/storyboard/internal/plan"
	"github.com/felixgeelhaar/storyboard/internal/provider"
	"github.com/felixgeelhaar/storyboard/internal/state"
)

// Planner turns free-form user text into structured plans and patch logs via
// the LLM. All model output passes through the same gate validation as any
// other patch source; the planner itself never mutates the session plan.
type Planner struct {
	invoker provider.Invoker
	logger  *log.Logger
}

// NewPlanner creates a planner backed by the given invoker.
func NewPlanner(invoker provider.Invoker, logger *log.Logger) *Planner {
	if logger == nil {
		logger = log.DefaultLogger()
	}
	return &Planner{invoker: invoker, logger: logger}
}

func arrayOf(item *openapi3.Schema) *openapi3.Schema {
	s := openapi3.NewArraySchema()
	s.Items = openapi3.NewSchemaRef("", item)
	return s
}

func stepItemSchema() *openapi3.Schema {
	item := openapi3.NewObjectSchema()
	item.Properties = openapi3.Schemas{
		"capability":       openapi3.NewSchemaRef("", openapi3.NewStringSchema()),
		"mode":             openapi3.NewSchemaRef("", openapi3.NewStringSchema()),
		"instruction":      openapi3.NewSchemaRef("", openapi3.NewStringSchema()),
		"title":            openapi3.NewSchemaRef("", openapi3.NewStringSchema()),
		"description":      openapi3.NewSchemaRef("", openapi3.NewStringSchema()),
		"depends_on":       openapi3.NewSchemaRef("", arrayOf(openapi3.NewIntegerSchema())),
		"inputs":           openapi3.NewSchemaRef("", arrayOf(openapi3.NewStringSchema())),
		"outputs":          openapi3.NewSchemaRef("", arrayOf(openapi3.NewStringSchema())),
		"success_criteria": openapi3.NewSchemaRef("", arrayOf(openapi3.NewStringSchema())),
		"target_scope":     openapi3.NewSchemaRef("", openapi3.NewObjectSchema()),
	}
	item.Required = []string{"capability", "instruction"}
	return item
}

func planSchema() *provider.Schema {
	return provider.NewObjectSchema("plan", map[string]*openapi3.Schema{
		"steps": arrayOf(stepItemSchema()),
	}, "steps")
}

func patchSchema() *provider.Schema {
	op := openapi3.NewObjectSchema()
	op.Properties = openapi3.Schemas{
		"op":             openapi3.NewSchemaRef("", openapi3.NewStringSchema()),
		"target_step_id": openapi3.NewSchemaRef("", openapi3.NewIntegerSchema()),
		"payload":        openapi3.NewSchemaRef("", openapi3.NewObjectSchema()),
	}
	op.Required = []string{"op"}
	return provider.NewObjectSchema("patch_log", map[string]*openapi3.Schema{
		"ops": arrayOf(op),
	}, "ops")
}

// GeneratePlan asks the model for a fresh step list and materializes it
// through the patch gate so id assignment, normalization, and scope
// validation follow the single canonical path.
func (pl *Planner) GeneratePlan(ctx context.Context, sess *state.Session, userText string) (*plan.Plan, []string, error) {
	var prompt strings.Builder
	prompt.WriteString("Break the following request into an ordered production plan.\n")
	prompt.WriteString("Each step names one capability (writer, visualizer, researcher, data_analyst) and one instruction.\n")
	prompt.WriteString("Reference earlier steps via depends_on using their 1-based position.\n\n")
	fmt.Fprintf(&prompt, "Request: %s\n", userText)

	raw, err := pl.invoker.Invoke(ctx, planSchema(), []provider.Message{
		{Role: "user", Content: prompt.String()},
	})
	if err != nil {
		return nil, nil, err
	}

	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, nil, errors.Wrap(errors.ErrCodePlanInvalid, "planner output is not an object", err)
	}

	ops := []patch.Op{{Op: patch.OpAppendTail, Payload: payload}}
	res, err := patch.Apply(&plan.Plan{}, ops, sess.AssetUnitLedger)
	if err != nil {
		return nil, nil, err
	}

	pl.logger.Info("plan generated", "steps", len(res.Plan.Steps))
	return res.Plan, res.Warnings, nil
}

// ProposePatch asks the model for a patch log against the current plan. The
// returned ops are parse-checked but not applied; the caller queues them for
// the gate so a mid-turn interrupt can replay them idempotently.
func (pl *Planner) ProposePatch(ctx context.Context, sess *state.Session, d *Decision, userText string) ([]map[string]any, error) {
	planJSON, err := json.Marshal(sess.Plan)
	if err != nil {
		return nil, fmt.Errorf("marshal current plan: %w", err)
	}

	var prompt strings.Builder
	prompt.WriteString("Produce a patch log for the plan below.\n")
	prompt.WriteString("Allowed ops: edit_pending (merge fields into a pending step), split_pending (append refinement steps chained after a pending step), append_tail (append new steps).\n")
	prompt.WriteString("Completed and in-progress steps are frozen; rework them by appending new steps.\n\n")
	fmt.Fprintf(&prompt, "Current plan: %s\n", planJSON)
	if d != nil {
		fmt.Fprintf(&prompt, "Request intent: %s\n", d.Intent)
		if d.Scope != nil {
			scopeJSON, _ := json.Marshal(d.Scope)
			fmt.Fprintf(&prompt, "The request targets these units; set target_scope on every new or edited step: %s\n", scopeJSON)
		}
	}
	fmt.Fprintf(&prompt, "Request: %s\n", userText)

	raw, err := pl.invoker.Invoke(ctx, patchSchema(), []provider.Message{
		{Role: "user", Content: prompt.String()},
	})
	if err != nil {
		return nil, err
	}

	var decoded struct {
		Ops []map[string]any `json:"ops"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, errors.Wrap(errors.ErrCodePatchBadPayload, "patch planner output is not a patch log", err)
	}
	if len(decoded.Ops) == 0 {
		return nil, errors.New(errors.ErrCodePatchBadPayload, "patch planner produced no ops")
	}

	// fail fast on ops the gate would reject wholesale
	if _, err := patch.ParseOps(decoded.Ops); err != nil {
		return nil, err
	}

	pl.logger.Info("patch proposed", "ops", len(decoded.Ops))
	return decoded.Ops, nil
}
