package orchestrate

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/storyboard/internal/plan"
	"github.com/felixgeelhaar/storyboard/internal/provider"
	"github.com/felixgeelhaar/storyboard/internal/resolve"
	"github.com/felixgeelhaar/storyboard/internal/retry"
	"github.com/felixgeelhaar/storyboard/internal/state"
	"github.com/felixgeelhaar/storyboard/internal/store"
	"github.com/felixgeelhaar/storyboard/internal/supervisor"
	"github.com/felixgeelhaar/storyboard/internal/worker"
)

// stubInvoker answers by schema name so one stub serves planner and patch
// planner calls in the same turn.
type stubInvoker struct {
	bySchema map[string]string
	prompts  []string
}

func (s *stubInvoker) Invoke(_ context.Context, schema *provider.Schema, messages []provider.Message) (json.RawMessage, error) {
	if len(messages) > 0 {
		s.prompts = append(s.prompts, messages[0].Content)
	}
	resp, ok := s.bySchema[schema.Name]
	if !ok {
		resp = "{}"
	}
	return json.RawMessage(resp), nil
}

// okWorker completes every step with a minimal clean artifact.
type okWorker struct{}

func (okWorker) Execute(_ context.Context, step *plan.PlanStep, _ *resolve.Resolved) (*worker.Output, error) {
	return &worker.Output{
		Artifact:      json.RawMessage(`{"content":"done"}`),
		ResultSummary: "drafted content",
	}, nil
}

func newTestEngine(t *testing.T, invoker provider.Invoker) *Engine {
	t.Helper()
	artifacts := store.NewMemoryStore()
	registry := worker.NewRegistry()
	for _, c := range plan.Capabilities {
		registry.Register(c, okWorker{})
	}
	resolver := resolve.New(artifacts, nil, resolve.Config{}, nil)
	sup := supervisor.New(registry, resolver, retry.NewController(nil), artifacts, nil, nil)
	return NewEngine(NewManager(nil), NewPlanner(invoker, nil), sup, nil)
}

func TestTurn_FreshRequestPlansAndRuns(t *testing.T) {
	inv := &stubInvoker{bySchema: map[string]string{
		"plan": `{"steps":[
			{"capability":"writer","instruction":"draft an outline"},
			{"capability":"writer","instruction":"write slide bodies","depends_on":[1]}
		]}`,
	}}
	e := newTestEngine(t, inv)
	sess := state.NewSession()

	result, err := e.Turn(context.Background(), sess, "create 3 slides about printing")
	require.NoError(t, err)

	assert.Equal(t, RoutePlanner, result.Route)
	require.NotNil(t, result.Tick)
	assert.Equal(t, supervisor.TickExhausted, result.Tick.State)
	require.NotNil(t, sess.Plan)
	require.Len(t, sess.Plan.Steps, 2)
	assert.Equal(t, []int{1}, sess.Plan.Steps[1].DependsOn)
	assert.Equal(t, plan.StatusCompleted, sess.Plan.Steps[0].Status)
	assert.Equal(t, plan.StatusCompleted, sess.Plan.Steps[1].Status)
	assert.NotEmpty(t, sess.BaselineHash)
}

func TestTurn_RefinePatchesThenRuns(t *testing.T) {
	inv := &stubInvoker{bySchema: map[string]string{
		"patch_log": `{"ops":[
			{"op":"edit_pending","target_step_id":2,"payload":{"instruction":"render in a darker palette"}}
		]}`,
	}}
	e := newTestEngine(t, inv)
	sess := sessionWithPlan()

	result, err := e.Turn(context.Background(), sess, "2枚目を修正して")
	require.NoError(t, err)

	assert.Equal(t, RoutePatchPlanner, result.Route)
	assert.Equal(t, "render in a darker palette", sess.Plan.Steps[1].Instruction)
	assert.Empty(t, sess.PendingPatchOps, "applied log is consumed")
	assert.Equal(t, supervisor.TickExhausted, result.Tick.State)
}

func TestTurn_PatchPromptCarriesScope(t *testing.T) {
	inv := &stubInvoker{bySchema: map[string]string{
		"patch_log": `{"ops":[{"op":"append_tail","payload":{"steps":[{"capability":"visualizer","instruction":"re-render slide 3"}]}}]}`,
	}}
	e := newTestEngine(t, inv)
	sess := sessionWithPlan()

	_, err := e.Turn(context.Background(), sess, "3枚目を修正")
	require.NoError(t, err)

	require.Len(t, inv.prompts, 1)
	assert.Contains(t, inv.prompts[0], `"slide:3"`)
	assert.Contains(t, inv.prompts[0], "Current plan:")
}

func TestTurn_QueuedOpsApplyWithoutPlannerCall(t *testing.T) {
	inv := &stubInvoker{bySchema: map[string]string{}}
	e := newTestEngine(t, inv)
	sess := sessionWithPlan()
	sess.InterruptPending = true
	sess.PendingPatchOps = []map[string]any{
		{"op": "append_tail", "payload": map[string]any{"steps": []any{
			map[string]any{"capability": "writer", "instruction": "add a closing slide"},
		}}},
	}

	result, err := e.Turn(context.Background(), sess, "looks good")
	require.NoError(t, err)

	assert.Equal(t, RoutePatchGate, result.Route)
	assert.Empty(t, inv.prompts, "replaying a queued log needs no model call")
	assert.False(t, sess.InterruptPending, "a successful gate pass clears the interrupt")
	assert.Len(t, sess.Plan.Steps, 3)
}

func TestTurn_InvalidQueuedOpsAreDropped(t *testing.T) {
	e := newTestEngine(t, &stubInvoker{})
	sess := sessionWithPlan()
	sess.PendingPatchOps = []map[string]any{{"op": "replace_all"}}

	_, err := e.Turn(context.Background(), sess, "continue")
	require.Error(t, err)
	assert.Empty(t, sess.PendingPatchOps, "an invalid log is never replayed")
}

func TestGeneratePlan_ValidatesThroughGate(t *testing.T) {
	inv := &stubInvoker{bySchema: map[string]string{
		"plan": `{"steps":[{"capability":"conductor","instruction":"wave hands"}]}`,
	}}
	pl := NewPlanner(inv, nil)

	_, _, err := pl.GeneratePlan(context.Background(), state.NewSession(), "do something")
	require.Error(t, err, "unknown capability is rejected by the gate")
}
