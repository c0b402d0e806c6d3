package research

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/storyboard/internal/plan"
	"github.com/felixgeelhaar/storyboard/internal/provider"
	"github.com/felixgeelhaar/storyboard/internal/store"
)

type stubInvoker struct {
	response json.RawMessage
	err      error
}

func (s *stubInvoker) Invoke(_ context.Context, _ *provider.Schema, _ []provider.Message) (json.RawMessage, error) {
	return s.response, s.err
}

type stubRunner struct {
	mu     sync.Mutex
	ran    []string
	failID string
}

func (s *stubRunner) Run(_ context.Context, task Task) (Result, error) {
	s.mu.Lock()
	s.ran = append(s.ran, task.ID)
	s.mu.Unlock()

	if task.ID == s.failID {
		return Result{}, fmt.Errorf("search backend unavailable")
	}
	return Result{
		TaskID:      task.ID,
		Perspective: task.Perspective,
		Findings:    "findings for " + task.Perspective,
		Confidence:  0.9,
	}, nil
}

func researcherStep() *plan.PlanStep {
	return &plan.PlanStep{
		ID:          3,
		Capability:  plan.CapabilityResearcher,
		Instruction: "research the history of printing",
		Status:      plan.StatusInProgress,
	}
}

func twoTaskDecomposition() json.RawMessage {
	return json.RawMessage(`{"tasks":[
		{"id":"t1","perspective":"history","query_hints":["gutenberg"],"priority":1},
		{"id":"t2","perspective":"technology","priority":2}
	]}`)
}

func TestExecute_FullLoop(t *testing.T) {
	artifacts := store.NewMemoryStore()
	runner := &stubRunner{}
	s := NewScheduler(&stubInvoker{response: twoTaskDecomposition()}, runner, artifacts, 0, nil)

	step := researcherStep()
	raw, err := s.Execute(context.Background(), step)
	require.NoError(t, err)

	var rollup Rollup
	require.NoError(t, json.Unmarshal(raw, &rollup))
	assert.Equal(t, 2, rollup.TaskCount)
	assert.Equal(t, 0, rollup.FailedCount)
	require.Len(t, rollup.Results, 2)
	assert.Equal(t, "t1", rollup.Results[0].TaskID)
	assert.Equal(t, "t2", rollup.Results[1].TaskID)
	assert.Contains(t, rollup.Summary, "[history]")
	assert.Contains(t, rollup.Summary, "[technology]")

	// rollup lands under the step artifact key, one artifact per task besides
	stored, ok, err := artifacts.Get("step_3_research")
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, string(raw), string(stored))

	for _, taskID := range []string{"t1", "t2"} {
		_, ok, err := artifacts.Get(fmt.Sprintf("step_3_research_task_%s", taskID))
		require.NoError(t, err)
		assert.True(t, ok, "missing task artifact for %s", taskID)
	}

	assert.ElementsMatch(t, []string{"t1", "t2"}, runner.ran)
}

func TestExecute_DecompositionFailureFallsBackToSingleTask(t *testing.T) {
	artifacts := store.NewMemoryStore()
	runner := &stubRunner{}
	s := NewScheduler(&stubInvoker{err: fmt.Errorf("model overloaded")}, runner, artifacts, 0, nil)

	raw, err := s.Execute(context.Background(), researcherStep())
	require.NoError(t, err)

	var rollup Rollup
	require.NoError(t, json.Unmarshal(raw, &rollup))
	assert.Equal(t, 1, rollup.TaskCount)
	assert.Equal(t, []string{"task_1"}, runner.ran)
	assert.Equal(t, "general", rollup.Results[0].Perspective)
}

func TestExecute_EmptyDecompositionFallsBack(t *testing.T) {
	s := NewScheduler(&stubInvoker{response: json.RawMessage(`{"tasks":[]}`)},
		&stubRunner{}, store.NewMemoryStore(), 0, nil)

	raw, err := s.Execute(context.Background(), researcherStep())
	require.NoError(t, err)

	var rollup Rollup
	require.NoError(t, json.Unmarshal(raw, &rollup))
	assert.Equal(t, 1, rollup.TaskCount)
}

func TestExecute_TaskFailureYieldsZeroConfidenceResult(t *testing.T) {
	artifacts := store.NewMemoryStore()
	runner := &stubRunner{failID: "t1"}
	s := NewScheduler(&stubInvoker{response: twoTaskDecomposition()}, runner, artifacts, 0, nil)

	raw, err := s.Execute(context.Background(), researcherStep())
	require.NoError(t, err)

	var rollup Rollup
	require.NoError(t, json.Unmarshal(raw, &rollup))
	assert.Equal(t, 1, rollup.FailedCount)

	failed := rollup.Results[0]
	assert.Equal(t, "t1", failed.TaskID)
	assert.Zero(t, failed.Confidence)
	assert.Contains(t, failed.Error, "search backend unavailable")

	// sibling unaffected
	ok := rollup.Results[1]
	assert.Equal(t, 0.9, ok.Confidence)
	assert.Empty(t, ok.Error)
}

func TestExecute_ResumeSkipsCompletedTasks(t *testing.T) {
	artifacts := store.NewMemoryStore()
	runner := &stubRunner{}
	s := NewScheduler(&stubInvoker{response: twoTaskDecomposition()}, runner, artifacts, 0, nil)

	// a prior partial run already finished t1
	s.RecordResult(Result{TaskID: "t1", Perspective: "history", Findings: "cached", Confidence: 1})

	raw, err := s.Execute(context.Background(), researcherStep())
	require.NoError(t, err)

	assert.Equal(t, []string{"t2"}, runner.ran, "t1 must not be re-run")

	var rollup Rollup
	require.NoError(t, json.Unmarshal(raw, &rollup))
	assert.Equal(t, "cached", rollup.Results[0].Findings)
}

func TestExecute_SchedulerIsReusableAfterAggregation(t *testing.T) {
	runner := &stubRunner{}
	s := NewScheduler(&stubInvoker{response: twoTaskDecomposition()}, runner, store.NewMemoryStore(), 0, nil)

	_, err := s.Execute(context.Background(), researcherStep())
	require.NoError(t, err)

	// re-entering the step decomposes and runs again from scratch
	_, err = s.Execute(context.Background(), researcherStep())
	require.NoError(t, err)
	assert.Len(t, runner.ran, 4)
}

func TestExecute_ParallelFanOut(t *testing.T) {
	runner := &stubRunner{}
	s := NewScheduler(&stubInvoker{response: twoTaskDecomposition()}, runner, store.NewMemoryStore(), 2, nil)

	raw, err := s.Execute(context.Background(), researcherStep())
	require.NoError(t, err)

	var rollup Rollup
	require.NoError(t, json.Unmarshal(raw, &rollup))
	// aggregation is order-independent: results are matched by task id
	assert.Equal(t, "t1", rollup.Results[0].TaskID)
	assert.Equal(t, "t2", rollup.Results[1].TaskID)
}

func TestDecompose_DeduplicatesTaskIDs(t *testing.T) {
	inv := &stubInvoker{response: json.RawMessage(`{"tasks":[
		{"id":"t1","perspective":"a"},
		{"id":"t1","perspective":"duplicate"},
		{"perspective":"unnamed"}
	]}`)}

	tasks, err := decompose(context.Background(), inv, "anything")
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, "t1", tasks[0].ID)
	assert.Equal(t, "task_3", tasks[1].ID)
}
