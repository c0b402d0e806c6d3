package retry

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/storyboard/internal/plan"
	"github.com/felixgeelhaar/storyboard/internal/state"
)

func blockedPlan() *plan.Plan {
	p := &plan.Plan{
		Steps: []plan.PlanStep{
			{ID: 1, Capability: plan.CapabilityWriter, Instruction: "draft", Status: plan.StatusCompleted},
			{ID: 5, Capability: plan.CapabilityVisualizer, Instruction: "render slides",
				DependsOn: []int{1}, Status: plan.StatusBlocked},
		},
	}
	p.Normalize()
	return p
}

func TestHandle_NoBlockedStep(t *testing.T) {
	c := NewController(nil)
	p := &plan.Plan{Steps: []plan.PlanStep{{ID: 1, Instruction: "x", Status: plan.StatusPending}}}
	p.Normalize()

	out := c.Handle(p, state.NewSession())
	assert.Equal(t, DecisionNone, out.Decision)
}

func TestHandle_FirstRetryRedispatchesSameStep(t *testing.T) {
	c := NewController(nil)
	p := blockedPlan()
	sess := state.NewSession()

	out := c.Handle(p, sess)
	assert.Equal(t, DecisionRedispatch, out.Decision)
	assert.Equal(t, 5, out.StepID)
	assert.Equal(t, plan.StatusInProgress, p.StepByID(5).Status)
	assert.Equal(t, "render slides", p.StepByID(5).Instruction)
	assert.Equal(t, 1, sess.RethinkUsedByStep[5])
	assert.Equal(t, 1, sess.RethinkUsedTurn)
	assert.Len(t, p.Steps, 2)
}

func TestHandle_SecondRetryAppendsFallbackStep(t *testing.T) {
	c := NewController(nil)
	p := blockedPlan()
	sess := state.NewSession()
	sess.RethinkUsedByStep[5] = 1
	sess.RethinkUsedTurn = 1

	out := c.Handle(p, sess)
	assert.Equal(t, DecisionFallback, out.Decision)
	assert.Equal(t, 5, out.StepID)
	assert.Equal(t, 6, out.FallbackStepID)

	// the blocked step is never touched
	assert.Equal(t, plan.StatusBlocked, p.StepByID(5).Status)

	fallback := p.StepByID(6)
	require.NotNil(t, fallback)
	assert.Equal(t, plan.StatusPending, fallback.Status)
	assert.Equal(t, 5, fallback.OriginStepID)
	assert.Equal(t, plan.CapabilityVisualizer, fallback.Capability)
	assert.True(t, strings.HasPrefix(fallback.Instruction, AlternativePrefix))
	assert.Contains(t, fallback.Instruction, "render slides")
	assert.Equal(t, []int{1}, fallback.DependsOn)

	assert.Equal(t, 2, sess.RethinkUsedByStep[5])
	assert.Equal(t, 2, sess.RethinkUsedTurn)
}

func TestHandle_FallbackFailureChargesOrigin(t *testing.T) {
	c := NewController(nil)
	p := blockedPlan()
	sess := state.NewSession()

	// the earlier fallback for step 5 is itself blocked now
	p.StepByID(5).Status = plan.StatusCompleted
	fb := p.AppendStep(plan.PlanStep{
		Capability: plan.CapabilityVisualizer, Instruction: "alt render", OriginStepID: 5,
	})
	fb.Status = plan.StatusBlocked
	sess.RethinkUsedByStep[5] = 2

	out := c.Handle(p, sess)
	assert.Equal(t, DecisionEscalate, out.Decision)
	assert.Equal(t, 5, out.OriginStepID)
}

func TestHandle_PerTaskBudgetEscalates(t *testing.T) {
	c := NewController(nil)
	p := blockedPlan()
	sess := state.NewSession()
	sess.RethinkUsedByStep[5] = MaxRethinkPerTask

	out := c.Handle(p, sess)
	assert.Equal(t, DecisionEscalate, out.Decision)
	assert.Contains(t, out.Reason, "retry budget")
	assert.Equal(t, plan.StatusBlocked, p.StepByID(5).Status)
	assert.Len(t, p.Steps, 2)
}

func TestHandle_PerTurnBudgetEscalates(t *testing.T) {
	c := NewController(nil)
	p := blockedPlan()
	sess := state.NewSession()
	sess.RethinkUsedTurn = MaxRethinkPerTurn

	out := c.Handle(p, sess)
	assert.Equal(t, DecisionEscalate, out.Decision)
	assert.Contains(t, out.Reason, "turn retry budget")
}

func TestHandle_MissingResearchEscalatesImmediately(t *testing.T) {
	c := NewController(nil)
	p := blockedPlan()
	sess := state.NewSession()
	sess.RecordQualityReport(plan.QualityReport{
		StepID: 5, Passed: false, FailedChecks: []string{FailedCheckMissingResearch},
	})

	out := c.Handle(p, sess)
	assert.Equal(t, DecisionEscalate, out.Decision)
	assert.Contains(t, out.Reason, "missing research")
	assert.Equal(t, 0, sess.RethinkUsedTurn)
}

func TestHandle_MostRecentlyBlockedWins(t *testing.T) {
	c := NewController(nil)
	p := &plan.Plan{
		Steps: []plan.PlanStep{
			{ID: 1, Capability: plan.CapabilityWriter, Instruction: "a", Status: plan.StatusBlocked},
			{ID: 2, Capability: plan.CapabilityWriter, Instruction: "b", Status: plan.StatusBlocked},
		},
	}
	p.Normalize()

	out := c.Handle(p, state.NewSession())
	assert.Equal(t, 2, out.StepID)
}

func TestHandle_TerminatesWithinBudget(t *testing.T) {
	c := NewController(nil)
	p := blockedPlan()
	sess := state.NewSession()

	decisions := make([]Decision, 0, MaxRethinkPerTask+2)
	for i := 0; i < MaxRethinkPerTask+2; i++ {
		// the scheduler would re-block the step after each failed attempt
		p.StepByID(5).Status = plan.StatusBlocked
		for _, s := range p.Steps {
			if s.OriginStepID == 5 && s.Status == plan.StatusPending {
				p.StepByID(s.ID).Status = plan.StatusBlocked
			}
		}
		out := c.Handle(p, sess)
		decisions = append(decisions, out.Decision)
		if out.Decision == DecisionEscalate {
			break
		}
	}

	require.Equal(t, []Decision{DecisionRedispatch, DecisionFallback, DecisionEscalate}, decisions)
	assert.Equal(t, MaxRethinkPerTask, sess.RethinkUsedByStep[5])
}
