// Package retry decides what happens to a blocked step: re-dispatch, a
// fallback step with a different strategy, or escalation to user
// clarification once the rethink budget runs out.
package retry

import (
	"fmt"

	"github.com/felixgeelhaar/storyboard/internal/log"
	"github.com/felixgeelhaar/storyboard/internal/plan"
	"github.com/felixgeelhaar/storyboard/internal/state"
)

// Rethink budget caps. Per-task counts retries against one origin step; the
// per-turn cap bounds total self-correction within a single conversation turn.
const (
	MaxRethinkPerTask = 2
	MaxRethinkPerTurn = 6
)

// FailedCheckMissingResearch marks a failure class that retrying the same
// worker cannot fix; it escalates immediately.
const FailedCheckMissingResearch = "missing_research"

// AlternativePrefix prepends the fallback step instruction so the worker
// knows not to repeat the failed strategy literally.
const AlternativePrefix = "Alternative approach: "

// Decision is the controller's verdict for one blocked step.
type Decision string

const (
	// DecisionRedispatch re-runs the same step unchanged (transient failure)
	DecisionRedispatch Decision = "redispatch"
	// DecisionFallback appends a fresh step with a different strategy
	DecisionFallback Decision = "fallback"
	// DecisionEscalate hands control to the user for clarification
	DecisionEscalate Decision = "escalate"
	// DecisionNone means no blocked step exists
	DecisionNone Decision = "none"
)

// Outcome describes what the controller did and why.
type Outcome struct {
	Decision Decision
	// StepID is the blocked step that triggered the decision
	StepID int
	// OriginStepID is the retry-budget accounting key
	OriginStepID int
	// FallbackStepID is the appended step id for DecisionFallback
	FallbackStepID int
	Reason         string
}

// Controller applies the rethink budget to blocked steps.
type Controller struct {
	logger *log.Logger
}

// NewController creates a retry controller.
func NewController(logger *log.Logger) *Controller {
	if logger == nil {
		logger = log.DefaultLogger()
	}
	return &Controller{logger: logger}
}

// Handle inspects the plan for blocked steps and applies the retry policy to
// the most recently blocked one. The plan and session are mutated in place:
// a redispatch flips the step back to in_progress, a fallback appends a new
// pending step, an escalation changes nothing.
func (c *Controller) Handle(p *plan.Plan, sess *state.Session) *Outcome {
	blocked := p.BlockedSteps()
	if len(blocked) == 0 {
		return &Outcome{Decision: DecisionNone}
	}
	// most recently blocked wins
	step := blocked[len(blocked)-1]

	origin := step.OriginStepID
	if origin == 0 {
		origin = step.ID
	}

	if report, ok := sess.QualityReports[origin]; ok && hasCheck(report.FailedChecks, FailedCheckMissingResearch) {
		return c.escalate(step, origin, "missing research cannot be fixed by retrying the same worker")
	}
	if report, ok := sess.QualityReports[step.ID]; ok && hasCheck(report.FailedChecks, FailedCheckMissingResearch) {
		return c.escalate(step, origin, "missing research cannot be fixed by retrying the same worker")
	}

	used := sess.RethinkUsedByStep[origin]
	if used >= MaxRethinkPerTask {
		return c.escalate(step, origin,
			fmt.Sprintf("step %d exhausted its retry budget (%d/%d)", origin, used, MaxRethinkPerTask))
	}
	if sess.RethinkUsedTurn >= MaxRethinkPerTurn {
		return c.escalate(step, origin,
			fmt.Sprintf("turn retry budget exhausted (%d/%d)", sess.RethinkUsedTurn, MaxRethinkPerTurn))
	}

	if sess.RethinkUsedByStep == nil {
		sess.RethinkUsedByStep = make(map[int]int)
	}
	sess.RethinkUsedByStep[origin]++
	sess.RethinkUsedTurn++

	if used == 0 {
		// first retry: same step, same destination, unchanged instruction
		step.Status = plan.StatusInProgress
		c.logger.Info("retrying blocked step", "step_id", step.ID, "origin_step_id", origin)
		return &Outcome{
			Decision:     DecisionRedispatch,
			StepID:       step.ID,
			OriginStepID: origin,
			Reason:       "first retry re-dispatches the same step",
		}
	}

	// second retry: the blocked step stays blocked; a fresh step with a
	// different strategy is appended instead
	fallback := p.AppendStep(plan.PlanStep{
		Capability:        step.Capability,
		Mode:              step.Mode,
		Instruction:       AlternativePrefix + step.Instruction,
		TargetScope:       step.TargetScope,
		AssetRequirements: append([]plan.AssetRequirement(nil), step.AssetRequirements...),
		// inherit the original inputs rather than chaining behind the blocked step
		DependsOn:    append([]int(nil), step.DependsOn...),
		OriginStepID: origin,
	})
	c.logger.Info("appending fallback step",
		"step_id", step.ID, "origin_step_id", origin, "fallback_step_id", fallback.ID)
	return &Outcome{
		Decision:       DecisionFallback,
		StepID:         step.ID,
		OriginStepID:   origin,
		FallbackStepID: fallback.ID,
		Reason:         "second retry switches strategy instead of repeating",
	}
}

func (c *Controller) escalate(step *plan.PlanStep, origin int, reason string) *Outcome {
	c.logger.Warn("escalating to user clarification", "step_id", step.ID, "reason", reason)
	return &Outcome{
		Decision:     DecisionEscalate,
		StepID:       step.ID,
		OriginStepID: origin,
		Reason:       reason,
	}
}

func hasCheck(checks []string, want string) bool {
	for _, c := range checks {
		if c == want {
			return true
		}
	}
	return false
}
