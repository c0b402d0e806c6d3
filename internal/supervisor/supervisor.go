// Package supervisor implements the main scheduling loop: it reads and writes
// step status, resolves each step's input context, dispatches to capability
// workers, and converts failures into state transitions instead of crashes.
package supervisor

import (
	"context"
	"fmt"
	"strings"

	"github.com/felixgeelhaar/storyboard/internal/event"
	"github.com/felixgeelhaar/storyboard/internal/log"
	"github.com/felixgeelhaar/storyboard/internal/plan"
	"github.com/felixgeelhaar/storyboard/internal/resolve"
	"github.com/felixgeelhaar/storyboard/internal/retry"
	"github.com/felixgeelhaar/storyboard/internal/state"
	"github.com/felixgeelhaar/storyboard/internal/store"
	"github.com/felixgeelhaar/storyboard/internal/worker"
)

// TickState classifies what one scheduling tick did.
type TickState string

const (
	// TickDispatched means a pending step was started and executed
	TickDispatched TickState = "dispatched"
	// TickRedispatched means an in_progress step without an artifact was re-sent
	TickRedispatched TickState = "redispatched"
	// TickStepCompleted means an in_progress step's artifact was committed
	TickStepCompleted TickState = "step_completed"
	// TickRetried means a blocked step was re-dispatched by the retry controller
	TickRetried TickState = "retried"
	// TickFallbackAppended means a fallback step was appended for a blocked step
	TickFallbackAppended TickState = "fallback_appended"
	// TickEscalated means the retry budget ran out; terminal
	TickEscalated TickState = "escalated"
	// TickHalted means a step is unrecoverably blocked (no worker); terminal
	TickHalted TickState = "halted"
	// TickExhausted means no pending or in_progress steps remain; terminal
	TickExhausted TickState = "exhausted"
)

// Terminal reports whether the state ends the scheduling loop.
func (s TickState) Terminal() bool {
	return s == TickEscalated || s == TickHalted || s == TickExhausted
}

// TickResult describes one scheduling tick.
type TickResult struct {
	State   TickState
	StepID  int
	Summary string
}

// Supervisor owns plan execution for one session.
type Supervisor struct {
	registry  *worker.Registry
	resolver  *resolve.Resolver
	retrier   *retry.Controller
	artifacts store.ArtifactStore
	events    event.Sink
	logger    *log.Logger
}

// New creates a supervisor. A nil sink disables event emission.
func New(registry *worker.Registry, resolver *resolve.Resolver, retrier *retry.Controller,
	artifacts store.ArtifactStore, events event.Sink, logger *log.Logger) *Supervisor {
	if events == nil {
		events = event.NopSink{}
	}
	if logger == nil {
		logger = log.DefaultLogger()
	}
	return &Supervisor{
		registry:  registry,
		resolver:  resolver,
		retrier:   retrier,
		artifacts: artifacts,
		events:    events,
		logger:    logger,
	}
}

// Run ticks the scheduler until a terminal state or context cancellation.
// The plan is only mutated at step-status commit points; cancellation between
// ticks never corrupts it.
func (s *Supervisor) Run(ctx context.Context, p *plan.Plan, sess *state.Session) (*TickResult, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		result, err := s.Tick(ctx, p, sess)
		if err != nil {
			return nil, err
		}
		if result.State.Terminal() {
			return result, nil
		}
	}
}

// Tick advances the plan by one scheduling decision.
func (s *Supervisor) Tick(ctx context.Context, p *plan.Plan, sess *state.Session) (*TickResult, error) {
	current := p.FindCurrentStep()
	if current == nil {
		return s.finish(p, sess), nil
	}

	if current.Status == plan.StatusInProgress {
		return s.checkInProgress(ctx, p, sess, current)
	}
	return s.dispatchPending(ctx, p, sess, current)
}

// finish emits the terminal summary once no pending or in_progress steps
// remain. Blocked leftovers make this a halt report rather than a success,
// unless a fallback step completed on the blocked step's behalf.
func (s *Supervisor) finish(p *plan.Plan, sess *state.Session) *TickResult {
	completed := p.CountByStatus(plan.StatusCompleted)

	recovered := make(map[int]bool)
	for i := range p.Steps {
		step := &p.Steps[i]
		if step.Status == plan.StatusCompleted && step.OriginStepID > 0 {
			recovered[step.OriginStepID] = true
		}
	}
	blocked := 0
	for i := range p.Steps {
		step := &p.Steps[i]
		if step.Status == plan.StatusBlocked && !recovered[step.ID] {
			blocked++
		}
	}

	summary := fmt.Sprintf("plan finished: %d/%d steps completed", completed, len(p.Steps))
	if blocked > 0 {
		summary = fmt.Sprintf("plan halted: %d completed, %d blocked of %d steps", completed, blocked, len(p.Steps))
	}

	s.emitPlanUpdated(p, sess)
	s.logger.Info("plan terminal", "completed", completed, "blocked", blocked, "total", len(p.Steps))
	return &TickResult{State: TickExhausted, Summary: summary}
}

// checkInProgress inspects the current in_progress step: a present artifact
// commits it (or blocks it when failure signals appear); a missing artifact
// triggers a re-dispatch of the same step without a status change.
func (s *Supervisor) checkInProgress(ctx context.Context, p *plan.Plan, sess *state.Session, step *plan.PlanStep) (*TickResult, error) {
	raw, ok, err := s.artifacts.Get(step.ArtifactKey())
	if err != nil {
		return nil, fmt.Errorf("read artifact for step %d: %w", step.ID, err)
	}

	if !ok {
		// the worker returned without producing output; send it back out
		s.logger.Info("re-dispatching step without artifact", "step_id", step.ID)
		return s.executeStep(ctx, p, sess, step, TickRedispatched)
	}

	report := inspect(step, raw)
	sess.RecordQualityReport(report)

	if !report.Passed {
		step.Status = plan.StatusBlocked
		s.emitStepEnded(sess, step)
		s.emitPlanUpdated(p, sess)
		s.logger.Warn("step failed quality inspection",
			"step_id", step.ID, "failed_checks", strings.Join(report.FailedChecks, ","))
		return s.handleBlocked(ctx, p, sess)
	}

	step.Status = plan.StatusCompleted
	s.emitStepEnded(sess, step)
	s.emitPlanUpdated(p, sess)
	return &TickResult{State: TickStepCompleted, StepID: step.ID}, nil
}

// dispatchPending resolves and executes the first pending step.
func (s *Supervisor) dispatchPending(ctx context.Context, p *plan.Plan, sess *state.Session, step *plan.PlanStep) (*TickResult, error) {
	if _, err := s.registry.Lookup(step.Capability); err != nil {
		// fatal for this step: no destination exists and retrying cannot help
		step.Status = plan.StatusBlocked
		step.ResultSummary = err.Error()
		s.emitStepEnded(sess, step)
		s.emitPlanUpdated(p, sess)
		s.logger.WithError(err).Error("no worker for capability", "step_id", step.ID)
		return &TickResult{
			State:   TickHalted,
			StepID:  step.ID,
			Summary: fmt.Sprintf("step %d has no worker for capability %q", step.ID, step.Capability),
		}, nil
	}

	step.Status = plan.StatusInProgress
	s.emitStepStarted(sess, step)
	return s.executeStep(ctx, p, sess, step, TickDispatched)
}

// executeStep runs resolution plus one worker call for a step that is already
// in_progress. Worker failures block the step and route to the retry
// controller; they never escape as errors.
func (s *Supervisor) executeStep(ctx context.Context, p *plan.Plan, sess *state.Session, step *plan.PlanStep, tickState TickState) (*TickResult, error) {
	resolved, err := s.resolver.Resolve(ctx, p, step, sess)
	if err != nil {
		return s.blockStep(ctx, p, sess, step, fmt.Sprintf("dependency resolution failed: %v", err))
	}
	s.emitAssetsSelected(sess, step, resolved)

	w, err := s.registry.Lookup(step.Capability)
	if err != nil {
		return s.blockStep(ctx, p, sess, step, err.Error())
	}

	output, err := w.Execute(ctx, step, resolved)
	if err != nil {
		if ctx.Err() != nil {
			// cancellation is not a step failure; leave the step in_progress
			// for a clean re-dispatch on the next turn
			return nil, ctx.Err()
		}
		return s.blockStep(ctx, p, sess, step, fmt.Sprintf("worker execution failed: %v", err))
	}

	if err := s.artifacts.Put(step.ArtifactKey(), output.Artifact); err != nil {
		return s.blockStep(ctx, p, sess, step, fmt.Sprintf("artifact write failed: %v", err))
	}
	step.ResultSummary = output.ResultSummary

	s.emitPlanUpdated(p, sess)
	return &TickResult{State: tickState, StepID: step.ID}, nil
}

// blockStep converts an execution failure into a blocked transition and hands
// the plan to the retry controller.
func (s *Supervisor) blockStep(ctx context.Context, p *plan.Plan, sess *state.Session, step *plan.PlanStep, summary string) (*TickResult, error) {
	step.Status = plan.StatusBlocked
	step.ResultSummary = summary
	s.emitStepEnded(sess, step)
	s.emitPlanUpdated(p, sess)
	s.logger.Warn("step blocked", "step_id", step.ID, "summary", summary)
	return s.handleBlocked(ctx, p, sess)
}

// handleBlocked runs the retry controller against the freshly blocked step.
func (s *Supervisor) handleBlocked(ctx context.Context, p *plan.Plan, sess *state.Session) (*TickResult, error) {
	outcome := s.retrier.Handle(p, sess)
	switch outcome.Decision {
	case retry.DecisionRedispatch:
		// the controller flipped the step back to in_progress; run the worker
		// again right away so the stale artifact is overwritten, not re-read
		step := p.StepByID(outcome.StepID)
		s.emitStepStarted(sess, step)
		return s.executeStep(ctx, p, sess, step, TickRetried)

	case retry.DecisionFallback:
		s.emitPlanUpdated(p, sess)
		return &TickResult{State: TickFallbackAppended, StepID: outcome.FallbackStepID}, nil

	case retry.DecisionEscalate:
		ev := event.New(event.TypeClarificationRequested, map[string]any{
			"step_id": outcome.StepID,
			"reason":  outcome.Reason,
		})
		ev.SessionID = sess.SessionID
		s.events.Emit(ev)
		sess.InterruptPending = true
		return &TickResult{State: TickEscalated, StepID: outcome.StepID, Summary: outcome.Reason}, nil

	default:
		return &TickResult{State: TickHalted, Summary: "blocked step with no retry decision"}, nil
	}
}

func (s *Supervisor) emitPlanUpdated(p *plan.Plan, sess *state.Session) {
	ev := event.New(event.TypePlanUpdated, map[string]any{"plan": p})
	ev.SessionID = sess.SessionID
	s.events.Emit(ev)
}

func (s *Supervisor) emitStepStarted(sess *state.Session, step *plan.PlanStep) {
	if step == nil {
		return
	}
	ev := event.New(event.TypeStepStarted, map[string]any{
		"step_id": step.ID,
		"status":  string(step.Status),
	})
	ev.SessionID = sess.SessionID
	s.events.Emit(ev)
}

func (s *Supervisor) emitStepEnded(sess *state.Session, step *plan.PlanStep) {
	ev := event.New(event.TypeStepEnded, map[string]any{
		"step_id": step.ID,
		"status":  string(step.Status),
	})
	ev.SessionID = sess.SessionID
	s.events.Emit(ev)
}

func (s *Supervisor) emitAssetsSelected(sess *state.Session, step *plan.PlanStep, resolved *resolve.Resolved) {
	if len(resolved.Bindings) == 0 {
		return
	}
	ev := event.New(event.TypeAssetsSelected, map[string]any{
		"step_id":  step.ID,
		"bindings": resolved.Bindings,
	})
	ev.SessionID = sess.SessionID
	s.events.Emit(ev)
}
