package orchestrate

import (
	"context"

	"github.com/felixgeelhaar/storyboard/internal/log"
	"github.com/felixgeelhaar/storyboard/internal/patch"
	"github.com/felixgeelhaar/storyboard/internal/plan"
	"github.com/felixgeelhaar/storyboard/internal/state"
	"github.com/felixgeelhaar/storyboard/internal/supervisor"
)

// TurnResult summarizes one conversation turn.
type TurnResult struct {
	Route    Route
	Intent   Intent
	Warnings []string
	// Tick is the terminal scheduling result for the turn
	Tick *supervisor.TickResult
}

// Engine glues the manager, planner, patch gate, and supervisor into one
// conversation-turn loop. The session is single-writer: exactly one Turn runs
// at a time per session.
type Engine struct {
	manager *Manager
	planner *Planner
	super   *supervisor.Supervisor
	logger  *log.Logger
}

// NewEngine creates a turn engine.
func NewEngine(manager *Manager, planner *Planner, super *supervisor.Supervisor, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.DefaultLogger()
	}
	return &Engine{manager: manager, planner: planner, super: super, logger: logger}
}

// Turn routes one user message, updates the plan accordingly, and drives the
// supervisor to a terminal state.
func (e *Engine) Turn(ctx context.Context, sess *state.Session, userText string) (*TurnResult, error) {
	sess.BeginTurn()
	d := e.manager.Decide(sess, userText)
	result := &TurnResult{Route: d.Route, Intent: d.Intent}

	switch d.Route {
	case RoutePlanner:
		p, warnings, err := e.planner.GeneratePlan(ctx, sess, userText)
		if err != nil {
			return nil, err
		}
		result.Warnings = append(result.Warnings, warnings...)
		sess.Plan = p
		sess.BaselineHash = ""
		if hash, err := plan.BaselineHash(p); err == nil {
			sess.BaselineHash = hash
		}

	case RoutePatchPlanner:
		ops, err := e.planner.ProposePatch(ctx, sess, d, userText)
		if err != nil {
			return nil, err
		}
		sess.PendingPatchOps = ops
		if err := e.applyQueuedOps(sess, result); err != nil {
			return nil, err
		}

	case RoutePatchGate:
		if err := e.applyQueuedOps(sess, result); err != nil {
			return nil, err
		}

	case RouteSupervisor:
		// frozen plan passes straight through to scheduling
	}

	tick, err := e.super.Run(ctx, sess.Plan, sess)
	if err != nil {
		return nil, err
	}
	result.Tick = tick
	return result, nil
}

// applyQueuedOps runs the pending patch log through the gate. A hard error
// drops the log: replaying a structurally invalid patch can never succeed.
func (e *Engine) applyQueuedOps(sess *state.Session, result *TurnResult) error {
	ops, err := patch.ParseOps(sess.PendingPatchOps)
	if err != nil {
		sess.PendingPatchOps = nil
		return err
	}
	res, err := patch.Apply(sess.Plan, ops, sess.AssetUnitLedger)
	if err != nil {
		sess.PendingPatchOps = nil
		return err
	}

	sess.Plan = res.Plan
	sess.PendingPatchOps = nil
	sess.InterruptPending = false
	result.Warnings = append(result.Warnings, res.Warnings...)
	e.logger.Info("patch applied", "new_steps", len(res.NewStepIDs), "warnings", len(res.Warnings))
	return nil
}
