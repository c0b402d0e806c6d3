// Package orchestrate holds the top-level intent router that decides, per
// conversation turn, whether to plan from scratch, patch the existing plan,
// or hand the frozen plan to the supervisor.
package orchestrate

import (
	"github.com/felixgeelhaar/storyboard/internal/log"
	"github.com/felixgeelhaar/storyboard/internal/plan"
	"github.com/felixgeelhaar/storyboard/internal/state"
)

// Route is the destination the manager picks for this turn.
type Route string

const (
	// RoutePlanner requests a fresh plan from the external planner
	RoutePlanner Route = "planner"
	// RoutePatchPlanner derives patch ops from the user text
	RoutePatchPlanner Route = "patch_planner"
	// RoutePatchGate applies an already-queued patch log (idempotent re-entry)
	RoutePatchGate Route = "patch_gate"
	// RouteSupervisor passes the frozen plan through to execution
	RouteSupervisor Route = "supervisor"
)

// Decision is the manager's verdict for one turn.
type Decision struct {
	Route  Route
	Intent Intent
	// Scope carries unit references extracted from the user text, for the
	// patch planner to attach to its ops. Nil when none were found.
	Scope *plan.TargetScope
}

// Manager routes each turn. It owns no plan mutation beyond recording the
// baseline hash of a freshly generated plan.
type Manager struct {
	logger *log.Logger
}

// NewManager creates a plan manager.
func NewManager(logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.DefaultLogger()
	}
	return &Manager{logger: logger}
}

// Decide routes one conversation turn. An outstanding clarification
// (interrupt pending) downgrades a "new" intent to "refine" so an ambiguous
// answer never wipes the plan mid-conversation.
func (m *Manager) Decide(sess *state.Session, userText string) *Decision {
	intent := DetectIntent(userText)
	scope := ExtractScope(userText)

	if sess.InterruptPending && sess.HasPlan() && intent == IntentNew {
		intent = IntentRefine
	}

	m.recordBaseline(sess)

	decision := &Decision{Intent: intent, Scope: scope}
	switch {
	case !sess.HasPlan():
		decision.Route = RoutePlanner
	case len(sess.PendingPatchOps) > 0:
		decision.Route = RoutePatchGate
	case intent == IntentRefine || intent == IntentRegenerate:
		decision.Route = RoutePatchPlanner
	default:
		decision.Route = RouteSupervisor
	}

	m.logger.Debug("turn routed",
		"route", string(decision.Route), "intent", string(intent), "has_scope", scope != nil)
	return decision
}

// recordBaseline hashes the normalized plan once per plan generation.
func (m *Manager) recordBaseline(sess *state.Session) {
	if !sess.HasPlan() || sess.BaselineHash != "" {
		return
	}
	hash, err := plan.BaselineHash(sess.Plan)
	if err != nil {
		m.logger.WithError(err).Warn("could not hash plan baseline")
		return
	}
	sess.BaselineHash = hash
}
