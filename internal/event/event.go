// Package event models the orchestrator's outbound notification channel as a
// bounded queue of typed events consumed by a transport adapter. Emission is
// fire-and-forget: the scheduler never blocks on, and never fails because of,
// the transport.
package event

import (
	"time"

	"github.com/google/uuid"
)

// Type represents the kind of orchestration event
type Type string

const (
	// TypePlanUpdated carries a full plan snapshot after any transition
	TypePlanUpdated Type = "plan_updated"

	// TypeStepStarted marks a step entering in_progress
	TypeStepStarted Type = "step_started"

	// TypeStepEnded marks a step leaving in_progress (completed or blocked)
	TypeStepEnded Type = "step_ended"

	// TypeAssetsSelected carries the resolver's asset bindings for a step
	TypeAssetsSelected Type = "assets_selected"

	// TypeClarificationRequested marks an escalation to the user
	TypeClarificationRequested Type = "clarification_requested"
)

// Event is a single orchestration notification. Lifecycle events carry only
// {step_id, status}; they are notifications, not control state.
type Event struct {
	ID        string         `json:"id"`
	Type      Type           `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	SessionID string         `json:"session_id,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// New creates an event with a fresh id and current timestamp.
func New(eventType Type, payload map[string]any) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: time.Now(),
		Payload:   payload,
	}
}
