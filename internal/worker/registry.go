// Package worker defines the capability worker contract and the fixed
// capability registry the supervisor dispatches through.
package worker

import (
	"context"
	"encoding/json"

	"github.com/felixgeelhaar/storyboard/internal/errors"
	"github.com/felixgeelhaar/storyboard/internal/plan"
	"github.com/felixgeelhaar/storyboard/internal/resolve"
)

// Output is what a worker returns from one execution. The artifact is written
// under the step's artifact key by the supervisor; the summary feeds failure
// detection and user-facing progress.
type Output struct {
	Artifact      json.RawMessage
	ResultSummary string
}

// Worker executes one step of its capability. Executions must be idempotent
// with respect to the artifact key they produce: a retry overwrites.
type Worker interface {
	Execute(ctx context.Context, step *plan.PlanStep, resolved *resolve.Resolved) (*Output, error)
}

// Registry is the fixed 1:1 capability-to-worker map. There is no dynamic
// registration at dispatch time; an unknown capability is fatal for the step.
type Registry struct {
	workers map[plan.Capability]Worker
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{workers: make(map[plan.Capability]Worker)}
}

// Register binds a worker to a capability, replacing any previous binding.
func (r *Registry) Register(capability plan.Capability, w Worker) {
	r.workers[capability] = w
}

// Lookup resolves the worker for a capability.
func (r *Registry) Lookup(capability plan.Capability) (Worker, error) {
	w, ok := r.workers[capability]
	if !ok {
		return nil, errors.NewStepNoWorkerError(string(capability))
	}
	return w, nil
}
