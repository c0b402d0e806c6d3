package worker

import (
	"context"
	"fmt"

	"github.com/felixgeelhaar/storyboard/internal/plan"
	"github.com/felixgeelhaar/storyboard/internal/research"
	"github.com/felixgeelhaar/storyboard/internal/resolve"
)

// ResearchWorker routes researcher steps through the map-reduce
// sub-scheduler. The scheduler writes the per-task and rollup artifacts
// itself; this worker just reports the rollup back to the supervisor.
type ResearchWorker struct {
	scheduler *research.Scheduler
}

// NewResearchWorker creates the researcher capability worker.
func NewResearchWorker(scheduler *research.Scheduler) *ResearchWorker {
	return &ResearchWorker{scheduler: scheduler}
}

// Execute implements Worker.Execute.
func (w *ResearchWorker) Execute(ctx context.Context, step *plan.PlanStep, _ *resolve.Resolved) (*Output, error) {
	rollup, err := w.scheduler.Execute(ctx, step)
	if err != nil {
		return nil, err
	}
	return &Output{
		Artifact:      rollup,
		ResultSummary: fmt.Sprintf("research completed for step %d", step.ID),
	}, nil
}
