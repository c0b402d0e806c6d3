package research

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/felixgeelhaar/storyboard/internal/log"
	"github.com/felixgeelhaar/storyboard/internal/plan"
	"github.com/felixgeelhaar/storyboard/internal/provider"
	"github.com/felixgeelhaar/storyboard/internal/store"
)

// DefaultFanOut serializes task dispatch. Raising it parallelizes tasks up to
// the bound; aggregation is order-independent (results match by task_id).
const DefaultFanOut = 1

// Rollup is the aggregate artifact written under the step's artifact key once
// every task has a result.
type Rollup struct {
	Instruction string   `json:"instruction"`
	TaskCount   int      `json:"task_count"`
	FailedCount int      `json:"failed_count"`
	Results     []Result `json:"results"`
	Summary     string   `json:"summary"`
}

// Scheduler runs the decompose-dispatch-aggregate loop for one researcher
// step at a time. It keeps sub-state (decomposition flag, task cursor,
// partial results) so a re-entered step resumes instead of redoing work.
type Scheduler struct {
	invoker   provider.Invoker
	runner    TaskRunner
	artifacts store.ArtifactStore
	logger    *log.Logger
	fanOut    int64

	mu               sync.Mutex
	isDecomposed     bool
	tasks            []Task
	results          map[string]Result
	currentTaskIndex int
}

// NewScheduler creates a research sub-scheduler. fanOut <= 0 means
// DefaultFanOut.
func NewScheduler(invoker provider.Invoker, runner TaskRunner, artifacts store.ArtifactStore, fanOut int, logger *log.Logger) *Scheduler {
	if fanOut <= 0 {
		fanOut = DefaultFanOut
	}
	if logger == nil {
		logger = log.DefaultLogger()
	}
	return &Scheduler{
		invoker:   invoker,
		runner:    runner,
		artifacts: artifacts,
		logger:    logger,
		fanOut:    int64(fanOut),
		results:   make(map[string]Result),
	}
}

// Execute runs the full loop for a researcher step and returns the rollup
// artifact it wrote. Task failures never abort the batch: a failed task
// contributes a zero-confidence result carrying the error text.
func (s *Scheduler) Execute(ctx context.Context, step *plan.PlanStep) (json.RawMessage, error) {
	tasks := s.ensureDecomposed(ctx, step.Instruction)

	if err := s.dispatch(ctx, step, tasks); err != nil {
		return nil, err
	}

	return s.aggregate(step, tasks)
}

// ensureDecomposed runs decomposition once per step activation. A re-entered
// scheduler with is_decomposed set reuses the existing task list.
func (s *Scheduler) ensureDecomposed(ctx context.Context, instruction string) []Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isDecomposed {
		return s.tasks
	}

	tasks, err := decompose(ctx, s.invoker, instruction)
	if err != nil {
		s.logger.WithError(err).Warn("decomposition failed, falling back to a single task")
		tasks = []Task{genericTask(instruction)}
	}

	s.tasks = tasks
	s.isDecomposed = true
	s.currentTaskIndex = 0
	return tasks
}

// dispatch runs every task that does not already have a result, bounded by
// the fan-out semaphore. Completed tasks report their artifact immediately
// rather than waiting for the batch.
func (s *Scheduler) dispatch(ctx context.Context, step *plan.PlanStep, tasks []Task) error {
	sem := semaphore.NewWeighted(s.fanOut)
	var wg sync.WaitGroup

	for i, task := range tasks {
		s.mu.Lock()
		_, done := s.results[task.ID]
		if !done {
			s.currentTaskIndex = i + 1
		}
		s.mu.Unlock()
		if done {
			continue
		}

		if err := sem.Acquire(ctx, 1); err != nil {
			wg.Wait()
			return err
		}

		wg.Add(1)
		go func(task Task) {
			defer wg.Done()
			defer sem.Release(1)
			s.runTask(ctx, step, task)
		}(task)
	}

	wg.Wait()
	return ctx.Err()
}

func (s *Scheduler) runTask(ctx context.Context, step *plan.PlanStep, task Task) {
	result, err := s.runner.Run(ctx, task)
	if err != nil {
		result = Result{
			TaskID:      task.ID,
			Perspective: task.Perspective,
			Findings:    fmt.Sprintf("research task failed: %v", err),
			Confidence:  0,
			Error:       err.Error(),
		}
	}
	if result.TaskID == "" {
		result.TaskID = task.ID
	}

	s.mu.Lock()
	s.results[result.TaskID] = result
	s.mu.Unlock()

	// decentralized reporting: each task's artifact lands as soon as the task
	// finishes, independent of its siblings
	key := taskArtifactKey(step, task.ID)
	if data, err := json.Marshal(result); err == nil {
		if putErr := s.artifacts.Put(key, data); putErr != nil {
			s.logger.WithError(putErr).Warn("failed to write task artifact", "key", key)
		}
	}

	s.logger.Debug("research task finished",
		"step_id", step.ID, "task_id", task.ID, "failed", result.Error != "")
}

// aggregate writes the rollup artifact once all tasks have results and resets
// the sub-state so the scheduler can serve a re-entered step from scratch.
func (s *Scheduler) aggregate(step *plan.PlanStep, tasks []Task) (json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.results) < len(tasks) {
		return nil, fmt.Errorf("aggregation with %d/%d results", len(s.results), len(tasks))
	}

	rollup := Rollup{
		Instruction: step.Instruction,
		TaskCount:   len(tasks),
		Results:     make([]Result, 0, len(tasks)),
	}
	summary := ""
	for _, task := range tasks {
		result := s.results[task.ID]
		rollup.Results = append(rollup.Results, result)
		if result.Error != "" {
			rollup.FailedCount++
			continue
		}
		if summary != "" {
			summary += "\n\n"
		}
		summary += fmt.Sprintf("[%s] %s", result.Perspective, result.Findings)
	}
	rollup.Summary = summary

	data, err := json.Marshal(rollup)
	if err != nil {
		return nil, fmt.Errorf("marshal rollup: %w", err)
	}
	if err := s.artifacts.Put(step.ArtifactKey(), data); err != nil {
		return nil, fmt.Errorf("write rollup artifact: %w", err)
	}

	s.isDecomposed = false
	s.currentTaskIndex = 0
	s.tasks = nil
	s.results = make(map[string]Result)

	return data, nil
}

// RecordResult injects a prior result, used when resuming a partially
// completed step from persisted task artifacts.
func (s *Scheduler) RecordResult(result Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[result.TaskID] = result
}

func taskArtifactKey(step *plan.PlanStep, taskID string) string {
	return fmt.Sprintf("%s_task_%s", step.ArtifactKey(), taskID)
}
