// Package research implements the map-reduce sub-scheduler behind the
// researcher capability: decompose an instruction into perspective tasks,
// dispatch them under a bounded fan-out, and aggregate the results into
// per-task artifacts plus a rollup.
package research

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/felixgeelhaar/storyboard/internal/errors"
	"github.com/felixgeelhaar/storyboard/internal/provider"
)

// Task is one immutable research perspective produced by decomposition.
type Task struct {
	ID             string   `json:"id"`
	Perspective    string   `json:"perspective"`
	QueryHints     []string `json:"query_hints,omitempty"`
	Priority       int      `json:"priority,omitempty"`
	ExpectedOutput string   `json:"expected_output,omitempty"`
}

// Result is the outcome of one task. A failed task carries the error text and
// zero confidence instead of aborting its siblings.
type Result struct {
	TaskID      string  `json:"task_id"`
	Perspective string  `json:"perspective,omitempty"`
	Findings    string  `json:"findings"`
	Confidence  float64 `json:"confidence"`
	Error       string  `json:"error,omitempty"`
}

// TaskRunner executes one research task. Implementations wrap the actual
// search/LLM machinery; the scheduler only cares about the result contract.
type TaskRunner interface {
	Run(ctx context.Context, task Task) (Result, error)
}

// decompositionSchema is the structured-output shape for task decomposition.
func decompositionSchema() *provider.Schema {
	item := openapi3.NewObjectSchema()
	item.Properties = openapi3.Schemas{
		"id":              openapi3.NewSchemaRef("", openapi3.NewStringSchema()),
		"perspective":     openapi3.NewSchemaRef("", openapi3.NewStringSchema()),
		"query_hints":     openapi3.NewSchemaRef("", arrayOfStrings()),
		"priority":        openapi3.NewSchemaRef("", openapi3.NewIntegerSchema()),
		"expected_output": openapi3.NewSchemaRef("", openapi3.NewStringSchema()),
	}
	item.Required = []string{"id", "perspective"}

	tasks := openapi3.NewArraySchema()
	tasks.Items = openapi3.NewSchemaRef("", item)

	return provider.NewObjectSchema("research_decomposition", map[string]*openapi3.Schema{
		"tasks": tasks,
	}, "tasks")
}

func arrayOfStrings() *openapi3.Schema {
	s := openapi3.NewArraySchema()
	s.Items = openapi3.NewSchemaRef("", openapi3.NewStringSchema())
	return s
}

// decompose converts a step instruction into an ordered task list via one
// structured-output call.
func decompose(ctx context.Context, invoker provider.Invoker, instruction string) ([]Task, error) {
	raw, err := invoker.Invoke(ctx, decompositionSchema(), []provider.Message{
		{Role: "system", Content: "You split a research instruction into 2-5 independent research tasks, each covering a distinct perspective. Give every task a short unique id."},
		{Role: "user", Content: instruction},
	})
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeResearchDecompose, "decomposition call failed", err)
	}

	var decoded struct {
		Tasks []Task `json:"tasks"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, errors.Wrap(errors.ErrCodeResearchDecompose, "decomposition output unreadable", err)
	}

	tasks := make([]Task, 0, len(decoded.Tasks))
	seen := make(map[string]bool)
	for i, task := range decoded.Tasks {
		if task.ID == "" {
			task.ID = fmt.Sprintf("task_%d", i+1)
		}
		if seen[task.ID] {
			continue
		}
		seen[task.ID] = true
		tasks = append(tasks, task)
	}
	if len(tasks) == 0 {
		return nil, errors.New(errors.ErrCodeResearchDecompose, "decomposition produced no tasks")
	}
	return tasks, nil
}

// genericTask is the fallback when decomposition fails or yields nothing:
// the whole instruction becomes a single task.
func genericTask(instruction string) Task {
	return Task{
		ID:             "task_1",
		Perspective:    "general",
		QueryHints:     nil,
		Priority:       1,
		ExpectedOutput: "a concise summary answering the instruction: " + instruction,
	}
}
