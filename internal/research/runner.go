package research

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/felixgeelhaar/storyboard/internal/provider"
)

// LLMTaskRunner executes one research task through a structured LLM call.
type LLMTaskRunner struct {
	invoker provider.Invoker
}

// NewLLMTaskRunner creates a runner backed by the given invoker.
func NewLLMTaskRunner(invoker provider.Invoker) *LLMTaskRunner {
	return &LLMTaskRunner{invoker: invoker}
}

// findingsSchema is the structured-output shape for one task's findings.
func findingsSchema() *provider.Schema {
	return provider.NewObjectSchema("research_findings", map[string]*openapi3.Schema{
		"findings":   openapi3.NewStringSchema(),
		"confidence": openapi3.NewFloat64Schema(),
		"sources":    arrayOfStrings(),
	}, "findings")
}

// Run implements TaskRunner.
func (r *LLMTaskRunner) Run(ctx context.Context, task Task) (Result, error) {
	var prompt strings.Builder
	fmt.Fprintf(&prompt, "Research the following perspective and report your findings.\n\nPerspective: %s\n", task.Perspective)
	if task.ExpectedOutput != "" {
		fmt.Fprintf(&prompt, "Expected output: %s\n", task.ExpectedOutput)
	}
	if len(task.QueryHints) > 0 {
		fmt.Fprintf(&prompt, "Query hints: %s\n", strings.Join(task.QueryHints, ", "))
	}

	raw, err := r.invoker.Invoke(ctx, findingsSchema(), []provider.Message{
		{Role: "user", Content: prompt.String()},
	})
	if err != nil {
		return Result{}, err
	}

	var decoded struct {
		Findings   string  `json:"findings"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return Result{}, fmt.Errorf("decode findings for task %s: %w", task.ID, err)
	}

	confidence := decoded.Confidence
	if confidence <= 0 || confidence > 1 {
		confidence = 0.5
	}
	return Result{
		TaskID:      task.ID,
		Perspective: task.Perspective,
		Findings:    decoded.Findings,
		Confidence:  confidence,
	}, nil
}
