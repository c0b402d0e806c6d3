package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/felixgeelhaar/storyboard/internal/plan"
	"github.com/felixgeelhaar/storyboard/internal/provider"
	"github.com/felixgeelhaar/storyboard/internal/resolve"
)

// LLMWorker executes writer, visualizer, and data_analyst steps through one
// structured-output call. The output schema is selected by capability; the
// prompt carries the instruction, upstream research, and selected assets.
type LLMWorker struct {
	invoker    provider.Invoker
	capability plan.Capability
}

// NewLLMWorker creates a worker for one capability.
func NewLLMWorker(invoker provider.Invoker, capability plan.Capability) *LLMWorker {
	return &LLMWorker{invoker: invoker, capability: capability}
}

// Execute implements Worker.Execute.
func (w *LLMWorker) Execute(ctx context.Context, step *plan.PlanStep, resolved *resolve.Resolved) (*Output, error) {
	schema := outputSchema(w.capability)
	messages := buildMessages(step, resolved)

	raw, err := w.invoker.Invoke(ctx, schema, messages)
	if err != nil {
		return nil, err
	}

	return &Output{
		Artifact:      raw,
		ResultSummary: summarize(w.capability, raw),
	}, nil
}

// buildMessages assembles the prompt context for one step. Research inputs
// come pre-truncated from the resolver; assets are referenced by URI, never
// inlined.
func buildMessages(step *plan.PlanStep, resolved *resolve.Resolved) []provider.Message {
	var b strings.Builder
	b.WriteString(step.Instruction)

	if step.DesignDirection != "" {
		fmt.Fprintf(&b, "\n\nDesign direction: %s", step.DesignDirection)
	}
	if len(step.SuccessCriteria) > 0 {
		b.WriteString("\n\nSuccess criteria:")
		for _, c := range step.SuccessCriteria {
			fmt.Fprintf(&b, "\n- %s", c)
		}
	}
	if step.TargetScope != nil && len(step.TargetScope.AssetUnitIDs) > 0 {
		fmt.Fprintf(&b, "\n\nOnly update these units: %s", strings.Join(step.TargetScope.AssetUnitIDs, ", "))
	}

	messages := []provider.Message{{Role: "user", Content: b.String()}}

	for _, research := range resolved.ResearchInputs {
		messages = append(messages, provider.Message{
			Role:    "user",
			Content: "Research context:\n" + research,
		})
	}

	if len(resolved.Assets) > 0 {
		var assets strings.Builder
		assets.WriteString("Reference assets:")
		for _, a := range resolved.Assets {
			fmt.Fprintf(&assets, "\n- [%s] %s (%s)", a.AssetID, a.URI, a.MimeType)
		}
		messages = append(messages, provider.Message{Role: "user", Content: assets.String()})
	}

	for _, binding := range resolved.Bindings {
		if binding.Reason == plan.ReasonRequiredNotFound {
			messages = append(messages, provider.Message{
				Role:    "user",
				Content: fmt.Sprintf("Note: no asset could be found for the required role %q; proceed without it.", binding.Role),
			})
		}
	}

	return messages
}

// outputSchema returns the capability's structured-output contract.
func outputSchema(capability plan.Capability) *provider.Schema {
	switch capability {
	case plan.CapabilityVisualizer:
		item := openapi3.NewObjectSchema()
		item.Properties = openapi3.Schemas{
			"unit_id":   openapi3.NewSchemaRef("", openapi3.NewStringSchema()),
			"image_url": openapi3.NewSchemaRef("", openapi3.NewStringSchema()),
			"success":   openapi3.NewSchemaRef("", openapi3.NewBoolSchema()),
			"detail":    openapi3.NewSchemaRef("", openapi3.NewStringSchema()),
		}
		item.Required = []string{"unit_id", "success"}
		items := openapi3.NewArraySchema()
		items.Items = openapi3.NewSchemaRef("", item)
		return provider.NewObjectSchema("visualization", map[string]*openapi3.Schema{
			"items":   items,
			"summary": openapi3.NewStringSchema(),
		}, "items")

	case plan.CapabilityDataAnalyst:
		figures := openapi3.NewArraySchema()
		figure := openapi3.NewObjectSchema()
		figure.Properties = openapi3.Schemas{
			"title": openapi3.NewSchemaRef("", openapi3.NewStringSchema()),
			"data":  openapi3.NewSchemaRef("", openapi3.NewStringSchema()),
		}
		figures.Items = openapi3.NewSchemaRef("", figure)
		return provider.NewObjectSchema("analysis", map[string]*openapi3.Schema{
			"summary": openapi3.NewStringSchema(),
			"figures": figures,
		}, "summary")

	default: // writer
		sections := openapi3.NewArraySchema()
		section := openapi3.NewObjectSchema()
		section.Properties = openapi3.Schemas{
			"title": openapi3.NewSchemaRef("", openapi3.NewStringSchema()),
			"body":  openapi3.NewSchemaRef("", openapi3.NewStringSchema()),
		}
		sections.Items = openapi3.NewSchemaRef("", section)
		return provider.NewObjectSchema("writing", map[string]*openapi3.Schema{
			"content":  openapi3.NewStringSchema(),
			"sections": sections,
		}, "content")
	}
}

// summarize produces the result_summary for an artifact. Kept short: the
// summary feeds failure-token detection and progress display, not content.
func summarize(capability plan.Capability, raw json.RawMessage) string {
	switch capability {
	case plan.CapabilityVisualizer:
		var v struct {
			Items []struct {
				UnitID  string `json:"unit_id"`
				Success bool   `json:"success"`
			} `json:"items"`
			Summary string `json:"summary"`
		}
		if err := json.Unmarshal(raw, &v); err != nil {
			return "produced visualization output"
		}
		ok := 0
		for _, item := range v.Items {
			if item.Success {
				ok++
			}
		}
		return fmt.Sprintf("rendered %d/%d units", ok, len(v.Items))

	case plan.CapabilityDataAnalyst:
		var v struct {
			Summary string `json:"summary"`
		}
		if err := json.Unmarshal(raw, &v); err == nil && v.Summary != "" {
			return firstLine(v.Summary)
		}
		return "produced data analysis"

	default:
		var v struct {
			Content string `json:"content"`
		}
		if err := json.Unmarshal(raw, &v); err == nil && v.Content != "" {
			return fmt.Sprintf("drafted %d characters of content", len([]rune(v.Content)))
		}
		return "produced written content"
	}
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}
