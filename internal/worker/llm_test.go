package worker

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/storyboard/internal/errors"
	"github.com/felixgeelhaar/storyboard/internal/plan"
	"github.com/felixgeelhaar/storyboard/internal/provider"
	"github.com/felixgeelhaar/storyboard/internal/resolve"
)

type captureInvoker struct {
	schema   *provider.Schema
	messages []provider.Message
	response json.RawMessage
}

func (c *captureInvoker) Invoke(_ context.Context, schema *provider.Schema, messages []provider.Message) (json.RawMessage, error) {
	c.schema = schema
	c.messages = messages
	return c.response, nil
}

func TestRegistry_Lookup(t *testing.T) {
	r := NewRegistry()
	r.Register(plan.CapabilityWriter, NewLLMWorker(&captureInvoker{}, plan.CapabilityWriter))

	w, err := r.Lookup(plan.CapabilityWriter)
	require.NoError(t, err)
	assert.NotNil(t, w)

	_, err = r.Lookup(plan.Capability("sculptor"))
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeStepNoWorker))
}

func TestLLMWorker_WriterExecute(t *testing.T) {
	inv := &captureInvoker{response: json.RawMessage(`{"content":"five hundred words"}`)}
	w := NewLLMWorker(inv, plan.CapabilityWriter)

	step := &plan.PlanStep{
		ID: 2, Capability: plan.CapabilityWriter,
		Instruction:     "draft the opening section",
		DesignDirection: "formal tone",
		SuccessCriteria: []string{"covers all three themes"},
	}
	resolved := &resolve.Resolved{
		ResearchInputs: []string{"key findings about the topic"},
		Assets: []plan.Asset{
			{AssetID: "ast_1", URI: "https://example.com/ref.png", MimeType: "image/png"},
		},
	}

	out, err := w.Execute(context.Background(), step, resolved)
	require.NoError(t, err)
	assert.Equal(t, "writing", inv.schema.Name)
	assert.Contains(t, out.ResultSummary, "characters of content")

	require.Len(t, inv.messages, 3)
	assert.Contains(t, inv.messages[0].Content, "draft the opening section")
	assert.Contains(t, inv.messages[0].Content, "formal tone")
	assert.Contains(t, inv.messages[0].Content, "covers all three themes")
	assert.Contains(t, inv.messages[1].Content, "key findings")
	assert.Contains(t, inv.messages[2].Content, "ast_1")
}

func TestLLMWorker_UnmetRequiredRoleIsSurfaced(t *testing.T) {
	inv := &captureInvoker{response: json.RawMessage(`{"content":"ok"}`)}
	w := NewLLMWorker(inv, plan.CapabilityWriter)

	step := &plan.PlanStep{ID: 2, Capability: plan.CapabilityWriter, Instruction: "write"}
	resolved := &resolve.Resolved{
		Bindings: []plan.AssetBinding{
			{Role: "style_reference", AssetIDs: []string{}, Reason: plan.ReasonRequiredNotFound},
		},
	}

	_, err := w.Execute(context.Background(), step, resolved)
	require.NoError(t, err)

	last := inv.messages[len(inv.messages)-1].Content
	assert.Contains(t, last, "style_reference")
	assert.Contains(t, last, "proceed without it")
}

func TestLLMWorker_ScopeInPrompt(t *testing.T) {
	inv := &captureInvoker{response: json.RawMessage(`{"items":[{"unit_id":"slide:3","success":true}]}`)}
	w := NewLLMWorker(inv, plan.CapabilityVisualizer)

	step := &plan.PlanStep{
		ID: 4, Capability: plan.CapabilityVisualizer, Instruction: "re-render",
		TargetScope: &plan.TargetScope{AssetUnitIDs: []string{"slide:3"}},
	}

	out, err := w.Execute(context.Background(), step, &resolve.Resolved{})
	require.NoError(t, err)
	assert.Equal(t, "visualization", inv.schema.Name)
	assert.Contains(t, inv.messages[0].Content, "slide:3")
	assert.Equal(t, "rendered 1/1 units", out.ResultSummary)
}

func TestSummarize(t *testing.T) {
	tests := []struct {
		name       string
		capability plan.Capability
		raw        string
		want       string
	}{
		{"visualizer partial", plan.CapabilityVisualizer,
			`{"items":[{"unit_id":"slide:1","success":true},{"unit_id":"slide:2","success":false}]}`,
			"rendered 1/2 units"},
		{"visualizer all failed", plan.CapabilityVisualizer,
			`{"items":[{"unit_id":"slide:1","success":false}]}`,
			"rendered 0/1 units"},
		{"analyst", plan.CapabilityDataAnalyst,
			`{"summary":"revenue grew 12%\nmore detail"}`,
			"revenue grew 12%"},
		{"writer empty content", plan.CapabilityWriter,
			`{}`,
			"produced written content"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, summarize(tt.capability, json.RawMessage(tt.raw)))
		})
	}
}
