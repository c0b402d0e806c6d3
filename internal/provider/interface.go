// Package provider implements the LLM structured-output collaborator contract.
// The orchestration core receives an Invoker at construction time; there are
// no process-wide provider singletons.
package provider

import (
	"context"
	"encoding/json"
)

// Message is one turn of conversation context passed to the model.
type Message struct {
	// Role is "user", "assistant", or "system"
	Role string `json:"role"`
	// Content is the message text
	Content string `json:"content"`
}

// Invoker produces schema-validated structured output from an LLM call.
//
// Implementations must surface parse and schema-validation failures
// (PROVIDER-007/PROVIDER-008) distinctly from transport failures
// (PROVIDER-004) so callers can apply their own repair-and-retry policy.
type Invoker interface {
	Invoke(ctx context.Context, schema *Schema, messages []Message) (json.RawMessage, error)
}
