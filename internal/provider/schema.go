package provider

import (
	"encoding/json"
	"fmt"

	"github.com/getkin/kin-openapi/openapi3"
)

// Schema describes the JSON shape an Invoke call must return. The spec is an
// OpenAPI schema object so validation reuses the kin-openapi visitor instead
// of a hand-rolled checker.
type Schema struct {
	// Name labels the schema in prompts and error messages
	Name string
	// Spec is the JSON schema the model output must satisfy
	Spec *openapi3.Schema
}

// NewObjectSchema builds an object schema with the given required properties.
func NewObjectSchema(name string, properties map[string]*openapi3.Schema, required ...string) *Schema {
	props := make(openapi3.Schemas, len(properties))
	for key, prop := range properties {
		props[key] = openapi3.NewSchemaRef("", prop)
	}
	spec := openapi3.NewObjectSchema()
	spec.Properties = props
	spec.Required = required
	return &Schema{Name: name, Spec: spec}
}

// PromptFragment renders the schema as a JSON snippet for inclusion in the
// system prompt, so the model knows the exact shape to produce.
func (s *Schema) PromptFragment() string {
	data, err := s.Spec.MarshalJSON()
	if err != nil {
		return "{}"
	}
	return string(data)
}

// Validate checks decoded JSON output against the schema.
func (s *Schema) Validate(raw json.RawMessage) error {
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return fmt.Errorf("decode %s output: %w", s.Name, err)
	}
	if err := s.Spec.VisitJSON(decoded); err != nil {
		return fmt.Errorf("%s output does not match schema: %w", s.Name, err)
	}
	return nil
}
