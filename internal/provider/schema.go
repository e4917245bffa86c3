package provider

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// BuildTranscriptResponseSchema returns a JSON-Schema (draft 2020-12 subset)
// describing the provider's status payload. Validation is deliberately loose:
// only the fields the pipeline relies on are constrained, everything else is
// allowed so new provider fields never break ingestion.
func BuildTranscriptResponseSchema() map[string]any {
	timedSpan := map[string]any{
		"start": map[string]any{"type": "integer", "minimum": 0},
		"end":   map[string]any{"type": "integer", "minimum": 0},
	}
	wordProps := map[string]any{
		"text":       map[string]any{"type": "string"},
		"confidence": map[string]any{"type": "number"},
	}
	for k, v := range timedSpan {
		wordProps[k] = v
	}

	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"id":     map[string]any{"type": "string", "minLength": 1},
			"status": map[string]any{"type": "string"},
			"text":   map[string]any{"type": []string{"string", "null"}},
			"percent_complete": map[string]any{
				"type":    []string{"integer", "null"},
				"minimum": 0,
				"maximum": 100,
			},
			"utterances": map[string]any{
				"type": []string{"array", "null"},
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"text":       map[string]any{"type": "string"},
						"speaker":    map[string]any{"type": "string"},
						"confidence": map[string]any{"type": "number"},
						"start":      timedSpan["start"],
						"end":        timedSpan["end"],
					},
					"required": []string{"start", "end"},
				},
			},
			"words": map[string]any{
				"type": []string{"array", "null"},
				"items": map[string]any{
					"type":       "object",
					"properties": wordProps,
					"required":   []string{"start", "end"},
				},
			},
		},
		"required": []string{"id", "status"},
	}
}

// ValidateJSONAgainstSchema validates "data" against "schemaMap".
func ValidateJSONAgainstSchema(schemaMap map[string]any, data []byte) error {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(b)); err != nil {
		return fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}
