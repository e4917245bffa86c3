package topics

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// buildTopicsSchema constrains the model's structured output.
func buildTopicsSchema(maxTopics int) map[string]any {
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"topics": map[string]any{
				"type":     "array",
				"maxItems": maxTopics,
				"items": map[string]any{
					"type":      "string",
					"minLength": 1,
					"maxLength": 80,
				},
			},
		},
		"required": []string{"topics"},
	}
}

// ParseTopics validates the model output against the topics schema and
// returns the cleaned list.
func ParseTopics(data []byte, maxTopics int) ([]string, error) {
	schemaMap := buildTopicsSchema(maxTopics)
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("topics.json", bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("topics.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("unmarshal topics: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return nil, fmt.Errorf("topics do not match schema: %w", err)
	}

	var out struct {
		Topics []string `json:"topics"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode topics: %w", err)
	}

	var topics []string
	for _, t := range out.Topics {
		if t = strings.TrimSpace(t); t != "" {
			topics = append(topics, t)
		}
	}
	return topics, nil
}
