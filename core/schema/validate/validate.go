package validate

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/kaptinlin/jsonschema"
)

// PayloadChecker validates action payloads against one compiled schema per
// action. Actions without a schema are accepted.
type PayloadChecker struct {
	schemas map[string]*jsonschema.Schema
}

// NewPayloadChecker compiles an object schema requiring the expected keys of
// every action.
func NewPayloadChecker(expectedKeys map[string][]string) (*PayloadChecker, error) {
	schemas := make(map[string]*jsonschema.Schema, len(expectedKeys))
	for action, keys := range expectedKeys {
		schema, err := CompileSchema(RequiredKeysSchema(keys))
		if err != nil {
			return nil, fmt.Errorf("compile schema for %s: %w", action, err)
		}
		schemas[action] = schema
	}
	return &PayloadChecker{schemas: schemas}, nil
}

// Check validates payload for action.
func (checker *PayloadChecker) Check(action string, payload []byte) error {
	if checker == nil {
		return nil
	}
	schema, ok := checker.schemas[action]
	if !ok {
		return nil
	}
	return ValidateJSON(schema, payload)
}

// RequiredKeysSchema renders a JSON schema for an object that must carry keys.
func RequiredKeysSchema(keys []string) []byte {
	required := make([]string, 0, len(keys))
	for _, key := range keys {
		if trimmed := strings.TrimSpace(key); trimmed != "" {
			required = append(required, trimmed)
		}
	}
	sort.Strings(required)
	document := map[string]any{
		"$schema": "https://json-schema.org/draft/2020-12/schema",
		"type":    "object",
	}
	if len(required) > 0 {
		document["required"] = required
	}
	// map of strings and string slices always encodes
	encoded, _ := json.Marshal(document)
	return encoded
}

func CompileSchema(data []byte) (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	compiler.AssertFormat = true
	schema, err := compiler.Compile(data)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}

func ValidateJSON(schema *jsonschema.Schema, data []byte) error {
	result := schema.ValidateJSON(data)
	if result.IsValid() {
		return nil
	}
	return fmt.Errorf("schema validation failed: %v", result.Errors)
}
