package flowengine

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/xeipuuv/gojsonschema"
)

// parseInputSchema normalizes a flow's input schema into a generic map.
// The schema arrives either as a JSON object or as a JSON string that
// itself contains the serialized object; both forms are accepted. A nil
// map with a nil error means no schema was declared.
func parseInputSchema(raw json.RawMessage) (map[string]any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}

	// String form: unwrap once, then parse the payload.
	if trimmed[0] == '"' {
		var payload string
		if err := json.Unmarshal(trimmed, &payload); err != nil {
			return nil, fmt.Errorf("unwrap schema string: %w", err)
		}
		trimmed = bytes.TrimSpace([]byte(payload))
		if len(trimmed) == 0 {
			return nil, nil
		}
	}

	var schema map[string]any
	if err := json.Unmarshal(trimmed, &schema); err != nil {
		return nil, fmt.Errorf("parse schema object: %w", err)
	}
	return schema, nil
}

// requiredFields extracts the schema's required field names in declared
// order. A schema that fails to parse yields no constraints: a malformed
// schema must never block execution.
func requiredFields(raw json.RawMessage) []string {
	schema, err := parseInputSchema(raw)
	if err != nil || schema == nil {
		return nil
	}

	rawRequired, ok := schema["required"].([]any)
	if !ok {
		return nil
	}

	fields := make([]string, 0, len(rawRequired))
	for _, entry := range rawRequired {
		if name, ok := entry.(string); ok {
			fields = append(fields, name)
		}
	}
	return fields
}

// flattenedKeyPattern matches transient keys of the form name[0].field
// produced by array-input UI widgets.
var flattenedKeyPattern = regexp.MustCompile(`\[\d+\]\.`)

// stripFlattenedKeys returns a copy of the candidate inputs without the
// UI's flattened array-entry keys. The caller's map is never mutated.
func stripFlattenedKeys(inputs map[string]any) map[string]any {
	out := make(map[string]any, len(inputs))
	for key, value := range inputs {
		if flattenedKeyPattern.MatchString(key) {
			continue
		}
		out[key] = value
	}
	return out
}

// LintInputSchema compiles the flow's input schema and reports quality
// warnings. Lint findings never gate execution; they surface data
// problems that the fail-open parser would otherwise hide.
func LintInputSchema(raw json.RawMessage) []string {
	schema, err := parseInputSchema(raw)
	if err != nil {
		return []string{fmt.Sprintf("input schema is not valid JSON: %v", err)}
	}
	if schema == nil {
		return nil
	}

	var warnings []string

	normalized, err := json.Marshal(schema)
	if err != nil {
		return []string{fmt.Sprintf("input schema cannot be serialized: %v", err)}
	}
	if _, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(normalized)); err != nil {
		warnings = append(warnings, fmt.Sprintf("input schema does not compile: %v", err))
	}

	// Required names should be declared as properties when a properties
	// block exists.
	if properties, ok := schema["properties"].(map[string]any); ok {
		for _, name := range requiredFields(raw) {
			if _, declared := properties[name]; !declared {
				warnings = append(warnings, fmt.Sprintf("required field %q is not declared in properties", name))
			}
		}
	}

	return warnings
}
