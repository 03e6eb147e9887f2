package providers

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ExtractJSON locates the JSON object in a vendor completion. Vendors asked
// for JSON sometimes wrap the object in prose or a markdown fence; this tries
// a direct parse first, then the first balanced {...} span in the text.
// The second return value is false when no parseable object exists.
func ExtractJSON(s string) (json.RawMessage, bool) {
	trimmed := strings.TrimSpace(s)

	// Strip a markdown code fence if present.
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```json")
		trimmed = strings.TrimPrefix(trimmed, "```")
		if idx := strings.LastIndex(trimmed, "```"); idx >= 0 {
			trimmed = trimmed[:idx]
		}
		trimmed = strings.TrimSpace(trimmed)
	}

	if json.Valid([]byte(trimmed)) && strings.HasPrefix(trimmed, "{") {
		return json.RawMessage(trimmed), true
	}

	start := strings.Index(trimmed, "{")
	if start < 0 {
		return nil, false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(trimmed); i++ {
		c := trimmed[i]
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case !inString && c == '{':
			depth++
		case !inString && c == '}':
			depth--
			if depth == 0 {
				span := trimmed[start : i+1]
				if json.Valid([]byte(span)) {
					return json.RawMessage(span), true
				}
				return nil, false
			}
		}
	}
	return nil, false
}

// DecodeStructured extracts the JSON object from a vendor completion,
// optionally validates it against a schema, and unmarshals it into out.
// A schema violation is reported as an error so the caller can apply its
// best-effort fallback shape; it is never a vendor failure.
func DecodeStructured(content string, schema *jsonschema.Schema, out any) error {
	raw, ok := ExtractJSON(content)
	if !ok {
		return fmt.Errorf("no JSON object found in completion")
	}
	if schema != nil {
		var doc any
		if err := json.Unmarshal(raw, &doc); err != nil {
			return fmt.Errorf("decode completion JSON: %w", err)
		}
		if err := schema.Validate(doc); err != nil {
			return fmt.Errorf("completion JSON failed schema validation: %w", err)
		}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("unmarshal completion JSON: %w", err)
	}
	return nil
}

// MustCompileSchema compiles an embedded JSON schema, panicking on error.
// Only called with compile-time constant schemas during package init.
func MustCompileSchema(name, schemaJSON string) *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	if err := c.AddResource(name, strings.NewReader(schemaJSON)); err != nil {
		panic(fmt.Sprintf("add schema %s: %v", name, err))
	}
	return c.MustCompile(name)
}
