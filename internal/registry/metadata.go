package registry

import (
	"encoding/json"
	"os"
)

// Metadata is the descriptive data exposed for a component. It is a plain map
// so callers can add fields such as the current bundle hash.
type Metadata map[string]any

// LoadMetadata reads a JSON Schema shaped descriptor and extracts the fields
// served to clients. It re-reads the file on every call. A missing file or any
// read or parse failure yields empty metadata.
func LoadMetadata(schemaPath string) Metadata {
	data, err := os.ReadFile(schemaPath)
	if err != nil {
		return Metadata{}
	}

	var schema map[string]any
	if err := json.Unmarshal(data, &schema); err != nil || schema == nil {
		return Metadata{}
	}

	return Metadata{
		"title":       stringField(schema, "title"),
		"description": stringField(schema, "description"),
		"version":     stringField(schema, "version"),
		"props": map[string]any{
			"type":       valueOr(schema, "type", "object"),
			"properties": valueOr(schema, "properties", map[string]any{}),
			"required":   valueOr(schema, "required", []any{}),
		},
	}
}

func stringField(schema map[string]any, key string) string {
	if s, ok := schema[key].(string); ok {
		return s
	}
	return ""
}

func valueOr(schema map[string]any, key string, fallback any) any {
	if v, ok := schema[key]; ok && v != nil {
		return v
	}
	return fallback
}
