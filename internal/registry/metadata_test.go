package registry

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadMetadata(t *testing.T) {
	testCases := []struct {
		name     string
		content  string
		expected Metadata
	}{
		{
			name:    "full descriptor",
			content: `{"title":"Card","description":"A card","version":"1.2.0","type":"object","properties":{"title":{"type":"string"}},"required":["title"],"$schema":"ignored"}`,
			expected: Metadata{
				"title":       "Card",
				"description": "A card",
				"version":     "1.2.0",
				"props": map[string]any{
					"type":       "object",
					"properties": map[string]any{"title": map[string]any{"type": "string"}},
					"required":   []any{"title"},
				},
			},
		},
		{
			name:    "empty object gets defaults",
			content: `{}`,
			expected: Metadata{
				"title":       "",
				"description": "",
				"version":     "",
				"props": map[string]any{
					"type":       "object",
					"properties": map[string]any{},
					"required":   []any{},
				},
			},
		},
		{
			name:     "malformed json",
			content:  `{"title": `,
			expected: Metadata{},
		},
		{
			name:     "json array",
			content:  `[1, 2, 3]`,
			expected: Metadata{},
		},
		{
			name:     "json null",
			content:  `null`,
			expected: Metadata{},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeFile(t, t.TempDir(), SchemaFile, tc.content)
			assert.Equal(t, tc.expected, LoadMetadata(path))
		})
	}
}

func TestLoadMetadata_MissingFile(t *testing.T) {
	assert.Equal(t, Metadata{}, LoadMetadata(filepath.Join(t.TempDir(), SchemaFile)))
}

func TestComponentMetadata_RereadsEveryCall(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "card/index.tsx", "x")
	component := &Component{Name: "card", PackageDir: filepath.Join(dir, "card")}

	assert.Equal(t, Metadata{}, component.Metadata())

	writeFile(t, dir, "card/schema.json", `{"title":"Card"}`)
	assert.Equal(t, "Card", component.Metadata()["title"])

	writeFile(t, dir, "card/schema.json", `{"title":"Renamed"}`)
	assert.Equal(t, "Renamed", component.Metadata()["title"])
}
