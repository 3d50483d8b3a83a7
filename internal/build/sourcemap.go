package build

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"path"
	"strings"
)

// SourceMapMarker introduces an inline, base64 encoded source map.
const SourceMapMarker = "//# sourceMappingURL=data:application/json;base64,"

// RewriteSourceMapSources rewrites every entry of an inline source map's
// sources list to component://{componentName}/{basename}. All other keys are
// carried through as raw JSON. Code without a marker, or with a payload that
// cannot be decoded, is returned unchanged.
func RewriteSourceMapSources(code, componentName string) string {
	idx := strings.LastIndex(code, SourceMapMarker)
	if idx < 0 {
		return code
	}

	start := idx + len(SourceMapMarker)
	end := len(code)
	if nl := strings.IndexAny(code[start:], "\r\n"); nl >= 0 {
		end = start + nl
	}
	payload := strings.TrimSpace(code[start:end])

	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return code
	}

	var sourceMap map[string]json.RawMessage
	if err := json.Unmarshal(raw, &sourceMap); err != nil {
		return code
	}

	if rawSources, ok := sourceMap["sources"]; ok {
		var sources []string
		if err := json.Unmarshal(rawSources, &sources); err != nil {
			return code
		}
		for i, src := range sources {
			sources[i] = "component://" + componentName + "/" + basename(src)
		}
		encoded, err := marshalRaw(sources)
		if err != nil {
			return code
		}
		sourceMap["sources"] = encoded
	}

	rewritten, err := marshalRaw(sourceMap)
	if err != nil {
		return code
	}

	return code[:start] + base64.StdEncoding.EncodeToString(rewritten) + code[end:]
}

// marshalRaw encodes without HTML escaping so embedded sources keep their
// original characters.
func marshalRaw(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// basename handles both separators since esbuild emits host paths.
func basename(p string) string {
	if p == "" {
		return ""
	}
	return path.Base(strings.ReplaceAll(p, `\`, "/"))
}
