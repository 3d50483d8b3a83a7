package adapters

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/tsxbridge/internal/bridge"
	"github.com/conneroisu/tsxbridge/internal/build"
	"github.com/conneroisu/tsxbridge/internal/errors"
	"github.com/conneroisu/tsxbridge/internal/registry"
	"github.com/conneroisu/tsxbridge/internal/server"
)

type fakeBundler struct {
	fail bool
}

func (b *fakeBundler) Bundle(ctx context.Context, entryPath string, opts ...build.BundleOption) (*build.Result, error) {
	if b.fail {
		return nil, errors.NewBuildError("", entryPath, "Could not resolve \"./missing\"", io.EOF)
	}
	data, err := os.ReadFile(entryPath)
	if err != nil {
		return nil, err
	}
	return &build.Result{Code: string(data), Hash: build.ContentHash(string(data))}, nil
}

func newHandlers(t *testing.T, b bridge.Bundler) *bridge.Handlers {
	t.Helper()
	dir := t.TempDir()
	write := func(rel, content string) {
		full := filepath.Join(dir, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}
	write("counter/index.tsx", "export default function Counter() {}")
	write("counter/schema.json", `{"title":"Counter","version":"1.0.0"}`)
	write("card/index.ts", "export default function Card() {}")

	reg := registry.NewComponentRegistry()
	require.NoError(t, reg.AddSource(dir, "demo"))
	return bridge.NewHandlers(reg, b)
}

func newApp(h *bridge.Handlers) *fiber.App {
	app := fiber.New()
	MountFiber(app.Group("/api"), h)
	return app
}

type result struct {
	status  int
	headers http.Header
	body    string
}

func get(t *testing.T, handler func(*http.Request) (*http.Response, error), path string) result {
	t.Helper()
	resp, err := handler(httptest.NewRequest(http.MethodGet, path, nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return result{status: resp.StatusCode, headers: resp.Header, body: string(body)}
}

func fiberClient(app *fiber.App) func(*http.Request) (*http.Response, error) {
	return func(r *http.Request) (*http.Response, error) { return app.Test(r, -1) }
}

func netHTTPClient(h *bridge.Handlers) func(*http.Request) (*http.Response, error) {
	mux := http.NewServeMux()
	server.Routes(mux, "/api", h, nil)
	return func(r *http.Request) (*http.Response, error) {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, r)
		return rec.Result(), nil
	}
}

func TestMountFiber_Routes(t *testing.T) {
	app := newApp(newHandlers(t, &fakeBundler{}))
	do := fiberClient(app)

	list := get(t, do, "/api/bundles")
	require.Equal(t, fiber.StatusOK, list.status)
	assert.JSONEq(t, `[{"name":"demo:card"},{"name":"demo:counter"}]`, list.body)

	bundle := get(t, do, "/api/bundles/demo:counter.js")
	require.Equal(t, fiber.StatusOK, bundle.status)
	assert.Equal(t, "application/javascript", bundle.headers.Get("Content-Type"))
	assert.Equal(t, BundleCacheControl, bundle.headers.Get("Cache-Control"))
	assert.Equal(t, "export default function Counter() {}", bundle.body)

	meta := get(t, do, "/api/bundles/demo:counter/metadata")
	require.Equal(t, fiber.StatusOK, meta.status)
	var metadata map[string]any
	require.NoError(t, json.Unmarshal([]byte(meta.body), &metadata))
	assert.Equal(t, "Counter", metadata["title"])
	assert.Equal(t, "1.0.0", metadata["version"])
	assert.Equal(t, build.ContentHash("export default function Counter() {}"), metadata["hash"])
}

func TestMountFiber_Errors(t *testing.T) {
	app := newApp(newHandlers(t, &fakeBundler{}))
	do := fiberClient(app)

	tests := []struct {
		name   string
		path   string
		status int
		detail string
	}{
		{"unknown bundle", "/api/bundles/demo:nope.js", fiber.StatusNotFound, "Bundle 'demo:nope' not found"},
		{"no extension", "/api/bundles/demo:counter", fiber.StatusNotFound, "not found"},
		{"invalid bundle name", "/api/bundles/bad%20name.js", fiber.StatusUnprocessableEntity, "invalid component name"},
		{"unknown metadata", "/api/bundles/demo:nope/metadata", fiber.StatusNotFound, "Bundle 'demo:nope' not found"},
		{"invalid metadata name", "/api/bundles/a%5Cb/metadata", fiber.StatusUnprocessableEntity, "invalid component name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := get(t, do, tt.path)
			assert.Equal(t, tt.status, res.status)

			var body map[string]string
			require.NoError(t, json.Unmarshal([]byte(res.body), &body))
			assert.Contains(t, body["detail"], tt.detail)
		})
	}
}

func TestMountFiber_BuildFailure(t *testing.T) {
	app := newApp(newHandlers(t, &fakeBundler{fail: true}))
	do := fiberClient(app)

	res := get(t, do, "/api/bundles/demo:card.js")
	assert.Equal(t, fiber.StatusInternalServerError, res.status)
	assert.Contains(t, res.body, `Could not resolve`)

	// Metadata survives a broken build, without the hash
	meta := get(t, do, "/api/bundles/demo:counter/metadata")
	require.Equal(t, fiber.StatusOK, meta.status)
	assert.NotContains(t, meta.body, `"hash"`)
}

// Both frameworks must answer identically.
func TestMountFiber_MatchesNetHTTP(t *testing.T) {
	paths := []string{
		"/api/bundles",
		"/api/bundles/demo:card.js",
		"/api/bundles/demo:counter/metadata",
		"/api/bundles/demo:missing.js",
		"/api/bundles/demo:missing/metadata",
		"/api/bundles/x%20y.js",
	}

	for _, fail := range []bool{false, true} {
		h := newHandlers(t, &fakeBundler{fail: fail})
		viaFiber := fiberClient(newApp(h))
		viaNetHTTP := netHTTPClient(h)

		for _, path := range paths {
			f := get(t, viaFiber, path)
			n := get(t, viaNetHTTP, path)

			assert.Equal(t, n.status, f.status, path)
			assert.Equal(t, n.headers.Get("Cache-Control"), f.headers.Get("Cache-Control"), path)
			if n.headers.Get("Content-Type") == "application/javascript" {
				assert.Equal(t, n.body, f.body, path)
			} else {
				assert.JSONEq(t, n.body, f.body, path)
			}
		}
	}
}
