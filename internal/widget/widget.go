// Package widget renders the HTML snippet that mounts a component in a
// server-rendered page, and ships the browser scripts that load its bundle.
//
// A widget is a templ.Component, so it composes into templ layouts:
//
//	@widget.New("store:product_card", map[string]any{"name": p.Name})
//
// The snippet is a container carrying data-tsx-* attributes followed by a
// deferred <script> tag for loader.js. The loader finds every container,
// imports the bundle from the API and renders its default export.
package widget

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/a-h/templ"
	"github.com/google/uuid"
)

const (
	DefaultAPIBase    = "/api"
	DefaultStaticBase = "/static/tsxbridge"
)

// LoaderJS mounts every container on the page.
//
//go:embed loader.js
var LoaderJS string

// LiveLoaderJS re-renders live containers when their form changes.
//
//go:embed live-loader.js
var LiveLoaderJS string

// Scripts maps the file names served under the static prefix to their source.
var Scripts = map[string]string{
	"loader.js":      LoaderJS,
	"live-loader.js": LiveLoaderJS,
}

// Hasher returns the current bundle hash of a component, or "".
type Hasher interface {
	Hash(ctx context.Context, name string) string
}

// Widget is one embedded component.
type Widget struct {
	ID          string
	Component   string
	Props       map[string]any
	APIBase     string
	StaticBase  string
	Hash        string
	Live        bool
	ValidateURL string
	// ReloadURL, when set, is the WebSocket the loader listens on for
	// rebuilt bundles.
	ReloadURL string
}

// New creates a widget with a fresh container ID and default URLs.
func New(component string, props map[string]any) *Widget {
	return &Widget{
		ID:         NewID(),
		Component:  component,
		Props:      props,
		APIBase:    DefaultAPIBase,
		StaticBase: DefaultStaticBase,
	}
}

// NewWidget creates a widget whose hash is looked up through h, so browsers
// fetch a fresh bundle whenever the component changes.
func NewWidget(ctx context.Context, h Hasher, component string, props map[string]any) *Widget {
	w := New(component, props)
	if h != nil {
		w.Hash = h.Hash(ctx, component)
	}
	return w
}

// NewID returns a container ID of the form tsx-<8 hex digits>.
func NewID() string {
	id := uuid.New()
	return "tsx-" + strings.ReplaceAll(id.String(), "-", "")[:8]
}

// Render writes the container and its loader scripts.
func (w *Widget) Render(ctx context.Context, out io.Writer) error {
	props := w.Props
	if props == nil {
		props = map[string]any{}
	}
	propsJSON, err := json.Marshal(props)
	if err != nil {
		return fmt.Errorf("encoding props for %s: %w", w.Component, err)
	}

	id := w.ID
	if id == "" {
		id = NewID()
	}
	apiBase := orDefault(w.APIBase, DefaultAPIBase)
	staticBase := strings.TrimSuffix(orDefault(w.StaticBase, DefaultStaticBase), "/")

	var sb strings.Builder
	sb.WriteString(`<div id="`)
	sb.WriteString(templ.EscapeString(id))
	sb.WriteString(`"`)
	attr(&sb, "data-tsx-component", w.Component)
	attr(&sb, "data-tsx-props", string(propsJSON))
	attr(&sb, "data-tsx-api", apiBase)
	if w.Hash != "" {
		attr(&sb, "data-tsx-hash", w.Hash)
	}
	if w.Live {
		attr(&sb, "data-tsx-live", "true")
		if w.ValidateURL != "" {
			attr(&sb, "data-tsx-validate-url", w.ValidateURL)
		}
	}
	if w.ReloadURL != "" {
		attr(&sb, "data-tsx-reload", w.ReloadURL)
	}
	sb.WriteString(` style="min-height: 50px;">`)
	sb.WriteString(`<div class="tsx-loading" style="color: #666; padding: 1rem; text-align: center;">Loading component...</div>`)
	sb.WriteString(`</div>`)

	script(&sb, staticBase+"/loader.js")
	if w.Live {
		script(&sb, staticBase+"/live-loader.js")
	}

	_, err = io.WriteString(out, sb.String())
	return err
}

// String renders the widget with a background context.
func (w *Widget) String() string {
	var sb strings.Builder
	if err := w.Render(context.Background(), &sb); err != nil {
		return ""
	}
	return sb.String()
}

var _ templ.Component = (*Widget)(nil)

func attr(sb *strings.Builder, name, value string) {
	sb.WriteString(" ")
	sb.WriteString(name)
	sb.WriteString(`="`)
	sb.WriteString(templ.EscapeString(value))
	sb.WriteString(`"`)
}

func script(sb *strings.Builder, src string) {
	sb.WriteString(`<script src="`)
	sb.WriteString(templ.EscapeString(src))
	sb.WriteString(`" defer></script>`)
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
