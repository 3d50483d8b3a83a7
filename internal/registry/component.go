// Package registry discovers TSX component packages across one or more source
// directories and maps namespaced component names to their entry points.
package registry

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/conneroisu/tsxbridge/internal/logging"
	"github.com/conneroisu/tsxbridge/internal/validation"
)

// SchemaFile is the optional sidecar descriptor read for component metadata.
const SchemaFile = "schema.json"

// Component is a discovered, bundleable unit of front-end source.
type Component struct {
	Name       string `json:"name"`
	PackageDir string `json:"package_dir"`
	EntryPath  string `json:"entry_path"`
}

// SchemaPath returns the location of the component's sidecar descriptor.
func (c *Component) SchemaPath() string {
	return filepath.Join(c.PackageDir, SchemaFile)
}

// Metadata re-reads the sidecar descriptor. The result is never cached.
func (c *Component) Metadata() Metadata {
	return LoadMetadata(c.SchemaPath())
}

// Source is a directory registered with the registry, optionally namespaced.
type Source struct {
	Path   string `json:"path" yaml:"path" mapstructure:"path"`
	Prefix string `json:"prefix,omitempty" yaml:"prefix,omitempty" mapstructure:"prefix"`
}

// ComponentEvent represents a change in the component registry
type ComponentEvent struct {
	Type      EventType
	Component *Component
	Timestamp time.Time
}

// EventType represents the type of component event
type EventType int

const (
	EventTypeAdded EventType = iota
	EventTypeUpdated
	EventTypeRemoved
)

func (e EventType) String() string {
	switch e {
	case EventTypeAdded:
		return "added"
	case EventTypeUpdated:
		return "updated"
	case EventTypeRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// ComponentRegistry manages all discovered components
type ComponentRegistry struct {
	components map[string]*Component
	sources    []Source
	mutex      sync.RWMutex
	watchers   []chan ComponentEvent
	logger     logging.Logger
}

// Option configures a ComponentRegistry.
type Option func(*ComponentRegistry)

// WithLogger sets the logger used for discovery warnings.
func WithLogger(logger logging.Logger) Option {
	return func(r *ComponentRegistry) {
		if logger != nil {
			r.logger = logger.WithComponent("registry")
		}
	}
}

// NewComponentRegistry creates a new component registry
func NewComponentRegistry(opts ...Option) *ComponentRegistry {
	r := &ComponentRegistry{
		components: make(map[string]*Component),
		watchers:   make([]chan ComponentEvent, 0),
		logger:     logging.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// AddSource registers a source directory and discovers its components
// immediately. A path that is missing or not a directory is skipped with a
// warning; it is not an error. A prefix outside the allow-list is.
func (r *ComponentRegistry) AddSource(path, prefix string) error {
	if err := validation.ValidatePrefix(prefix); err != nil {
		return err
	}

	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		r.logger.Warn(context.Background(), err, "component source is not a directory, skipping",
			"path", path, "prefix", prefix)
		return nil
	}

	if abs, absErr := filepath.Abs(path); absErr == nil {
		path = abs
	}
	source := Source{Path: path, Prefix: prefix}

	discovered := discover(source, r.logger)

	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.sources = append(r.sources, source)
	for name, component := range discovered {
		previous, exists := r.components[name]
		r.components[name] = component
		switch {
		case !exists:
			r.notify(EventTypeAdded, component)
		case previous.EntryPath != component.EntryPath:
			r.notify(EventTypeUpdated, component)
		}
	}

	r.logger.Info(context.Background(), "registered component source",
		"path", path, "prefix", prefix, "components", len(discovered))
	return nil
}

// Get retrieves a component by name. A malformed name is an error; a
// well-formed name that is not registered returns nil, nil.
func (r *ComponentRegistry) Get(name string) (*Component, error) {
	if err := validation.ValidateComponentName(name); err != nil {
		return nil, err
	}

	r.mutex.RLock()
	defer r.mutex.RUnlock()

	return r.components[name], nil
}

// Refresh clears the registry and rediscovers every source in registration
// order. Watchers receive the difference between the old and new mappings.
func (r *ComponentRegistry) Refresh() {
	r.mutex.RLock()
	sources := make([]Source, len(r.sources))
	copy(sources, r.sources)
	r.mutex.RUnlock()

	next := make(map[string]*Component)
	for _, source := range sources {
		for name, component := range discover(source, r.logger) {
			next[name] = component
		}
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	previous := r.components
	r.components = next

	for name, component := range next {
		old, exists := previous[name]
		switch {
		case !exists:
			r.notify(EventTypeAdded, component)
		case old.EntryPath != component.EntryPath || old.PackageDir != component.PackageDir:
			r.notify(EventTypeUpdated, component)
		}
	}
	for name, component := range previous {
		if _, exists := next[name]; !exists {
			r.notify(EventTypeRemoved, component)
		}
	}
}

// Names returns every registered component name in sorted order.
func (r *ComponentRegistry) Names() []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	names := make([]string, 0, len(r.components))
	for name := range r.components {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetAll returns all registered components
func (r *ComponentRegistry) GetAll() map[string]*Component {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	result := make(map[string]*Component, len(r.components))
	for name, component := range r.components {
		result[name] = component
	}
	return result
}

// Sources returns the registered sources in registration order.
func (r *ComponentRegistry) Sources() []Source {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	result := make([]Source, len(r.sources))
	copy(result, r.sources)
	return result
}

// Count returns the number of registered components
func (r *ComponentRegistry) Count() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	return len(r.components)
}

// Owner returns the component whose package directory contains path, if any.
// The deepest matching package wins.
func (r *ComponentRegistry) Owner(path string) *Component {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	var best *Component
	for _, component := range r.components {
		rel, err := filepath.Rel(component.PackageDir, path)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			continue
		}
		if best == nil || len(component.PackageDir) > len(best.PackageDir) {
			best = component
		}
	}
	return best
}

// Watch returns a channel that receives component events
func (r *ComponentRegistry) Watch() <-chan ComponentEvent {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	ch := make(chan ComponentEvent, 100)
	r.watchers = append(r.watchers, ch)
	return ch
}

// UnWatch removes a watcher channel and closes it
func (r *ComponentRegistry) UnWatch(ch <-chan ComponentEvent) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	for i, watcher := range r.watchers {
		if watcher == ch {
			close(watcher)
			r.watchers = append(r.watchers[:i], r.watchers[i+1:]...)
			break
		}
	}
}

// notify must be called with the write lock held.
func (r *ComponentRegistry) notify(eventType EventType, component *Component) {
	event := ComponentEvent{
		Type:      eventType,
		Component: component,
		Timestamp: time.Now(),
	}

	for _, watcher := range r.watchers {
		select {
		case watcher <- event:
		default:
			// Skip if channel is full
		}
	}
}
