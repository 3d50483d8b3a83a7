// Package bridge is the framework-agnostic façade every HTTP adapter calls.
// Adapters only translate requests and results; caching and error
// classification happen here.
package bridge

import (
	"context"
	"os"
	"strconv"

	"golang.org/x/sync/singleflight"

	"github.com/conneroisu/tsxbridge/internal/build"
	"github.com/conneroisu/tsxbridge/internal/errors"
	"github.com/conneroisu/tsxbridge/internal/logging"
	"github.com/conneroisu/tsxbridge/internal/registry"
)

// Registry is the subset of the component registry the handlers need.
type Registry interface {
	Get(name string) (*registry.Component, error)
	Names() []string
}

// Bundler compiles an entry point.
type Bundler interface {
	Bundle(ctx context.Context, entryPath string, opts ...build.BundleOption) (*build.Result, error)
}

// BundleInfo is one element of the bundle listing.
type BundleInfo struct {
	Name string `json:"name" yaml:"name"`
}

// Handlers composes the registry, the bundle cache and the bundler.
type Handlers struct {
	registry     Registry
	bundler      Bundler
	cache        *build.BundleCache
	metrics      *build.Metrics
	failures     *errors.ErrorCollector
	logger       logging.Logger
	stat         func(name string) (os.FileInfo, error)
	singleFlight bool
	group        singleflight.Group
}

// Option configures Handlers.
type Option func(*Handlers)

// WithCache shares an existing cache.
func WithCache(cache *build.BundleCache) Option {
	return func(h *Handlers) { h.cache = cache }
}

// WithMetrics records cache and build activity.
func WithMetrics(metrics *build.Metrics) Option {
	return func(h *Handlers) { h.metrics = metrics }
}

// WithLogger sets the logger.
func WithLogger(logger logging.Logger) Option {
	return func(h *Handlers) {
		if logger != nil {
			h.logger = logger.WithComponent("bridge")
		}
	}
}

// WithSingleFlight collapses concurrent cache misses for the same component
// and mtime into one bundler run. Without it, concurrent misses may each run
// the bundler and the last one to finish owns the cache entry.
func WithSingleFlight(enabled bool) Option {
	return func(h *Handlers) { h.singleFlight = enabled }
}

// WithStat replaces os.Stat for entry point lookups.
func WithStat(stat func(name string) (os.FileInfo, error)) Option {
	return func(h *Handlers) { h.stat = stat }
}

// WithErrorCollector shares the collector holding the latest build failures.
func WithErrorCollector(collector *errors.ErrorCollector) Option {
	return func(h *Handlers) { h.failures = collector }
}

// NewHandlers creates the façade. Single-flight is on unless disabled.
func NewHandlers(reg Registry, bundler Bundler, opts ...Option) *Handlers {
	h := &Handlers{
		registry:     reg,
		bundler:      bundler,
		cache:        build.NewBundleCache(),
		failures:     errors.NewErrorCollector(),
		logger:       logging.Nop(),
		stat:         os.Stat,
		singleFlight: true,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ListBundles returns every registered component name, sorted.
func (h *Handlers) ListBundles() []BundleInfo {
	names := h.registry.Names()
	bundles := make([]BundleInfo, len(names))
	for i, name := range names {
		bundles[i] = BundleInfo{Name: name}
	}
	return bundles
}

// GetBundle returns the compiled bundle for name. It returns an invalid name
// error for malformed names and nil, nil when the component is unknown or its
// entry point has vanished. Bundler failures are returned as is and are never
// cached. A caller whose ctx ends stops waiting, but the build it started
// keeps running for everyone else waiting on the same component.
func (h *Handlers) GetBundle(ctx context.Context, name string) (*build.Result, error) {
	component, err := h.registry.Get(name)
	if err != nil {
		return nil, err
	}
	if component == nil {
		return nil, nil
	}

	info, err := h.stat(component.EntryPath)
	if err != nil {
		h.logger.Debug(ctx, "entry point vanished", "name", name, "path", component.EntryPath)
		return nil, nil
	}
	mtime := info.ModTime()

	if result, ok := h.cache.Get(name, mtime); ok {
		h.metrics.ObserveCache(true)
		return result, nil
	}
	h.metrics.ObserveCache(false)

	// The build outlives any one request; only the bundler timeout bounds it.
	buildCtx := context.WithoutCancel(ctx)
	rebuild := func() (*build.Result, error) {
		result, err := h.bundler.Bundle(buildCtx, component.EntryPath, build.WithComponentName(name))
		if err != nil {
			h.failures.Record(name, err)
			h.logger.Debug(buildCtx, "bundle failed", "name", name, "error", err)
			return nil, err
		}

		h.cache.Set(name, result, mtime)
		h.failures.Resolve(name)
		h.metrics.SetCacheEntries(h.cache.Len())
		h.logger.Debug(buildCtx, "bundled component", "name", name, "hash", result.Hash)
		return result, nil
	}

	if !h.singleFlight {
		return rebuild()
	}

	key := name + "@" + strconv.FormatInt(mtime.UnixNano(), 10)
	ch := h.group.DoChan(key, func() (interface{}, error) {
		return rebuild()
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*build.Result), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// GetMetadata returns the component's sidecar metadata plus the current
// bundle hash. A failing build omits the hash instead of failing the call.
// The descriptor is re-read on every call.
func (h *Handlers) GetMetadata(ctx context.Context, name string) (registry.Metadata, error) {
	component, err := h.registry.Get(name)
	if err != nil {
		return nil, err
	}
	if component == nil {
		return nil, nil
	}

	metadata := registry.LoadMetadata(component.SchemaPath())

	result, err := h.GetBundle(ctx, name)
	switch {
	case err != nil:
		h.logger.Warn(ctx, err, "omitting hash from metadata", "name", name)
	case result != nil:
		metadata["hash"] = result.Hash
	}
	return metadata, nil
}

// ClearCache drops the named bundles, or all bundles when no name is given.
func (h *Handlers) ClearCache(names ...string) {
	h.cache.Clear(names...)
	h.metrics.SetCacheEntries(h.cache.Len())
}

// Hash returns the current bundle hash for name, or "" if it cannot be built.
func (h *Handlers) Hash(ctx context.Context, name string) string {
	result, err := h.GetBundle(ctx, name)
	if err != nil || result == nil {
		return ""
	}
	return result.Hash
}

// CacheStats reports bundle cache counters.
func (h *Handlers) CacheStats() build.CacheStats {
	return h.cache.Stats()
}

// Failures returns the latest build failure of every broken component.
func (h *Handlers) Failures() []errors.BuildFailure {
	return h.failures.GetFailures()
}

// HasFailures reports whether any component failed its latest build.
func (h *Handlers) HasFailures() bool {
	return h.failures.HasErrors()
}

// ResetFailures forgets every recorded build failure.
func (h *Handlers) ResetFailures() {
	h.failures.Clear()
}
