// Package server is the standalone net/http front end: the bundle API, cache
// administration, health and metrics endpoints, the loader scripts and a
// WebSocket hub that tells browsers when a component was rebuilt.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/exec"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/conneroisu/tsxbridge/internal/bridge"
	"github.com/conneroisu/tsxbridge/internal/config"
	"github.com/conneroisu/tsxbridge/internal/logging"
	"github.com/conneroisu/tsxbridge/internal/registry"
	"github.com/conneroisu/tsxbridge/internal/validation"
	"github.com/conneroisu/tsxbridge/internal/version"
	"github.com/conneroisu/tsxbridge/internal/watcher"
	"github.com/conneroisu/tsxbridge/internal/widget"
)

// Client represents a WebSocket client
type Client struct {
	conn   *websocket.Conn
	send   chan []byte
	server *BundleServer
}

// BundleServer serves component bundles with live reload capability
type BundleServer struct {
	config      *config.Config
	registry    *registry.ComponentRegistry
	handlers    *bridge.Handlers
	gatherer    prometheus.Gatherer
	watcher     *watcher.FileWatcher
	logger      logging.Logger
	httpServer  *http.Server
	serverMutex sync.RWMutex

	events       <-chan registry.ComponentEvent
	refreshMutex sync.Mutex

	clients      map[*websocket.Conn]*Client
	clientsMutex sync.RWMutex
	broadcast    chan []byte
	register     chan *Client
	unregister   chan *websocket.Conn

	handlerOnce  sync.Once
	handler      http.Handler
	done         chan struct{}
	shutdownOnce sync.Once
}

// UpdateMessage represents a message sent to the browser
type UpdateMessage struct {
	Type      string    `json:"type"`
	Target    string    `json:"target,omitempty"`
	Hash      string    `json:"hash,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Message types broadcast over the reload socket.
const (
	MessageComponentAdded   = "component_added"
	MessageComponentUpdated = "component_updated"
	MessageComponentRemoved = "component_removed"
	MessageBuildError       = "build_error"
	MessageFullReload       = "full_reload"
)

// Option configures a BundleServer.
type Option func(*BundleServer)

// WithLogger sets the logger.
func WithLogger(logger logging.Logger) Option {
	return func(s *BundleServer) {
		if logger != nil {
			s.logger = logger.WithComponent("server")
		}
	}
}

// WithGatherer exposes the given registry on /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *BundleServer) { s.gatherer = g }
}

// WithWatcher enables hot reload driven by fw.
func WithWatcher(fw *watcher.FileWatcher) Option {
	return func(s *BundleServer) { s.watcher = fw }
}

// New creates a bundle server.
func New(cfg *config.Config, reg *registry.ComponentRegistry, h *bridge.Handlers, opts ...Option) *BundleServer {
	s := &BundleServer{
		config:     cfg,
		registry:   reg,
		handlers:   h,
		logger:     logging.Nop(),
		clients:    make(map[*websocket.Conn]*Client),
		broadcast:  make(chan []byte, 16),
		register:   make(chan *Client),
		unregister: make(chan *websocket.Conn),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if reg != nil {
		s.events = reg.Watch()
	}
	return s
}

// Handler returns the complete HTTP handler, starting the WebSocket hub on
// first use.
func (s *BundleServer) Handler() http.Handler {
	s.handlerOnce.Do(func() {
		go s.runWebSocketHub()

		prefix := s.config.Server.APIPrefix
		mux := http.NewServeMux()
		Routes(mux, prefix, s.handlers, s.logger)

		mux.HandleFunc("DELETE "+prefix+"/cache", s.handleClearCache)
		mux.HandleFunc("DELETE "+prefix+"/cache/{name}", s.handleClearCache)
		mux.HandleFunc("POST "+prefix+"/refresh", s.handleRefresh)
		mux.HandleFunc("GET "+prefix+"/errors", s.handleBuildErrors)
		mux.HandleFunc("GET "+strings.TrimSuffix(s.config.Server.StaticPrefix, "/")+"/{file}", s.handleStatic)
		mux.HandleFunc("GET /health", s.handleHealth)
		mux.HandleFunc("GET /ws", s.handleWebSocket)

		if s.gatherer != nil {
			mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
		}

		s.handler = s.addMiddleware(mux)
	})
	return s.handler
}

// Start serves until the server is shut down.
func (s *BundleServer) Start(ctx context.Context) error {
	if s.watcher != nil {
		s.setupFileWatcher(ctx)
	}

	addr := s.config.Addr()

	s.serverMutex.Lock()
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	server := s.httpServer
	s.serverMutex.Unlock()

	s.logger.Info(ctx, "serving components",
		"addr", addr,
		"api_prefix", s.config.Server.APIPrefix,
		"components", s.registry.Count())

	if s.config.Server.Open {
		go s.openBrowser(ctx, fmt.Sprintf("http://%s%s/bundles", addr, s.config.Server.APIPrefix))
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

func (s *BundleServer) setupFileWatcher(ctx context.Context) {
	s.watcher.AddFilter(watcher.NoNodeModulesFilter)
	s.watcher.AddFilter(watcher.NoGitFilter)
	s.watcher.AddFilter(watcher.SourceFilter)
	s.watcher.AddHandler(func(events []watcher.ChangeEvent) error {
		return s.handleFileChange(ctx, events)
	})

	for _, source := range s.registry.Sources() {
		if err := s.watcher.AddRecursive(source.Path); err != nil {
			s.logger.Warn(ctx, err, "cannot watch source", "path", source.Path)
		}
	}

	if err := s.watcher.Start(ctx); err != nil {
		s.logger.Error(ctx, err, "failed to start file watcher")
	}
}

// handleFileChange drops the bundles affected by events and notifies browsers.
// Edits evict only the owning component; anything that may add or remove a
// component refreshes the registry and evicts everything.
func (s *BundleServer) handleFileChange(ctx context.Context, events []watcher.ChangeEvent) error {
	structural := false
	for _, event := range events {
		s.logger.Debug(ctx, "file changed", "path", event.Path, "type", event.Type.String())
		if event.Structural() || s.registry.Owner(event.Path) == nil {
			structural = true
		}
	}

	// changed maps a component name to the message announcing its rebuild.
	changed := make(map[string]string)
	if structural {
		for _, event := range s.refresh() {
			name := event.Component.Name
			switch event.Type {
			case registry.EventTypeAdded:
				changed[name] = MessageComponentAdded
			case registry.EventTypeUpdated:
				changed[name] = MessageComponentUpdated
			case registry.EventTypeRemoved:
				s.broadcastMessage(UpdateMessage{Type: MessageComponentRemoved, Target: name, Timestamp: time.Now()})
			}
		}
	}

	for _, event := range events {
		owner := s.registry.Owner(event.Path)
		if owner == nil {
			continue
		}
		if _, seen := changed[owner.Name]; seen {
			continue
		}
		changed[owner.Name] = MessageComponentUpdated
		if !structural {
			s.handlers.ClearCache(owner.Name)
		}
	}

	names := make([]string, 0, len(changed))
	for name := range changed {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		s.notifyRebuilt(ctx, name, changed[name])
	}
	return nil
}

// refresh rescans every source, drops all bundles and failures, and returns
// the registry events the rescan produced. When the subscription overflowed
// browsers are told to reload everything instead.
func (s *BundleServer) refresh() []registry.ComponentEvent {
	s.refreshMutex.Lock()
	defer s.refreshMutex.Unlock()

	s.drainEvents()
	s.registry.Refresh()
	s.handlers.ClearCache()
	s.handlers.ResetFailures()

	events := s.drainEvents()
	if s.events != nil && len(events) >= cap(s.events) {
		s.broadcastMessage(UpdateMessage{Type: MessageFullReload, Timestamp: time.Now()})
	}
	return events
}

// drainEvents returns the registry events queued so far without blocking.
func (s *BundleServer) drainEvents() []registry.ComponentEvent {
	var events []registry.ComponentEvent
	for {
		select {
		case event, ok := <-s.events:
			if !ok {
				return events
			}
			events = append(events, event)
		default:
			return events
		}
	}
}

// notifyRebuilt rebuilds name eagerly so browsers receive the new hash in a
// message of type msgType.
func (s *BundleServer) notifyRebuilt(ctx context.Context, name, msgType string) {
	result, err := s.handlers.GetBundle(ctx, name)
	switch {
	case err != nil:
		s.broadcastMessage(UpdateMessage{Type: MessageBuildError, Target: name, Timestamp: time.Now()})
	case result == nil:
		s.broadcastMessage(UpdateMessage{Type: MessageComponentRemoved, Target: name, Timestamp: time.Now()})
	default:
		s.broadcastMessage(UpdateMessage{
			Type:      msgType,
			Target:    name,
			Hash:      result.Hash,
			Timestamp: time.Now(),
		})
	}
}

func (s *BundleServer) openBrowser(ctx context.Context, url string) {
	time.Sleep(100 * time.Millisecond) // Give server time to start

	// Validate URL for security before passing to system commands
	if err := validation.ValidateURL(url); err != nil {
		s.logger.Warn(ctx, err, "browser open failed due to invalid URL")
		return
	}

	var err error
	switch runtime.GOOS {
	case "linux":
		err = exec.Command("xdg-open", url).Start()
	case "windows":
		err = exec.Command("rundll32", "url.dll,FileProtocolHandler", url).Start()
	case "darwin":
		err = exec.Command("open", url).Start()
	default:
		err = fmt.Errorf("unsupported platform")
	}

	if err != nil {
		s.logger.Warn(ctx, err, "failed to open browser")
	}
}

func (s *BundleServer) addMiddleware(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// CORS headers based on environment
		origin := r.Header.Get("Origin")
		if s.isAllowedOrigin(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Add("Vary", "Origin")
		} else if s.config.IsDevelopment() {
			// Only allow wildcard in development
			w.Header().Set("Access-Control-Allow-Origin", "*")
		}
		// Production default: no CORS header (blocks cross-origin requests)

		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		// Handle preflight requests
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				s.logger.Error(r.Context(), fmt.Errorf("panic: %v", rec), "handler panicked",
					"method", r.Method, "path", r.URL.Path)
				writeDetail(w, http.StatusInternalServerError, "internal server error")
			}
		}()

		start := time.Now()
		handler.ServeHTTP(w, r)
		s.logger.Debug(r.Context(), "request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start))
	})
}

// isAllowedOrigin checks if the origin is in the allowed origins list
func (s *BundleServer) isAllowedOrigin(origin string) bool {
	if origin == "" {
		return false
	}
	return validation.ValidateOrigin(origin, s.config.Server.AllowedOrigins) == nil
}

func (s *BundleServer) broadcastMessage(msg UpdateMessage) {
	jsonData, err := json.Marshal(msg)
	if err != nil {
		jsonData = []byte(`{"type":"full_reload"}`)
	}

	select {
	case s.broadcast <- jsonData:
	case <-s.done:
	}
}

// Shutdown gracefully shuts down the server and cleans up resources
func (s *BundleServer) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.logger.Info(ctx, "shutting down server")
		close(s.done)

		if s.events != nil {
			s.registry.UnWatch(s.events)
		}

		if s.watcher != nil {
			if err := s.watcher.Stop(); err != nil {
				s.logger.Warn(ctx, err, "failed to stop file watcher")
			}
		}

		s.clientsMutex.Lock()
		conns := make([]*websocket.Conn, 0, len(s.clients))
		for conn, client := range s.clients {
			close(client.send)
			conns = append(conns, conn)
		}
		s.clients = make(map[*websocket.Conn]*Client)
		s.clientsMutex.Unlock()

		for _, conn := range conns {
			conn.Close(websocket.StatusGoingAway, "server shutting down")
		}

		s.serverMutex.RLock()
		server := s.httpServer
		s.serverMutex.RUnlock()

		if server != nil {
			shutdownErr = server.Shutdown(ctx)
		}
	})

	return shutdownErr
}

// handleHealth returns the server health status for health checks
func (s *BundleServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats := s.handlers.CacheStats()
	failures := s.handlers.Failures()

	status := "healthy"
	if s.handlers.HasFailures() {
		status = "degraded"
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":     status,
		"timestamp":  time.Now().UTC(),
		"version":    version.GetShortVersion(),
		"components": s.registry.Count(),
		"cache":      stats,
		"failures":   len(failures),
	})
}

// handleClearCache drops one bundle or all of them
func (s *BundleServer) handleClearCache(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if name == "" {
		s.handlers.ClearCache()
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if err := validation.ValidateComponentName(name); err != nil {
		writeError(w, err)
		return
	}
	s.handlers.ClearCache(name)
	w.WriteHeader(http.StatusNoContent)
}

// handleRefresh rescans every source, drops all bundles and forgets earlier
// build failures
func (s *BundleServer) handleRefresh(w http.ResponseWriter, r *http.Request) {
	s.refresh()
	s.broadcastMessage(UpdateMessage{Type: MessageFullReload, Timestamp: time.Now()})

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"components": s.registry.Count(),
	})
}

// handleBuildErrors returns the last build failure of each broken component
func (s *BundleServer) handleBuildErrors(w http.ResponseWriter, r *http.Request) {
	failures := s.handlers.Failures()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"errors": failures,
		"count":  len(failures),
	})
}

func (s *BundleServer) handleStatic(w http.ResponseWriter, r *http.Request) {
	script, ok := widget.Scripts[r.PathValue("file")]
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/javascript")
	w.Header().Set("Cache-Control", "no-cache")
	_, _ = w.Write([]byte(script))
}
