package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/conneroisu/tsxbridge/internal/bridge"
	"github.com/conneroisu/tsxbridge/internal/errors"
	"github.com/conneroisu/tsxbridge/internal/logging"
)

// BundleCacheControl is sent with every bundle. Bundle URLs carry the
// content hash, so a cached copy never goes stale.
const BundleCacheControl = "public, max-age=31536000, immutable"

// Routes registers the read-only bundle API under prefix on mux:
//
//	GET {prefix}/bundles
//	GET {prefix}/bundles/{name}.js
//	GET {prefix}/bundles/{name}/metadata
//
// Applications embedding tsxbridge in their own net/http server call this
// directly; BundleServer adds admin, health and live-reload routes on top.
func Routes(mux *http.ServeMux, prefix string, h *bridge.Handlers, logger logging.Logger) {
	if logger == nil {
		logger = logging.Nop()
	}
	api := &api{handlers: h, logger: logger.WithComponent("api")}

	mux.HandleFunc("GET "+prefix+"/bundles", api.listBundles)
	mux.HandleFunc("GET "+prefix+"/bundles/{file}", api.getBundle)
	mux.HandleFunc("GET "+prefix+"/bundles/{name}/metadata", api.getMetadata)
}

type api struct {
	handlers *bridge.Handlers
	logger   logging.Logger
}

func (a *api) listBundles(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.handlers.ListBundles())
}

func (a *api) getBundle(w http.ResponseWriter, r *http.Request) {
	file := r.PathValue("file")
	name, ok := strings.CutSuffix(file, ".js")
	if !ok {
		writeDetail(w, http.StatusNotFound, fmt.Sprintf("Bundle '%s' not found", file))
		return
	}

	result, err := a.handlers.GetBundle(r.Context(), name)
	if err != nil {
		writeError(w, err)
		return
	}
	if result == nil {
		writeDetail(w, http.StatusNotFound, fmt.Sprintf("Bundle '%s' not found", name))
		return
	}

	w.Header().Set("Content-Type", "application/javascript")
	w.Header().Set("Cache-Control", BundleCacheControl)
	w.Header().Set("ETag", `"`+result.Hash+`"`)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(result.Code)); err != nil {
		a.logger.Debug(r.Context(), "bundle write aborted", "name", name, "error", err)
	}
}

func (a *api) getMetadata(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	metadata, err := a.handlers.GetMetadata(r.Context(), name)
	if err != nil {
		writeError(w, err)
		return
	}
	if metadata == nil {
		writeDetail(w, http.StatusNotFound, fmt.Sprintf("Bundle '%s' not found", name))
		return
	}
	writeJSON(w, http.StatusOK, metadata)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func writeError(w http.ResponseWriter, err error) {
	writeDetail(w, errors.HTTPStatus(err), errors.Detail(err))
}
