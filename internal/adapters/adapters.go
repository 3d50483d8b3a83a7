// Package adapters mounts the bundle API on web frameworks other than
// net/http. Every adapter answers with the same status codes and bodies as
// server.Routes, because all of them delegate to bridge.Handlers.
package adapters

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/conneroisu/tsxbridge/internal/bridge"
	"github.com/conneroisu/tsxbridge/internal/errors"
)

// BundleCacheControl marks bundles as immutable; their URLs carry the hash.
const BundleCacheControl = "public, max-age=31536000, immutable"

// FiberHandler serves the bundle API for a Fiber application.
type FiberHandler struct {
	handlers *bridge.Handlers
}

// MountFiber registers the bundle routes on r:
//
//	GET /bundles
//	GET /bundles/:name.js
//	GET /bundles/:name/metadata
//
// Mount on a group to apply a prefix, e.g. MountFiber(app.Group("/api"), h).
func MountFiber(r fiber.Router, h *bridge.Handlers) *FiberHandler {
	fh := &FiberHandler{handlers: h}
	r.Get("/bundles", fh.ListBundles)
	r.Get("/bundles/:file", fh.GetBundle)
	r.Get("/bundles/:name/metadata", fh.GetMetadata)
	return fh
}

// ListBundles returns every component name
// GET /bundles
func (fh *FiberHandler) ListBundles(c *fiber.Ctx) error {
	return c.JSON(fh.handlers.ListBundles())
}

// GetBundle returns a compiled bundle
// GET /bundles/:name.js
func (fh *FiberHandler) GetBundle(c *fiber.Ctx) error {
	file, err := param(c, "file")
	if err != nil {
		return detail(c, fiber.StatusNotFound, err.Error())
	}
	name, ok := strings.CutSuffix(file, ".js")
	if !ok {
		return detail(c, fiber.StatusNotFound, fmt.Sprintf("Bundle '%s' not found", file))
	}

	result, err := fh.handlers.GetBundle(c.UserContext(), name)
	if err != nil {
		return detail(c, errors.HTTPStatus(err), errors.Detail(err))
	}
	if result == nil {
		return detail(c, fiber.StatusNotFound, fmt.Sprintf("Bundle '%s' not found", name))
	}

	c.Set(fiber.HeaderContentType, "application/javascript")
	c.Set(fiber.HeaderCacheControl, BundleCacheControl)
	c.Set(fiber.HeaderETag, `"`+result.Hash+`"`)
	return c.SendString(result.Code)
}

// GetMetadata returns component metadata plus the bundle hash
// GET /bundles/:name/metadata
func (fh *FiberHandler) GetMetadata(c *fiber.Ctx) error {
	name, err := param(c, "name")
	if err != nil {
		return detail(c, fiber.StatusNotFound, err.Error())
	}

	metadata, err := fh.handlers.GetMetadata(c.UserContext(), name)
	if err != nil {
		return detail(c, errors.HTTPStatus(err), errors.Detail(err))
	}
	if metadata == nil {
		return detail(c, fiber.StatusNotFound, fmt.Sprintf("Bundle '%s' not found", name))
	}
	return c.JSON(metadata)
}

// param returns the decoded route parameter. Fiber leaves escapes in place
// unless the app enables UnescapePath.
func param(c *fiber.Ctx, key string) (string, error) {
	raw := c.Params(key)
	value, err := url.PathUnescape(raw)
	if err != nil {
		return "", fmt.Errorf("malformed path parameter %q", raw)
	}
	return value, nil
}

func detail(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(fiber.Map{"detail": message})
}
