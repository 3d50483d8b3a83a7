// Package build turns component entry points into browser-ready ES modules by
// driving an external esbuild executable, and caches the results by source
// modification time.
package build

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/conneroisu/tsxbridge/internal/errors"
	"github.com/conneroisu/tsxbridge/internal/logging"
)

const (
	// DefaultTarget is the language level passed to esbuild.
	DefaultTarget = "es2020"
	// DefaultTimeout bounds a single esbuild run.
	DefaultTimeout = 60 * time.Second

	// waitDelay caps how long a killed esbuild may hold its pipes open.
	waitDelay = 2 * time.Second
)

// DefaultExternal lists runtime libraries that are never inlined, so several
// components on one page share a single copy.
var DefaultExternal = []string{"react", "react-dom", "react/jsx-runtime", "@tsxbridge/react"}

// Result is the output of one bundle run.
type Result struct {
	Code string `json:"code"`
	Hash string `json:"hash"`
}

// ContentHash returns a short digest of code for cache busting. It is not a
// security token.
func ContentHash(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])[:12]
}

// CommandResolver yields the argv prefix used to run esbuild.
type CommandResolver interface {
	Resolve(ctx context.Context) ([]string, error)
}

// BundlerOptions configures a Bundler.
type BundlerOptions struct {
	Target   string
	External []string
	Timeout  time.Duration
	// TempDir holds output files while esbuild runs. Empty means os.TempDir.
	TempDir string
	Logger  logging.Logger
	Metrics *Metrics
}

// Bundler invokes esbuild for single entry points.
type Bundler struct {
	resolver CommandResolver
	opts     BundlerOptions
	logger   logging.Logger
}

// BundleOption adjusts a single Bundle call.
type BundleOption func(*bundleRequest)

type bundleRequest struct {
	name     string
	external []string
}

// WithComponentName sets the name used in rewritten source map URLs. It
// defaults to the entry file's stem.
func WithComponentName(name string) BundleOption {
	return func(r *bundleRequest) { r.name = name }
}

// WithExternal replaces the external dependency list for one call.
func WithExternal(deps ...string) BundleOption {
	return func(r *bundleRequest) { r.external = deps }
}

// NewBundler creates a bundler that runs whatever resolver yields.
func NewBundler(resolver CommandResolver, opts BundlerOptions) *Bundler {
	if opts.Target == "" {
		opts.Target = DefaultTarget
	}
	if opts.External == nil {
		opts.External = DefaultExternal
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	return &Bundler{
		resolver: resolver,
		opts:     opts,
		logger:   logger.WithComponent("bundler"),
	}
}

// Bundle compiles entryPath into a single ES module with an inline source map
// whose sources point at component://{name}/. The temporary output file is
// removed on every path.
func (b *Bundler) Bundle(ctx context.Context, entryPath string, opts ...BundleOption) (*Result, error) {
	req := bundleRequest{
		name:     strings.TrimSuffix(filepath.Base(entryPath), filepath.Ext(entryPath)),
		external: b.opts.External,
	}
	for _, opt := range opts {
		opt(&req)
	}

	perf := logging.StartOperation(b.logger, "bundle")
	start := time.Now()

	argv, err := b.resolver.Resolve(ctx)
	if err != nil {
		return nil, b.fail(ctx, perf, req.name, start, err)
	}

	tmp, err := os.CreateTemp(b.opts.TempDir, "tsxbridge-*.js")
	if err != nil {
		return nil, b.fail(ctx, perf, req.name, start,
			errors.Wrap(err, errors.ErrorTypeIO, errors.CodeOutputUnreadable, "cannot create bundle output file").
				WithComponent(req.name))
	}
	outfile := tmp.Name()
	_ = tmp.Close()
	defer os.Remove(outfile)

	args := append(argv[1:len(argv):len(argv)], bundleArgs(entryPath, outfile, b.opts.Target, req.external)...)

	runCtx, cancel := context.WithTimeout(ctx, b.opts.Timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, argv[0], args...)
	cmd.WaitDelay = waitDelay
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		var buildErr *errors.BridgeError
		switch {
		case ctx.Err() != nil:
			// The caller gave up; only our own deadline is a timeout.
			buildErr = errors.Wrap(ctx.Err(), errors.ErrorTypeBuild, errors.CodeBuildCancelled, "esbuild cancelled").
				WithComponent(req.name)
		case runCtx.Err() == context.DeadlineExceeded:
			buildErr = errors.NewTimeoutError(req.name, entryPath, b.opts.Timeout)
		default:
			buildErr = errors.NewBuildError(req.name, entryPath, stderr.String(), err)
		}
		return nil, b.fail(ctx, perf, req.name, start, buildErr)
	}

	output, err := os.ReadFile(outfile)
	if err != nil {
		return nil, b.fail(ctx, perf, req.name, start,
			errors.Wrap(err, errors.ErrorTypeIO, errors.CodeOutputUnreadable, "cannot read bundle output").
				WithComponent(req.name))
	}

	code := RewriteSourceMapSources(string(output), req.name)
	perf.End(ctx, "name", req.name, "bytes", len(code))
	b.opts.Metrics.ObserveBuild(req.name, time.Since(start), nil)

	return &Result{Code: code, Hash: ContentHash(code)}, nil
}

// fail closes the bundle span for err and returns it. Runs abandoned by the
// caller are logged at debug level and left out of the build metrics.
func (b *Bundler) fail(ctx context.Context, perf *logging.PerfLogger, name string, start time.Time, err error) error {
	if ctx.Err() != nil {
		perf.End(ctx, "name", name, "cancelled", true)
		return err
	}
	perf.EndWithError(ctx, err, "name", name)
	b.opts.Metrics.ObserveBuild(name, time.Since(start), err)
	return err
}

// bundleArgs is the fixed esbuild flag contract.
func bundleArgs(entryPath, outfile, target string, external []string) []string {
	args := []string{
		entryPath,
		"--bundle",
		"--format=esm",
		"--target=" + target,
		"--jsx=automatic",
		"--sourcemap=inline",
		"--sources-content=true",
		"--outfile=" + outfile,
	}
	for _, dep := range external {
		args = append(args, "--external:"+dep)
	}
	return args
}
