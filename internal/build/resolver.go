package build

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"mvdan.cc/sh/v3/shell"

	"github.com/conneroisu/tsxbridge/internal/errors"
	"github.com/conneroisu/tsxbridge/internal/logging"
)

// DefaultProbeTimeout bounds the npx functionality check.
const DefaultProbeTimeout = 30 * time.Second

// ResolverOptions configures how the bundler executable is located. The
// function fields default to the os/exec implementations and exist so tests
// can simulate different machines.
type ResolverOptions struct {
	// ProjectDir is searched for node_modules/.bin/esbuild.
	ProjectDir string
	// Command, when set, overrides discovery. It is split like a shell
	// command line, e.g. "bunx esbuild".
	Command      string
	ProbeTimeout time.Duration
	Logger       logging.Logger

	LookPath func(file string) (string, error)
	Stat     func(name string) (os.FileInfo, error)
	Probe    func(ctx context.Context, argv []string) error
	HomeDir  func() (string, error)
}

// Resolver finds the bundler executable and memoizes the answer until Reset.
type Resolver struct {
	opts     ResolverOptions
	logger   logging.Logger
	mutex    sync.Mutex
	resolved []string
}

// BundlerInfo describes where a bundler was (or was not) found.
type BundlerInfo struct {
	Command     []string        `json:"command,omitempty" yaml:"command,omitempty"`
	Source      string          `json:"source,omitempty" yaml:"source,omitempty"`
	Error       string          `json:"error,omitempty" yaml:"error,omitempty"`
	Diagnostics map[string]bool `json:"diagnostics" yaml:"diagnostics"`
}

// NewResolver creates a resolver with the given options.
func NewResolver(opts ResolverOptions) *Resolver {
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = DefaultProbeTimeout
	}
	if opts.LookPath == nil {
		opts.LookPath = exec.LookPath
	}
	if opts.Stat == nil {
		opts.Stat = os.Stat
	}
	if opts.Probe == nil {
		opts.Probe = probeCommand
	}
	if opts.HomeDir == nil {
		opts.HomeDir = os.UserHomeDir
	}
	if opts.ProjectDir == "" {
		opts.ProjectDir = "."
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Nop()
	}

	return &Resolver{opts: opts, logger: logger.WithComponent("resolver")}
}

// Resolve returns the argv prefix used to run the bundler. The first
// successful lookup is memoized.
func (r *Resolver) Resolve(ctx context.Context) ([]string, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.resolved != nil {
		return append([]string(nil), r.resolved...), nil
	}

	argv, source, err := r.lookup(ctx)
	if err != nil {
		return nil, err
	}

	r.logger.Info(ctx, "resolved bundler", "command", strings.Join(argv, " "), "source", source)
	r.resolved = argv
	return append([]string(nil), argv...), nil
}

// Reset forgets the memoized executable.
func (r *Resolver) Reset() {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.resolved = nil
}

// Info runs a fresh lookup and reports the outcome without failing. The memo
// is left untouched.
func (r *Resolver) Info(ctx context.Context) BundlerInfo {
	info := BundlerInfo{Diagnostics: r.diagnostics()}

	argv, source, err := r.lookup(ctx)
	if err != nil {
		info.Error = err.Error()
		return info
	}
	info.Command = argv
	info.Source = source
	return info
}

func (r *Resolver) lookup(ctx context.Context) ([]string, string, error) {
	if r.opts.Command != "" {
		argv, err := shell.Fields(r.opts.Command, os.Getenv)
		if err != nil || len(argv) == 0 {
			return nil, "", errors.NewConfigError(
				fmt.Sprintf("cannot parse bundler command %q", r.opts.Command), err)
		}
		return argv, "config", nil
	}

	if bin := r.projectBin(); r.isFile(bin) {
		return []string{bin}, "project", nil
	}

	if path, err := r.opts.LookPath("esbuild"); err == nil {
		return []string{path}, "path", nil
	}

	for _, candidate := range r.wellKnownPaths() {
		if r.isFile(candidate) {
			return []string{candidate}, "global", nil
		}
	}

	if npx, err := r.opts.LookPath("npx"); err == nil {
		argv := []string{npx, "--yes", "esbuild"}
		probeCtx, cancel := context.WithTimeout(ctx, r.opts.ProbeTimeout)
		defer cancel()

		probeErr := r.opts.Probe(probeCtx, append(append([]string(nil), argv...), "--version"))
		if probeErr == nil {
			return argv, "npx", nil
		}
		r.logger.Warn(ctx, probeErr, "npx esbuild probe failed")
	}

	diagnostics := r.diagnostics()
	return nil, "", errors.NewBundlerNotFoundError(notFoundMessage(diagnostics), diagnostics)
}

func (r *Resolver) projectBin() string {
	name := "esbuild"
	if runtime.GOOS == "windows" {
		name = "esbuild.cmd"
	}
	return filepath.Join(r.opts.ProjectDir, "node_modules", ".bin", name)
}

func (r *Resolver) wellKnownPaths() []string {
	var paths []string
	home, err := r.opts.HomeDir()

	switch runtime.GOOS {
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			paths = append(paths, filepath.Join(appData, "npm", "esbuild.cmd"))
		}
		if err == nil {
			paths = append(paths, filepath.Join(home, "AppData", "Roaming", "npm", "esbuild.cmd"))
		}
	case "darwin":
		paths = append(paths, "/opt/homebrew/bin/esbuild", "/usr/local/bin/esbuild")
		if err == nil {
			paths = append(paths, filepath.Join(home, ".npm-global", "bin", "esbuild"))
		}
	default:
		paths = append(paths, "/usr/local/bin/esbuild", "/usr/bin/esbuild")
		if err == nil {
			paths = append(paths,
				filepath.Join(home, ".npm-global", "bin", "esbuild"),
				filepath.Join(home, ".local", "bin", "esbuild"))
		}
	}
	return paths
}

func (r *Resolver) isFile(path string) bool {
	info, err := r.opts.Stat(path)
	return err == nil && !info.IsDir()
}

func (r *Resolver) onPath(file string) bool {
	_, err := r.opts.LookPath(file)
	return err == nil
}

func (r *Resolver) diagnostics() map[string]bool {
	nodeModules, err := r.opts.Stat(filepath.Join(r.opts.ProjectDir, "node_modules"))
	return map[string]bool{
		"project_bin":     r.isFile(r.projectBin()),
		"node_modules":    err == nil && nodeModules.IsDir(),
		"esbuild_on_path": r.onPath("esbuild"),
		"npm_on_path":     r.onPath("npm"),
		"npx_on_path":     r.onPath("npx"),
	}
}

func notFoundMessage(diagnostics map[string]bool) string {
	yesNo := func(ok bool) string {
		if ok {
			return "yes"
		}
		return "no"
	}

	var b strings.Builder
	b.WriteString("esbuild not found. Install it with one of:\n")
	b.WriteString("  npm install --save-dev esbuild   (project local, recommended)\n")
	b.WriteString("  npm install -g esbuild           (global)\n")
	b.WriteString("  or set bundler.command in .tsxbridge.yml\n")
	b.WriteString("Diagnostics:\n")
	fmt.Fprintf(&b, "  node_modules/.bin/esbuild present: %s\n", yesNo(diagnostics["project_bin"]))
	fmt.Fprintf(&b, "  node_modules present: %s\n", yesNo(diagnostics["node_modules"]))
	fmt.Fprintf(&b, "  esbuild on PATH: %s\n", yesNo(diagnostics["esbuild_on_path"]))
	fmt.Fprintf(&b, "  npm on PATH: %s\n", yesNo(diagnostics["npm_on_path"]))
	fmt.Fprintf(&b, "  npx on PATH: %s", yesNo(diagnostics["npx_on_path"]))
	return b.String()
}

func probeCommand(ctx context.Context, argv []string) error {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("probe timed out: %w", ctx.Err())
		}
		return fmt.Errorf("%w: %s", err, strings.TrimSpace(string(output)))
	}
	return nil
}
