package cmd

import (
	"context"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/conneroisu/tsxbridge/internal/bridge"
	"github.com/conneroisu/tsxbridge/internal/build"
	"github.com/conneroisu/tsxbridge/internal/config"
	"github.com/conneroisu/tsxbridge/internal/logging"
	"github.com/conneroisu/tsxbridge/internal/registry"
)

// app is the object graph shared by every command: configuration, logger,
// registry, bundler and the handlers composing them.
type app struct {
	cfg      *config.Config
	logger   logging.Logger
	registry *registry.ComponentRegistry
	resolver *build.Resolver
	bundler  *build.Bundler
	handlers *bridge.Handlers
	metrics  *prometheus.Registry
}

// newApp loads the configuration and wires the components it describes.
// Log output goes to the command's stderr.
func newApp(cmd *cobra.Command) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return newAppFromConfig(cfg, cmd.ErrOrStderr())
}

func newAppFromConfig(cfg *config.Config, logOutput io.Writer) (*app, error) {
	loggerConfig := cfg.LoggerConfig()
	loggerConfig.Output = logOutput
	logger := logging.NewLogger(loggerConfig)

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := build.NewMetrics(promRegistry)

	reg := registry.NewComponentRegistry(registry.WithLogger(logger))
	for _, source := range cfg.Components.Sources {
		if err := reg.AddSource(source.Path, source.Prefix); err != nil {
			return nil, err
		}
	}

	resolver := build.NewResolver(build.ResolverOptions{
		ProjectDir:   cfg.Bundler.ProjectDir,
		Command:      cfg.Bundler.Command,
		ProbeTimeout: cfg.Bundler.ProbeTimeout,
		Logger:       logger,
	})

	bundler := build.NewBundler(resolver, build.BundlerOptions{
		Target:   cfg.Bundler.Target,
		External: cfg.Bundler.External,
		Timeout:  cfg.Bundler.Timeout,
		Logger:   logger,
		Metrics:  metrics,
	})

	handlers := bridge.NewHandlers(reg, bundler,
		bridge.WithLogger(logger),
		bridge.WithMetrics(metrics),
		bridge.WithSingleFlight(cfg.Bundler.SingleFlight),
	)

	logger.Debug(context.Background(), "application initialized",
		"sources", len(cfg.Components.Sources),
		"components", reg.Count())

	return &app{
		cfg:      cfg,
		logger:   logger,
		registry: reg,
		resolver: resolver,
		bundler:  bundler,
		handlers: handlers,
		metrics:  promRegistry,
	}, nil
}
