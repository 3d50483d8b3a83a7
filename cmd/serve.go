package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/tsxbridge/internal/server"
	"github.com/conneroisu/tsxbridge/internal/watcher"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"s"},
	Short:   "Start the bundle server with hot reload",
	Long: `Start the HTTP server that compiles and serves component bundles.

Routes (under server.api_prefix, default /api):
  GET    /bundles                 list components
  GET    /bundles/{name}.js       compiled ES module
  GET    /bundles/{name}/metadata component metadata and bundle hash
  DELETE /cache[/{name}]          drop cached bundles
  POST   /refresh                 rescan component sources
  GET    /errors                  current build failures

Plus /health, /metrics, the /ws live-reload socket and the loader scripts under
server.static_prefix.

Examples:
  tsxbridge serve                  # Serve on localhost:8080
  tsxbridge serve -p 3001 --open   # Custom port, open the bundle list
  tsxbridge serve --watch=false    # Disable hot reload`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntP("port", "p", 8080, "Port to serve on")
	serveCmd.Flags().String("host", "localhost", "Host to bind to")
	serveCmd.Flags().Bool("open", false, "Open the bundle list in a browser")
	serveCmd.Flags().BoolP("watch", "w", true, "Rebuild and notify browsers when component files change")
	AddFlagValidation(serveCmd, "port", ValidatePort)

	viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	viper.BindPFlag("server.open", serveCmd.Flags().Lookup("open"))
	viper.BindPFlag("development.hot_reload", serveCmd.Flags().Lookup("watch"))
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := []server.Option{
		server.WithLogger(a.logger),
		server.WithGatherer(a.metrics),
	}
	if a.cfg.Development.HotReload {
		fw, err := watcher.NewFileWatcher(a.cfg.Development.Debounce, a.logger)
		if err != nil {
			return fmt.Errorf("failed to create file watcher: %w", err)
		}
		opts = append(opts, server.WithWatcher(fw))
	}

	srv := server.New(a.cfg, a.registry, a.handlers, opts...)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Error(shutdownCtx, err, "error during server shutdown")
		}
	}()

	fmt.Fprintf(cmd.OutOrStdout(), "Serving %d components at http://%s%s/bundles\n",
		a.registry.Count(), a.cfg.Addr(), a.cfg.Server.APIPrefix)

	return srv.Start(ctx)
}
