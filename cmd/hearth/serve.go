package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/albertbausili/hearth/internal/config"
	"github.com/albertbausili/hearth/pkg/hearth"
	"github.com/albertbausili/hearth/pkg/session"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
)

var serveFlags struct {
	addr     string
	logLevel string
	dryRun   bool
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Start the HTTP server with the specified configuration.

Environment variables named HEARTH_SECTION_FIELD override the file, and the
flags below override both.

Examples:
  # Start with defaults on :8080
  hearth serve

  # Start with a config file and a different address
  hearth serve --config hearth.yaml --addr 127.0.0.1:9000

  # Validate config without starting the server
  hearth serve --config hearth.yaml --dry-run`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVarP(&serveFlags.addr, "addr", "a", "", "override listen address")
	serveCmd.Flags().StringVar(&serveFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	serveCmd.Flags().BoolVar(&serveFlags.dryRun, "dry-run", false, "validate config without starting the server")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadWithEnvOverrides(cfgFile)
	if err != nil {
		return err
	}
	if serveFlags.addr != "" {
		cfg.Server.Addr = serveFlags.addr
	}
	if serveFlags.logLevel != "" {
		cfg.Logging.Level = serveFlags.logLevel
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	logger := newLogger(cfg.Logging, os.Stderr)
	slog.SetDefault(logger)
	cfg.Server.Logger = logger

	if serveFlags.dryRun {
		fmt.Fprintln(cmd.OutOrStdout(), "configuration valid")
		return nil
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, cleanup, err := buildServer(ctx, cfg, logger)
	defer cleanup()
	if err != nil {
		return err
	}

	if err := srv.Start(); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	logger.Info("hearth started",
		"addr", cfg.Server.Addr,
		"tls", cfg.Server.TLS.Enabled,
		"sessions", cfg.Session.Enabled,
		"version", Version,
	)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Wait() }()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server stopped: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("hearth stopped")
	return nil
}

// buildServer wires hooks, sessions and routes from cfg. cleanup is always
// safe to call, even when an error is returned.
func buildServer(ctx context.Context, cfg *config.File, logger *slog.Logger) (*hearth.Server, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	srv := hearth.New(cfg.Server)

	// After steps run in reverse, so compression happens before the
	// metrics and access log see the body size.
	srv.Use(hearth.RequestID())
	if cfg.Tracing.Enabled {
		tp, err := newTracerProvider(ctx, cfg.Tracing)
		if err != nil {
			return nil, cleanup, fmt.Errorf("tracing: %w", err)
		}
		closers = append(closers, func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tp.Shutdown(shutdownCtx); err != nil {
				logger.Warn("tracer shutdown failed", "error", err)
			}
		})
		tc := hearth.DefaultTracingConfig()
		tc.TracerProvider = tp
		tc.Propagator = otel.GetTextMapPropagator()
		tc.SkipPaths = []string{"/health", cfg.Metrics.Path}
		srv.Use(hearth.TracingWithConfig(tc))
	}
	if cfg.AccessLog.Enabled {
		srv.Use(hearth.AccessLog(hearth.AccessLogConfig{Logger: logger, SkipPaths: cfg.AccessLog.SkipPaths}))
	}
	if cfg.Metrics.Enabled {
		srv.Use(hearth.MetricsWithConfig(hearth.MetricsConfig{SkipPaths: []string{cfg.Metrics.Path}}))
		srv.Router().GET(cfg.Metrics.Path, hearth.MetricsHandler(nil))
	}
	if cfg.CORS.Enabled {
		srv.Use(hearth.CORS(cfg.CORS.CORSConfig))
	}
	if cfg.Compress.Enabled {
		cc := hearth.DefaultCompressConfig()
		cc.Level = cfg.Compress.Level
		cc.MinSize = cfg.Compress.MinSize
		srv.Use(hearth.Compress(cc))
	}

	var manager *session.Manager
	if cfg.Session.Enabled {
		storage, err := session.NewStorage(cfg.Session.Config)
		if err != nil {
			return nil, cleanup, fmt.Errorf("session storage: %w", err)
		}
		closers = append(closers, func() { _ = storage.Close() })
		manager = session.NewManager(storage, cfg.Session.Config)

		sweeper := session.NewSweeper(manager, cfg.Session.SweepSchedule, logger)
		if err := sweeper.Start(ctx); err != nil {
			return nil, cleanup, fmt.Errorf("session sweeper: %w", err)
		}
		closers = append(closers, sweeper.Stop)
	}

	registerRoutes(srv.Router(), manager)
	return srv, cleanup, nil
}

// newLogger builds the process logger from the logging section.
func newLogger(cfg config.LoggingConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
