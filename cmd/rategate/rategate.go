package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"rategate/internal/api"
	"rategate/internal/config"
	"rategate/internal/logger"
	"rategate/internal/models"
	"rategate/internal/observability"
	"rategate/internal/ratelimit"
	"rategate/internal/version"

	"golang.org/x/sync/errgroup"
)

var (
	configFile         = flag.String("config", "", "Path to configuration file")
	showVersion        = flag.Bool("version", false, "Print version information and exit")
	writeExampleConfig = flag.String("write-example-config", "", "Write an example configuration file to the given path and exit")
)

func main() {
	flag.Parse()

	ver := version.GetInfo()

	if *showVersion {
		fmt.Println(ver.String())
		return
	}

	if *writeExampleConfig != "" {
		if err := config.SaveExample(*writeExampleConfig); err != nil {
			slog.Error("Failed to write example configuration", "error", err)
			os.Exit(1)
		}
		fmt.Printf("Example configuration written to %s\n", *writeExampleConfig)
		return
	}

	// Load configuration
	cfg, err := config.Load(*configFile)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Initialize structured logging
	log, closer, err := logger.Setup(cfg.Logging, ver)
	if err != nil {
		slog.Error("Failed to initialize logger", "error", err)
		os.Exit(1)
	}
	if closer != nil {
		defer closer.Close()
	}
	slog.SetDefault(log)

	slog.Info("Starting rategate", "release", ver.IsRelease())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, ver); err != nil {
		slog.Error("Server stopped with error", "error", err)
		os.Exit(1)
	}

	slog.Info("Server shutdown complete")
}

// run serves the API and the metrics endpoint until ctx is cancelled or one
// of the servers fails.
func run(ctx context.Context, cfg *models.Config, ver version.Info) error {
	// Initialize observability (OpenTelemetry)
	otelProvider, err := observability.Setup(cfg.Metrics, cfg.Observability, ver)
	if err != nil {
		return fmt.Errorf("failed to initialize observability: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := otelProvider.Shutdown(shutdownCtx); err != nil {
			slog.Error("Failed to shutdown observability", "error", err)
		}
	}()

	limiter, err := newLimiter(cfg, otelProvider)
	if err != nil {
		return err
	}

	router := newRouter(cfg, limiter, ver)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	var metricsServer *observability.MetricsServer
	if cfg.Metrics.Enabled {
		metricsServer = observability.NewMetricsServer(cfg.Metrics.Port, cfg.Metrics.Path, otelProvider)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("Starting server", "addr", server.Addr, "tls", cfg.Server.TLSEnabled)

		var err error
		if cfg.Server.TLSEnabled {
			err = server.ListenAndServeTLS(cfg.Server.TLSCertFile, cfg.Server.TLSKeyFile)
		} else {
			err = server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	if metricsServer != nil {
		g.Go(func() error {
			if err := metricsServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server failed: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if metricsServer != nil {
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				slog.Error("Metrics server forced to shutdown", "error", err)
			}
		}
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server forced to shutdown", "error", err)
		}
		return nil
	})

	return g.Wait()
}

// newLimiter builds the limiter selected by the configuration and wraps it
// with instrumentation when metrics are enabled.
func newLimiter(cfg *models.Config, provider *observability.Provider) (ratelimit.Limiter[string], error) {
	var limiter ratelimit.Limiter[string]
	if cfg.Limits.Shards > 0 {
		limiter = ratelimit.NewShardedLimiter(
			ratelimit.WithShards[string](cfg.Limits.Shards),
			ratelimit.WithHasher(ratelimit.StringHasher),
		)
	} else {
		limiter = ratelimit.NewMemoryLimiter[string]()
	}
	slog.Info("Limiter initialized", "shards", cfg.Limits.Shards)

	if !cfg.Metrics.Enabled {
		return limiter, nil
	}

	instrumented, err := observability.NewInstrumentedLimiter(limiter, provider.MeterProvider())
	if err != nil {
		return nil, fmt.Errorf("failed to create instrumented limiter: %w", err)
	}
	return instrumented, nil
}

// newRouter wires the admin API and, when enabled, the request gate.
func newRouter(cfg *models.Config, limiter ratelimit.Limiter[string], ver version.Info) http.Handler {
	handlers := api.NewHandlers(limiter, ver)

	routeOpts := []api.RouteOption{}
	if cfg.Observability.Tracing.Enabled {
		routeOpts = append(routeOpts, api.WithOTelMiddleware(cfg.Observability.ServiceName))
	}

	if cfg.Limits.Enabled {
		limits := cfg.Limits
		keyFunc := ratelimit.NewKeyFunc(
			ratelimit.Policy{Name: "anonymous", Capacity: limits.Anonymous.Capacity, Window: limits.Anonymous.Window},
			ratelimit.Policy{Name: "authenticated", Capacity: limits.Authenticated.Capacity, Window: limits.Authenticated.Window},
			limits.APIKeyHeader,
			limits.TrustProxyHeaders,
		)
		routeOpts = append(routeOpts, api.WithRateLimiter(ratelimit.Middleware(limiter, keyFunc)))
	}

	return api.SetupRoutes(handlers, routeOpts...)
}
