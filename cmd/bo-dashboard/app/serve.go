package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/hemobank/bo-dashboard/internal/api"
	"github.com/hemobank/bo-dashboard/internal/broadcast"
	"github.com/hemobank/bo-dashboard/internal/cache"
	"github.com/hemobank/bo-dashboard/internal/config"
	"github.com/hemobank/bo-dashboard/internal/dashboard"
	"github.com/hemobank/bo-dashboard/internal/preference"
	"github.com/hemobank/bo-dashboard/internal/telemetry"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the dashboard refresh server",
	Long: `Start the dashboard refresh server.

The server requires a configuration file (--config) that specifies:
- The views to keep fresh and the backend endpoint of each
- Polling cadence, minimum fetch interval and cache freshness
- Where the shared auto-refresh preference is stored

Changes made to the preference file by other processes (for example
"bo-dashboard pref set false") reach every running server.`,
	RunE: runServe,
}

const (
	defaultGracefulTimeout = 30 * time.Second
	serverRequestTimeout   = 10 * time.Second
	serverReadTimeout      = 10 * time.Second
	serverWriteTimeout     = 15 * time.Second // Must be > serverRequestTimeout to let middleware handle timeout
	serverIdleTimeout      = 60 * time.Second

	tracerName = "github.com/hemobank/bo-dashboard"
)

func init() {
	serveCmd.Flags().String("address", ":8080", "Address to listen on")
	serveCmd.Flags().String("config", "", "Path to configuration file (YAML format, required)")

	if err := viper.BindPFlag("address", serveCmd.Flags().Lookup("address")); err != nil {
		slog.Error("Failed to bind address flag", "error", err)
	}
	if err := viper.BindPFlag("config", serveCmd.Flags().Lookup("config")); err != nil {
		slog.Error("Failed to bind config flag", "error", err)
	}

	if err := serveCmd.MarkFlagRequired("config"); err != nil {
		slog.Error("Failed to mark config flag as required", "error", err)
	}
}

// components is the wired application behind the serve command
type components struct {
	telemetry *telemetry.Telemetry
	store     preference.Store
	board     *dashboard.Board
	handler   http.Handler

	// prefPath is the preference file observed for external changes
	prefPath string
}

// buildComponents wires telemetry, the preference store, the views and the
// HTTP handler from cfg. The caller shuts down the returned telemetry.
func buildComponents(ctx context.Context, cfg *config.Config) (*components, error) {
	tel, err := telemetry.New(ctx, telemetry.WithTelemetryConfig(cfg.Telemetry))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	cleanup := func() {
		if shutdownErr := tel.Shutdown(context.Background()); shutdownErr != nil {
			slog.Error("Failed to shutdown telemetry", "error", shutdownErr)
		}
	}

	refreshMetrics, err := telemetry.NewRefreshMetrics(tel.MeterProvider())
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("failed to create refresh metrics: %w", err)
	}

	httpMetrics, err := telemetry.MetricsMiddleware(tel.MeterProvider())
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("failed to create HTTP metrics: %w", err)
	}

	prefPath := cfg.Preference.Path
	if prefPath == "" {
		prefPath = preference.DefaultPath()
	}
	store := preference.NewStore(ctx, preference.NewFilePersistence(prefPath), broadcast.New())

	responseCache := cache.New(cache.WithFreshness(cfg.Freshness()))

	views, err := dashboard.BuildViews(cfg)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("failed to build views: %w", err)
	}

	board, err := dashboard.New(store, responseCache, views,
		dashboard.WithMetrics(refreshMetrics),
		dashboard.WithTracer(tel.Tracer(tracerName)),
	)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("failed to create dashboard: %w", err)
	}

	router := api.NewServer(board,
		api.WithMiddlewares(
			middleware.RequestID,
			middleware.RealIP,
			middleware.Recoverer,
			telemetry.TracingMiddleware(tel.TracerProvider()),
			httpMetrics,
			middleware.Timeout(serverRequestTimeout),
			api.LoggingMiddleware,
		),
		api.WithMetricsHandler(tel.MetricsHandler()),
	)

	return &components{
		telemetry: tel,
		store:     store,
		board:     board,
		handler:   router,
		prefPath:  prefPath,
	}, nil
}

func runServe(_ *cobra.Command, _ []string) error {
	address := viper.GetString("address")
	configPath := viper.GetString("config")

	cfg, err := config.LoadConfig(config.WithConfigPath(configPath))
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	slog.Info("Loaded configuration",
		"path", configPath,
		"view_count", len(cfg.Views))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	comps, err := buildComponents(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultGracefulTimeout)
		defer cancel()
		if err := comps.telemetry.Shutdown(shutdownCtx); err != nil {
			slog.Error("Failed to shutdown telemetry", "error", err)
		}
	}()

	server := &http.Server{
		Addr:         address,
		Handler:      comps.handler,
		ReadTimeout:  serverReadTimeout,
		WriteTimeout: serverWriteTimeout,
		IdleTimeout:  serverIdleTimeout,
	}

	return serve(ctx, comps, server, cfg.WatchPreference())
}

// serve runs the HTTP server, the board and the preference watcher until ctx
// is cancelled or one of them fails, then shuts the others down
func serve(ctx context.Context, comps *components, server *http.Server, watch bool) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return comps.board.Start(gctx)
	})

	if watch {
		watcher := preference.NewWatcher(comps.prefPath, comps.store)
		g.Go(func() error {
			return watcher.Run(gctx)
		})
	}

	g.Go(func() error {
		slog.Info("Server listening", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultGracefulTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server forced to shutdown", "error", err)
			return err
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	slog.Info("Server shutdown complete")
	return nil
}
