package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mr1hm/spot-safety/internal/api"
	"github.com/mr1hm/spot-safety/internal/broadcast"
	"github.com/mr1hm/spot-safety/internal/config"
	"github.com/mr1hm/spot-safety/internal/logging"
	"github.com/mr1hm/spot-safety/internal/metrics"
	"github.com/mr1hm/spot-safety/internal/notify"
	"github.com/mr1hm/spot-safety/internal/repository"
	"github.com/mr1hm/spot-safety/internal/safety"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatalf("Fatal while loading config: %v", err)
	}
	logging.Setup(cfg.Logging.Level)

	slog.Info("Server starting", "host", cfg.Server.Host, "port", cfg.Server.Port, "store", cfg.Store.Backend)

	store, err := openStore(cfg.Store)
	if err != nil {
		logging.Fatalf("Failed to initialize store: %v", err)
	}
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.New(prometheus.DefaultRegisterer)

	// Live subscribers (SSE) plus the optional webhook
	broadcaster := broadcast.New(cfg.Notify.BufferSize)
	sinks := []notify.Sink{notify.NewBroadcastSink(broadcaster)}
	if cfg.Notify.WebhookURL != "" {
		sinks = append(sinks, notify.NewWebhookSink(cfg.Notify.WebhookURL, cfg.Notify.WebhookTimeout))
		slog.Info("webhook notifications enabled", "url", cfg.Notify.WebhookURL)
	}
	dispatcher := notify.NewDispatcher(cfg.Notify.Workers, cfg.Notify.BufferSize, m, sinks...)
	dispatcher.Start(ctx)

	svc := safety.NewService(store, store, store,
		safety.WithThresholds(safety.Thresholds{
			Confirm: cfg.Thresholds.Confirm,
			Delete:  cfg.Thresholds.Delete,
			Quorum:  cfg.Thresholds.Quorum,
		}),
		safety.WithNotifier(dispatcher),
		safety.WithMetrics(m),
	)

	// Gin router
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.Server.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", api.ActorHeader},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false, // Set to false when using wildcard origins
	}))
	router.Use(api.RateLimitMiddleware(cfg.Server.RateLimitRPS))

	handler := api.NewHandler(svc, store, broadcaster, prometheus.DefaultGatherer)
	handler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: router,
	}

	go func() {
		slog.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down...")

	broadcaster.Close() // Ends open event streams so Shutdown does not wait on them

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	// Flush events from requests that finished during Shutdown.
	dispatcher.Stop()
	cancel()

	slog.Info("shutdown complete")
}

func openStore(cfg config.StoreConfig) (repository.Store, error) {
	if cfg.Backend == "memory" {
		slog.Warn("using in-memory store, data is lost on restart")
		return repository.NewMemoryStore(), nil
	}

	if dir := filepath.Dir(cfg.Path); dir != "." && cfg.Path != ":memory:" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("error creating database directory: %w", err)
		}
	}
	return repository.NewSQLiteDB(cfg.Path)
}
