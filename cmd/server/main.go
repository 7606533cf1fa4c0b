package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/copyleftdev/evogen/internal/config"
	apperrors "github.com/copyleftdev/evogen/internal/errors"
	"github.com/copyleftdev/evogen/internal/logging"
	"github.com/copyleftdev/evogen/internal/monitoring"
	"github.com/copyleftdev/evogen/internal/optimization"
	"github.com/copyleftdev/evogen/internal/server"
	"github.com/copyleftdev/evogen/internal/store"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Use standard logger as fallback if config loading fails
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize base logger
	logger, err := logging.NewLogger(&logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	// Create a service logger with additional fields
	serviceLogger := logger.WithFields(map[string]interface{}{
		"service": "evogen",
		"version": config.GetEnv("SERVICE_VERSION", "dev"),
		"env":     cfg.Environment,
	})

	// Engines log through zap, bridged into the service logger
	engineLogger := logging.NewZapLogger(serviceLogger).Named("engine")
	defer func() { _ = engineLogger.Sync() }()

	sinks := monitoring.Multi{monitoring.NewLog(engineLogger)}
	registry := prometheus.NewRegistry()
	if cfg.Metrics.Enabled {
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		metrics, err := monitoring.NewPrometheus(registry, cfg.Metrics.Namespace)
		if err != nil {
			serviceLogger.Fatal("Failed to register metrics", map[string]interface{}{"error": err.Error()})
		}
		sinks = append(sinks, metrics)
	}
	var sink optimization.Sink = sinks

	history, err := store.New(context.Background(), cfg.Store.Backend, cfg.Store.Path)
	if err != nil {
		serviceLogger.Fatal("Failed to open run history", map[string]interface{}{"error": err.Error()})
	}
	defer func() {
		if err := history.Close(); err != nil {
			serviceLogger.Error("Failed to close run history", map[string]interface{}{"error": err.Error()})
		}
	}()

	// Create router
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logging.Middleware(serviceLogger))
	r.Use(apperrors.RecoveryMiddleware(serviceLogger))
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		logging.FromContext(r.Context()).Debug("Health check")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	if cfg.Metrics.Enabled {
		r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}

	srv := server.NewServer(cfg, serviceLogger,
		server.WithEngineLogger(engineLogger),
		server.WithSink(sink),
		server.WithStore(history))
	srv.RegisterRoutes(r)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:      r,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	go func() {
		serviceLogger.Info("Starting server", map[string]interface{}{
			"address": httpServer.Addr,
		})

		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serviceLogger.Fatal("Failed to start server", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	serviceLogger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		serviceLogger.Error("Server forced to shutdown", map[string]interface{}{"error": err.Error()})
	}

	// cancels every run and waits until their engines have returned
	if err := srv.Close(); err != nil {
		serviceLogger.Error("error closing server resources", map[string]interface{}{"error": err.Error()})
	}

	serviceLogger.Info("server exited properly")
}
