package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jwebster45206/novel-engine/internal/config"
	"github.com/jwebster45206/novel-engine/internal/handlers"
	"github.com/jwebster45206/novel-engine/internal/logger"
	"github.com/jwebster45206/novel-engine/internal/middleware"
	"github.com/jwebster45206/novel-engine/internal/playthrough"
	"github.com/jwebster45206/novel-engine/internal/services"
	"github.com/jwebster45206/novel-engine/internal/services/events"
	backend "github.com/jwebster45206/novel-engine/internal/storage"
	"github.com/jwebster45206/novel-engine/pkg/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	log := logger.Setup(cfg)

	log.Info("Starting Novel Engine API",
		"port", cfg.Port,
		"environment", cfg.Environment,
		"storage_backend", cfg.StorageBackend,
		"generator_url", cfg.GeneratorURL)

	store, notifier, err := openStorage(cfg, log)
	if err != nil {
		log.Error("Failed to open storage", "error", err)
		os.Exit(1)
	}
	log.Info("Storage connection established successfully")

	generator := services.NewHTTPGenerator(cfg.GeneratorURL, cfg.GeneratorAPIKey, cfg.GeneratorTimeout, log)
	newOrchestrator := func(l *slog.Logger) *playthrough.Orchestrator {
		opts := []playthrough.Option{playthrough.WithHistoryLimit(cfg.PromptHistoryLimit)}
		if notifier != nil {
			opts = append(opts, playthrough.WithNotifier(notifier))
		}
		return playthrough.New(store, generator, l, opts...)
	}

	mux := http.NewServeMux()
	mux.Handle("GET /health", handlers.NewHealthHandler(store, log))
	handlers.NewProjectHandler(store, log).Register(mux)
	handlers.NewPlaythroughHandler(store, newOrchestrator, log).Register(mux)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      middleware.Logger(log)(mux),
		ReadTimeout:  15 * time.Second,
		// Turns wait on the generation backend, so the write timeout follows it.
		WriteTimeout: cfg.GeneratorTimeout*2 + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("Server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Server is shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
	}
	if err := store.Close(); err != nil {
		log.Error("Error closing storage connection", "error", err)
	}

	log.Info("Server exited")
}

// openStorage connects the configured backend. Only Redis carries an event
// notifier; the other backends return a nil one.
func openStorage(cfg *config.Config, log *slog.Logger) (storage.Storage, playthrough.Notifier, error) {
	switch cfg.StorageBackend {
	case config.BackendSQLite:
		s, err := backend.OpenSQLite(cfg.SQLitePath, log)
		return s, nil, err
	case config.BackendMemory:
		log.Warn("Using in-memory storage; data is lost on exit")
		return storage.NewMockStorage(), nil, nil
	default:
		s, err := backend.NewRedisStorage(cfg.RedisURL, log)
		if err != nil {
			return nil, nil, err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if err := s.WaitForConnection(ctx); err != nil {
			_ = s.Close()
			return nil, nil, err
		}
		return s, events.NewBroadcaster(s.Client(), log), nil
	}
}
