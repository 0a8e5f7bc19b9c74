// Package main is the entry point for the Viewfinder server. It loads
// configuration, connects MariaDB and Redis, runs migrations, starts the
// background tagging worker, and serves the HTTP API.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/mattgren/viewfinder/internal/app"
	"github.com/mattgren/viewfinder/internal/config"
	"github.com/mattgren/viewfinder/internal/database"
	"github.com/mattgren/viewfinder/internal/tagging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	setupLogging(cfg)

	slog.Info("starting Viewfinder",
		slog.String("env", cfg.Env),
		slog.Int("port", cfg.Port),
	)

	// --- MariaDB ---
	db, err := database.NewMariaDB(cfg.Database)
	if err != nil {
		slog.Error("failed to connect to MariaDB", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	if err := database.RunMigrations(db, "db/migrations"); err != nil {
		slog.Error("failed to run migrations", slog.Any("error", err))
		os.Exit(1)
	}
	slog.Info("connected to MariaDB")

	// --- Redis (sessions + task queue) ---
	rdb, err := database.NewRedis(cfg.Redis)
	if err != nil {
		slog.Error("failed to connect to Redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer rdb.Close()
	slog.Info("connected to Redis")

	redisOpt, err := tagging.RedisOpt(cfg.Redis.URL)
	if err != nil {
		slog.Error("failed to parse Redis URL for task queue", slog.Any("error", err))
		os.Exit(1)
	}
	queue := asynq.NewClient(redisOpt)
	defer queue.Close()

	// --- Application ---
	application := app.New(cfg, db, rdb, queue)
	services := application.RegisterRoutes()

	// --- Background tagging worker ---
	// Runs in-process with its own goroutine pool, sharing the DB pool.
	handler := tagging.NewHandler(services.AI, services.Tags)
	worker, mux := tagging.NewServer(redisOpt, cfg.Worker.Concurrency, handler)
	if err := worker.Start(mux); err != nil {
		slog.Error("failed to start tagging worker", slog.Any("error", err))
		os.Exit(1)
	}
	slog.Info("tagging worker started", slog.Int("concurrency", cfg.Worker.Concurrency))

	// --- Graceful Shutdown ---
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit

		slog.Info("shutting down...")

		// Stop pulling new tasks, let in-flight ones finish.
		worker.Shutdown()

		// Give in-flight requests 10 seconds to complete.
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := application.Echo.Shutdown(ctx); err != nil {
			slog.Error("server forced shutdown", slog.Any("error", err))
		}
	}()

	if err := application.Start(); err != nil {
		// Echo returns http.ErrServerClosed on graceful shutdown.
		slog.Info("server stopped", slog.Any("reason", err))
	}
}

// setupLogging configures the global slog logger: text for development
// readability, JSON for production aggregation.
func setupLogging(cfg *config.Config) {
	var handler slog.Handler

	if cfg.IsDevelopment() {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})
	} else {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}

	slog.SetDefault(slog.New(handler))
}
