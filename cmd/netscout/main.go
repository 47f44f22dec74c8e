package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/kailas-cloud/netscout/internal/app"
	"github.com/kailas-cloud/netscout/internal/config"
	logpkg "github.com/kailas-cloud/netscout/internal/logger"
	"github.com/kailas-cloud/netscout/internal/metrics"
	chiTransport "github.com/kailas-cloud/netscout/internal/transport/chi"
	"github.com/kailas-cloud/netscout/internal/version"
)

func main() {
	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()

	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting netscout API server",
		zap.String("version", version.String()),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("vector_backend", cfg.Search.VectorBackend),
		zap.Strings("redis_addrs", cfg.Database.Addrs),
	)

	metrics.RegisterPipelineMetrics()
	metrics.RegisterProviderMetrics()

	ctx := context.Background()
	deps, err := app.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to connect dependencies", zap.Error(err))
	}
	defer deps.Close()
	logger.Info("Connected to PostgreSQL and Redis")

	pipeline, err := deps.BuildPipeline()
	if err != nil {
		logger.Fatal("Failed to build search pipeline", zap.Error(err))
	}
	defer pipeline.Release()

	server := chiTransport.NewServer(pipeline.Search, pipeline.Usage, pipeline.Health, logger)
	handler := chiTransport.NewRouter(server, chiTransport.AuthConfig{
		JWTSecret: cfg.Auth.JWTSecret,
		APIKeys:   cfg.Auth.APIKeys,
	}, logger)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}
