package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lasko44/geosource-sub001/internal/analyzer"
	"github.com/lasko44/geosource-sub001/internal/api"
	"github.com/lasko44/geosource-sub001/internal/config"
	"github.com/lasko44/geosource-sub001/internal/metrics"
	"github.com/lasko44/geosource-sub001/internal/notifications"
	"github.com/lasko44/geosource-sub001/internal/orchestrator"
	"github.com/lasko44/geosource-sub001/internal/platforms"
	"github.com/lasko44/geosource-sub001/internal/scheduler"
	"github.com/lasko44/geosource-sub001/internal/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
)

func main() {
	// Load environment variables from .env file if it exists
	if err := godotenv.Load(); err != nil {
		logrus.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logrus.SetLevel(logrus.InfoLevel)
	if cfg.Debug {
		logrus.SetLevel(logrus.DebugLevel)
	}
	logrus.SetFormatter(&logrus.JSONFormatter{})

	logrus.Info("Starting citation checker")

	blobStore, err := newBlobStore(cfg)
	if err != nil {
		logrus.Fatalf("Failed to initialize storage: %v", err)
	}
	repo := storage.NewRepository(blobStore)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	recorder := metrics.NewCollector(registry)

	adapters := platforms.BuildRegistry(cfg, analyzer.New(cfg.TextMentionThreshold))
	for _, p := range adapters.Platforms() {
		adapter, _ := adapters.Get(p)
		if !adapter.IsEnabled() {
			logrus.Warnf("Platform %s is enabled but its credentials are missing", p)
		}
	}
	logrus.Infof("Platforms ready: %v", adapters.Enabled())

	checks := orchestrator.NewService(repo, adapters, orchestrator.Options{
		WorkerPoolSize:        cfg.WorkerPoolSize,
		PlatformConcurrency:   cfg.PlatformConcurrency,
		PlatformRatePerMinute: cfg.PlatformRatePerMinute,
		Secrets:               cfg.Secrets(),
		Metrics:               recorder,
	})

	notificationService := notifications.NewService(cfg, repo, recorder)
	if len(notificationService.Channels()) == 0 {
		logrus.Warn("No notification channels configured, alerts will only be available through the API")
	}

	schedulerService := scheduler.NewService(cfg, repo, checks, notificationService, nil)
	if err := schedulerService.Start(); err != nil {
		logrus.Fatalf("Failed to start scheduler: %v", err)
	}
	defer schedulerService.Stop()

	apiServer := api.NewServer(checks, repo, metrics.Handler(registry))
	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      apiServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logrus.Infof("HTTP server starting on port %s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("HTTP server failed: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logrus.Errorf("Server forced to shutdown: %v", err)
	}
	apiServer.Wait()

	logrus.Info("Server exited")
}

func newBlobStore(cfg *config.Config) (storage.BlobStore, error) {
	if cfg.StorageAccount == "" {
		logrus.Warn("AZURE_STORAGE_ACCOUNT is not set, using in-memory storage")
		return storage.NewMemoryStorage(), nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return storage.NewAzureStorage(ctx, cfg.StorageAccount, cfg.StorageContainer)
}
