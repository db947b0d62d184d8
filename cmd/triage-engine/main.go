package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/triagestack/triage-engine/internal/activity"
	"github.com/triagestack/triage-engine/internal/api"
	"github.com/triagestack/triage-engine/internal/archive"
	"github.com/triagestack/triage-engine/internal/config"
	"github.com/triagestack/triage-engine/internal/engine"
	"github.com/triagestack/triage-engine/internal/metrics"
	"github.com/triagestack/triage-engine/internal/pricing"
	"github.com/triagestack/triage-engine/internal/services"
	"github.com/triagestack/triage-engine/internal/store"
	"github.com/triagestack/triage-engine/internal/tiers"
	"github.com/triagestack/triage-engine/internal/utils"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("path", configPath), slog.Any("error", err))
		os.Exit(1)
	}

	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON)
	logger.Info("starting triage-engine", slog.String("address", cfg.Server.Address))

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("failed to register metrics", slog.Any("error", err))
		os.Exit(1)
	}

	book, err := pricing.LoadBook(cfg.Pricing.Path, logger)
	if err != nil {
		logger.Error("failed to load price book", slog.String("path", cfg.Pricing.Path), slog.Any("error", err))
		os.Exit(1)
	}

	var sessions store.Store
	if cfg.Storage.Driver == "memory" {
		sessions = store.NewMemoryStore()
	} else {
		gormStore, err := store.NewGormStore(cfg.Storage.Driver, cfg.Storage.DSN)
		if err != nil {
			logger.Error("failed to open session store",
				slog.String("driver", cfg.Storage.Driver), slog.Any("error", err))
			os.Exit(1)
		}
		sessions = gormStore
	}
	defer sessions.Close()

	threshold := cfg.Tiers.Threshold
	if threshold <= 0 {
		threshold = engine.DefaultThreshold
	}

	toolClient := tiers.NewToolClient(cfg.Tiers.Tool.BaseURL, cfg.Tiers.Tool.Timeout)
	edgeClient := tiers.NewEdgeClient(cfg.Tiers.Edge.BaseURL, cfg.Tiers.Edge.Model, cfg.Tiers.Edge.Timeout)
	cloudClient := tiers.NewCloudClient(tiers.CloudConfig{
		APIKey:    cfg.Tiers.Cloud.APIKey,
		Endpoint:  cfg.Tiers.Cloud.Endpoint,
		Model:     cfg.Tiers.Cloud.Model,
		MaxTokens: cfg.Tiers.Cloud.MaxTokens,
		Timeout:   cfg.Tiers.Cloud.Timeout,
		Threshold: threshold,
	})

	var sinks []activity.Sink
	var kafkaSink *activity.KafkaSink
	if cfg.Activity.Kafka.Enabled && len(cfg.Activity.Kafka.Brokers) > 0 {
		kafkaSink = activity.NewKafkaSink(activity.KafkaConfig{
			Brokers:      cfg.Activity.Kafka.Brokers,
			Topic:        cfg.Activity.Kafka.Topic,
			WriteTimeout: cfg.Activity.Kafka.WriteTimeout,
		}, logger)
		sinks = append(sinks, kafkaSink)
		logger.Info("activity stream enabled", slog.String("topic", cfg.Activity.Kafka.Topic))
	}
	if kafkaSink != nil {
		defer kafkaSink.Close()
	}

	var archiver archive.Archiver
	if cfg.Archive.S3.Enabled {
		s3Archiver, err := archive.NewS3Archiver(context.Background(), cfg.Archive.S3.Bucket, cfg.Archive.S3.Prefix)
		if err != nil {
			logger.Warn("ticket archive unavailable", slog.Any("error", err))
		} else {
			archiver = s3Archiver
			logger.Info("ticket archive enabled", slog.String("bucket", cfg.Archive.S3.Bucket))
		}
	}

	eng := engine.New(logger, toolClient, edgeClient, cloudClient, book, sessions, engine.Config{
		Threshold:   cfg.Tiers.Threshold,
		ToolEnabled: cfg.Tiers.Tool.Enabled,
	}, sinks...)

	triageService := services.NewTriageService(logger, eng, sessions, edgeClient, archiver)

	handler := api.NewHandler(logger, triageService,
		[]tiers.Client{toolClient, edgeClient, cloudClient}, cfg.Server.HealthCacheTTL)
	server, err := api.NewServer(cfg.Server, handler.Router())
	if err != nil {
		logger.Error("failed to create HTTP server", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var metricsServer *http.Server
	if cfg.Server.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         cfg.Server.MetricsAddress,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 15 * time.Second,
		}
		go func() {
			logger.Info("metrics server listening", slog.String("address", cfg.Server.MetricsAddress))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server exited", slog.Any("error", err))
				stop()
			}
		}()
	}

	go func() {
		if serveErr := server.Start(); serveErr != nil {
			logger.Error("HTTP server exited", slog.Any("error", serveErr))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer cancel()
	server.Shutdown(shutdownCtx)

	if metricsServer != nil {
		metricsCtx, cancelMetrics := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(metricsCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server shutdown", slog.Any("error", err))
		}
		cancelMetrics()
	}

	// Give remaining goroutines time to finish logging
	time.Sleep(100 * time.Millisecond)
	logger.Info("triage-engine stopped")
}
