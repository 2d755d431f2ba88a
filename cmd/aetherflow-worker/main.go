package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"aetherflow/internal/cli"
	"aetherflow/internal/log"
	"aetherflow/internal/services"
	"aetherflow/internal/telemetry"
	"aetherflow/internal/worker"
)

// metricsAddr serves /metrics for the worker process.
const metricsAddr = ":9091"

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	cli.LoadEnvFile()

	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"), log.ComponentWorker)
	logger.Info("Starting aetherflow-worker")

	cfg := cli.LoadAndValidateConfig(logger)
	if !cfg.AMQPEnabled() {
		logger.Error("AMQP_URL is required for the worker")
		os.Exit(1)
	}

	metrics := telemetry.New()
	be := cli.InitBackend(context.Background(), logger, cfg)
	defer func() {
		if err := be.Cleanup(); err != nil {
			logger.Error("Failed to close backend", log.FieldError, err.Error())
		}
	}()

	calc := cli.NewConnectEarthClient(cfg, metrics, logger)
	metricsService := services.NewMetricsService(be.Store, calc, be.Exporter, services.MetricsConfig{
		MonthsBack: cfg.MonthsBack,
	}, metrics, metrics, logger.WithComponent(log.ComponentReload))

	amqpClient := cli.InitAMQP(cfg, metrics, logger)
	if amqpClient == nil {
		os.Exit(1)
	}
	defer amqpClient.Close()

	reloadWorker := worker.NewReloadWorker(metricsService, be.Store, cfg.ReloadBatchSize,
		logger.WithComponent(log.ComponentWorker))

	// The poller catches owners whose messages were lost or never published.
	processor := services.NewReloadProcessor(be.Store, metricsService, services.ReloadProcessorConfig{
		PollInterval: cfg.ReloadInterval,
		BatchSize:    cfg.ReloadBatchSize,
		Concurrency:  cfg.ReloadConcurrency,
	}, logger.WithComponent(log.ComponentReload))

	metricsSrv := &http.Server{
		Addr:              metricsAddr,
		Handler:           metrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(shutdownCtx context.Context) {
		if err := processor.Stop(shutdownCtx); err != nil {
			logger.Error("Reload processor shutdown error", log.FieldError, err.Error())
		}
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Metrics server shutdown error", log.FieldError, err.Error())
		}
	})

	if cfg.ReloadOnStartup {
		logger.Info("Performing startup reload check...")
		if err := reloadWorker.StartupCheck(ctx); err != nil {
			// Don't exit - continue with normal operation
			logger.Error("Failed startup reload check", log.FieldError, err.Error())
		}
	}

	if err := processor.Start(ctx); err != nil {
		logger.Error("Failed to start reload processor", log.FieldError, err.Error())
		os.Exit(1)
	}

	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server error", log.FieldError, err.Error())
		}
	}()

	consumeErr := make(chan error, 1)
	go func() {
		consumeErr <- amqpClient.ConsumeReload(ctx, cfg.ReloadConcurrency, reloadWorker.HandleReloadMessage)
	}()

	select {
	case err := <-consumeErr:
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Message consumption failed", log.FieldError, err.Error())
			os.Exit(1)
		}
	case <-ctx.Done():
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker shutdown complete")
}
