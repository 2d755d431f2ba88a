package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"aetherflow/internal/cache"
	"aetherflow/internal/cli"
	apphttp "aetherflow/internal/http"
	"aetherflow/internal/log"
	"aetherflow/internal/services"
	"aetherflow/internal/telemetry"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	cli.LoadEnvFile()

	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"), log.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger)

	metrics := telemetry.New()
	be := cli.InitBackend(context.Background(), logger, cfg)
	defer func() {
		if err := be.Cleanup(); err != nil {
			logger.Error("Failed to close backend", log.FieldError, err.Error())
		}
	}()

	calc := cli.NewConnectEarthClient(cfg, metrics, logger)

	// A nil interface, not a typed nil, keeps publishing disabled.
	var publisher services.ReloadPublisher
	amqpClient := cli.InitAMQP(cfg, metrics, logger)
	if amqpClient != nil {
		publisher = amqpClient
		defer amqpClient.Close()
	}

	txService := services.NewTransactionService(be.Store, calc, publisher, metrics,
		logger.WithComponent(log.ComponentTransaction))
	metricsService := services.NewMetricsService(be.Store, calc, be.Exporter, services.MetricsConfig{
		MonthsBack: cfg.MonthsBack,
	}, metrics, metrics, logger.WithComponent(log.ComponentReload))
	dietService := services.NewDietService(be.Store, logger.WithComponent(log.ComponentDiet))

	caches := cache.NewManager(logger.WithComponent(log.ComponentCache))
	for _, c := range metricsService.Caches() {
		caches.Register(c)
	}
	caches.StartCleanup(time.Minute)
	defer caches.Stop()

	// Without a broker nobody consumes reload messages, so the server polls
	// dirty owners itself.
	var processor *services.ReloadProcessor
	if amqpClient == nil {
		processor = services.NewReloadProcessor(be.Store, metricsService, services.ReloadProcessorConfig{
			PollInterval: cfg.ReloadInterval,
			BatchSize:    cfg.ReloadBatchSize,
			Concurrency:  cfg.ReloadConcurrency,
		}, logger.WithComponent(log.ComponentReload))
		if err := processor.Start(context.Background()); err != nil {
			logger.Error("Failed to start reload processor", log.FieldError, err.Error())
			os.Exit(1)
		}
	}

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Transactions: txService,
		Metrics:      metricsService,
		Diets:        dietService,
		Ready:        be.Store,
		Telemetry:    metrics,
		Logger:       logger.WithComponent(log.ComponentHTTP),
	}, apphttp.Options{
		RequestsPerMinute: cfg.RateLimitRPM,
		TrustedProxies:    cfg.TrustedProxies,
	})

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(shutdownCtx context.Context) {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err.Error())
		}
		if processor != nil {
			if err := processor.Stop(shutdownCtx); err != nil {
				logger.Error("Reload processor shutdown error", log.FieldError, err.Error())
			}
		}
	})

	logger.Info("Starting aetherflow server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"amqp_enabled", amqpClient != nil,
		"sheets_enabled", be.Exporter != nil)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err.Error(), "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
