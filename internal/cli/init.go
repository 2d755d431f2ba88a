// Package cli provides common initialization shared by cmd/aetherflow,
// cmd/aetherflow-worker and cmd/footprint.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"aetherflow/internal/amqp"
	"aetherflow/internal/backend"
	"aetherflow/internal/config"
	"aetherflow/internal/connectearth"
	"aetherflow/internal/log"
	"aetherflow/internal/resilience"
	"aetherflow/internal/telemetry"
)

// SetupLogger builds the process logger from LOG_LEVEL and LOG_FORMAT and
// installs it as the slog default.
func SetupLogger(level, format, component string) *log.Logger {
	logger := log.New(log.Config{
		Level:     log.ParseLevel(level),
		Format:    format,
		Component: component,
	})
	log.SetDefault(logger)
	return logger
}

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads configuration and validates it.
// Returns the config or exits the process on validation failure.
func LoadAndValidateConfig(logger *log.Logger) *config.Config {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed",
			log.FieldErrorType, log.ErrorTypeConfiguration, log.FieldError, err.Error())
		os.Exit(1)
	}
	return cfg
}

// InitBackend opens the configured store and exporter.
// Returns the backend or exits the process on failure.
func InitBackend(ctx context.Context, logger *log.Logger, cfg *config.Config) *backend.BackendResult {
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration",
			log.FieldErrorType, log.ErrorTypeConfiguration, log.FieldError, err.Error())
		os.Exit(1)
	}
	res, err := backend.NewFactory(logger.WithComponent(log.ComponentBackend)).CreateBackend(ctx, bcfg)
	if err != nil {
		logger.Error("Failed to initialize backend",
			log.FieldErrorType, log.ErrorTypeDatabase, log.FieldError, err.Error(), "backend", bcfg.Type)
		os.Exit(1)
	}
	return res
}

// NewConnectEarthClient builds the emissions client and reports its calls
// and breaker state to metrics.
func NewConnectEarthClient(cfg *config.Config, metrics *telemetry.Metrics, logger *log.Logger) *connectearth.Client {
	client := connectearth.New(connectearth.Config{
		BaseURL:    cfg.ConnectEarthBaseURL,
		APIKey:     cfg.ConnectEarthAPIKey,
		Currency:   cfg.DefaultCurrency,
		Geo:        cfg.DefaultGeo,
		Timeout:    cfg.ConnectEarthTimeout,
		MaxRetries: cfg.ConnectEarthRetries,
		Breaker:    resilience.BreakerConfig{OnStateChange: metrics.SetCircuitBreakerState},
	},
		connectearth.WithLogger(logger.WithComponent(log.ComponentConnectEarth)),
		connectearth.WithObserver(metrics),
	)
	metrics.TrackBreaker(client.Breaker())
	return client
}

// InitAMQP connects to the broker when AMQP_URL is set. A nil client means
// reload requests are left to the polling processor.
func InitAMQP(cfg *config.Config, metrics *telemetry.Metrics, logger *log.Logger) *amqp.Client {
	if !cfg.AMQPEnabled() {
		logger.Info("AMQP not configured, relying on polling for reloads")
		return nil
	}
	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, resilience.BreakerConfig{OnStateChange: metrics.SetCircuitBreakerState})
	if err != nil {
		logger.Warn("Failed to initialize AMQP client, continuing without it",
			log.FieldErrorType, log.ErrorTypeNetwork, log.FieldError, err.Error())
		return nil
	}
	metrics.TrackBreaker(client.Breaker())
	logger.Info("Initialized AMQP client", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	return client
}

// GracefulShutdown sets up signal handling for graceful shutdown.
// Returns a context that will be cancelled on shutdown signals,
// and a channel that signals when shutdown is complete.
func GracefulShutdown(logger *log.Logger, timeout time.Duration, cleanup func(ctx context.Context)) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
		defer shutdownCancel()

		if cleanup != nil {
			cleanup(shutdownCtx)
		}

		if shutdownCtx.Err() != nil {
			logger.Warn("Shutdown timeout reached")
		} else {
			logger.Info("Shutdown complete")
		}
		close(done)
	}()

	return ctx, done
}

// WaitForShutdown blocks until the context is cancelled.
func WaitForShutdown(ctx context.Context, done <-chan struct{}) {
	<-ctx.Done()
	<-done
}
