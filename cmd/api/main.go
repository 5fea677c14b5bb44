// Package main is the entry point for the billgate API server.
//
// It loads configuration (resolving secrets from SSM outside local mode),
// connects the database pool, wires the payment-notification pipeline
// (credential store, origin validator, confirmation client, billing ledger,
// email emitter, metrics), and serves HTTP with graceful shutdown on SIGINT
// and SIGTERM.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"billgate/internal/api/handlers"
	"billgate/internal/config"
	"billgate/internal/core"
	"billgate/internal/db"
	"billgate/internal/gateway"
	"billgate/internal/metrics"
	"billgate/internal/notify"
	"billgate/internal/types"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so that main() can cleanly exit on
// error.
func run() error {
	region := os.Getenv("AWS_REGION")
	if region == "" {
		region = "af-south-1"
	}

	// SSM resolution is bypassed for APP_ENV=local inside the loader, so the
	// provider is safe to construct unconditionally.
	cfg, err := config.LoadConfig(config.NewSSMProvider(region))
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("billgate API starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"port", cfg.Server.Port,
	)

	ctx := context.Background()

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting database pool: %w", err)
	}
	defer pool.Close()

	cipher, err := db.NewCipher(cfg.Gateway.CredentialKey.Unmask())
	if err != nil {
		return fmt.Errorf("initializing credential cipher: %w", err)
	}

	tolerance, err := decimal.NewFromString(cfg.Gateway.AmountTolerance)
	if err != nil {
		return fmt.Errorf("parsing amount tolerance %q: %w", cfg.Gateway.AmountTolerance, err)
	}

	// Fallback credentials for single-merchant deployments; per-tenant rows
	// in merchant_credentials take precedence.
	fallback := types.MerchantCredentials{
		MerchantID:  cfg.Gateway.MerchantID,
		MerchantKey: cfg.Gateway.MerchantKey,
		Passphrase:  cfg.Gateway.Passphrase,
		Sandbox:     cfg.Gateway.Sandbox,
	}
	credentials := db.NewCredentialRepository(pool, cipher, fallback)

	ledger := db.NewLedger(db.NewPoolRunner(pool), pool, logger)
	origin := gateway.NewOriginValidator(nil, cfg.Gateway.TrustedHosts, logger)
	confirmer := gateway.NewConfirmationClient(cfg.Gateway.ConfirmTimeout, logger)

	emitter, requestMetrics, outcomeMetrics, err := buildAWSBacked(ctx, cfg, logger)
	if err != nil {
		return err
	}

	dispatcher := gateway.NewDispatcher(
		origin, confirmer, credentials, ledger, emitter, outcomeMetrics, tolerance, logger,
	)
	gatewayHandler := handlers.NewGatewayHandler(dispatcher, cfg.Server.DashboardURL, logger)

	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	srv.Metrics = requestMetrics
	srv.HealthProbes = []core.HealthProbe{&databaseProbe{pool: pool}}
	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars, gatewayHandler.RegisterRoutes)
	srv.MountRoutes()

	return runHTTPServer(srv, cfg, logger)
}

// buildAWSBacked constructs the dependencies backed by AWS services: the
// email emitter and the metrics collectors. The AWS SDK configuration is only
// loaded when something actually needs it, so SMTP-plus-no-metrics setups
// (typical local development) run without AWS credentials.
func buildAWSBacked(ctx context.Context, cfg *config.Config, logger *slog.Logger) (gateway.Emitter, core.MetricsCollector, gateway.OutcomeRecorder, error) {
	needsAWS := cfg.Email.Provider == "sqs" || cfg.Observability.EnableMetrics

	var awsCfg aws.Config
	if needsAWS {
		var err error
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
		if err != nil {
			return nil, nil, nil, fmt.Errorf("loading AWS configuration: %w", err)
		}
	}

	var emitter gateway.Emitter
	switch cfg.Email.Provider {
	case "smtp":
		emitter = notify.NewSMTPEmitter(cfg.Email, logger)
	default:
		client := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
			if cfg.AWS.EndpointURL != "" {
				o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
			}
		})
		emitter = notify.NewSQSEmitter(client, cfg.AWS.NotificationQueue, logger)
	}

	if !cfg.Observability.EnableMetrics {
		return emitter, metrics.NoopCollector{}, metrics.NoopCollector{}, nil
	}

	client := cloudwatch.NewFromConfig(awsCfg, func(o *cloudwatch.Options) {
		if cfg.AWS.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
		}
	})
	collector := metrics.NewCloudWatchCollector(client, cfg.Observability.MetricNamespace, logger)
	return emitter, collector, collector, nil
}

// databaseProbe reports database reachability for GET /health.
type databaseProbe struct {
	pool *pgxpool.Pool
}

func (p *databaseProbe) Name() string { return "database" }

func (p *databaseProbe) Check(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// runHTTPServer starts the server in standard HTTP mode with graceful
// shutdown.
func runHTTPServer(srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port

	// Write timeout must outlast the notification pipeline, whose slowest
	// path is the provider confirmation round trip.
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.Gateway.ConfirmTimeout + 15*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)

	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("initiating graceful shutdown")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server resource shutdown error", "error", err)
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped cleanly")
	return nil
}

// newLogger creates a structured slog.Logger configured for the given log
// level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	return slog.New(handler)
}
