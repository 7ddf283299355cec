package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mcclellann/airbersih/pkg/cache"
	"github.com/mcclellann/airbersih/pkg/config"
	"github.com/mcclellann/airbersih/pkg/events"
	"github.com/mcclellann/airbersih/pkg/ledger"
	"github.com/mcclellann/airbersih/pkg/logging"
	"github.com/mcclellann/airbersih/pkg/store"
	"go.uber.org/zap"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "./configs", "Path to the configuration directory")
	flag.Parse()

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Server exited with error", zap.Error(err))
	}
	logger.Info("Server exited")
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx := context.Background()

	storage, err := store.Open(ctx, store.Options{
		Driver:      cfg.Datastore.Driver,
		Identifier:  cfg.Datastore.Identifier,
		Worksheet:   cfg.Datastore.Worksheet,
		Credentials: cfg.Datastore.Credentials,
		Logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("failed to open %s datastore: %w", cfg.Datastore.Driver, err)
	}
	defer storage.Close()

	var publisher events.Publisher = events.NopPublisher{}
	if cfg.Kafka.Enabled() {
		kp, err := events.NewKafkaPublisher(events.KafkaConfig{
			Brokers:          cfg.Kafka.Brokers,
			Topic:            cfg.Kafka.Topic,
			RequiredAcks:     cfg.Kafka.RequiredAcks,
			CompressionCodec: cfg.Kafka.CompressionCodec,
		}, logger)
		if err != nil {
			return fmt.Errorf("failed to setup Kafka producer: %w", err)
		}
		publisher = kp
		logger.Info("Ledger events enabled", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Error("Error closing event publisher", zap.Error(err))
		}
	}()

	snapshots := cache.New(storage.ReadAll, cfg.Cache.TTL())
	l := ledger.NewLedger(storage, snapshots, cfg.Billing.Price,
		ledger.WithCurrencySymbol(cfg.Billing.CurrencySymbol),
		ledger.WithPublisher(publisher),
		ledger.WithLogger(logger),
	)

	opts := ServerOptions{WriteRateLimit: cfg.Server.WriteRateLimit}
	if cfg.Metrics.Enabled {
		opts.MetricsPath = cfg.Metrics.Path
	}
	server := NewServer(l, logger, opts)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server starting", zap.Int("port", cfg.Server.Port))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serverErr:
		return fmt.Errorf("HTTP server failed: %w", err)
	case <-quit:
	}
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.WriteTimeout+5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during HTTP server shutdown", zap.Error(err))
	}
	return nil
}
