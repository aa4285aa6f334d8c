package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/rotatelab/rotator/internal/broker"
	"github.com/rotatelab/rotator/internal/config"
	"github.com/rotatelab/rotator/internal/execution"
	"github.com/rotatelab/rotator/internal/marketdata"
	"github.com/rotatelab/rotator/internal/outbox"
	"github.com/rotatelab/rotator/internal/portfolio"
	"github.com/rotatelab/rotator/internal/runner"
	"github.com/rotatelab/rotator/internal/secrets"
	"github.com/rotatelab/rotator/internal/strategy"
)

var cfgFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "rotator",
		Short: "Momentum rotation rebalancer",
		Long:  `Rebalances every configured brokerage account toward the momentum rotation strategy's current targets. Intended to run once per invocation on an external schedule.`,
		RunE:  runCycle,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "config.yaml", "config file")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runCycle(cmd *cobra.Command, args []string) error {
	// .env is optional; real deployments use the environment directly
	_ = godotenv.Load()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logger.WithError(err).Error("Invalid log level, using INFO")
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	secretStore, err := secrets.NewGCPStore(ctx, cfg.Secrets.GCPProject)
	if err != nil {
		return fmt.Errorf("initializing secret store: %w", err)
	}
	defer secretStore.Close()

	polygonKey, err := secretStore.Secret(ctx, cfg.Secrets.PolygonAPIKeyName)
	if err != nil {
		return err
	}
	brokerToken, err := secretStore.Secret(ctx, cfg.Secrets.BrokerTokenName)
	if err != nil {
		return err
	}

	historyProvider, err := marketdata.NewPolygonClient(marketdata.PolygonConfig{
		APIKey:          polygonKey,
		BaseURL:         cfg.Marketdata.BaseURL,
		LookbackDays:    cfg.Marketdata.LookbackDays,
		RateLimitPerSec: cfg.Marketdata.RateLimitPerSec,
		TimeoutSeconds:  cfg.Marketdata.TimeoutSeconds,
	}, logger)
	if err != nil {
		return fmt.Errorf("initializing price history client: %w", err)
	}

	brokerage, err := broker.NewSchwabClient(broker.SchwabConfig{
		BaseURL:         cfg.Broker.BaseURL,
		AccessToken:     brokerToken,
		RateLimitPerSec: cfg.Broker.RateLimitPerSec,
		TimeoutSeconds:  cfg.Broker.TimeoutSeconds,
	}, logger)
	if err != nil {
		return fmt.Errorf("initializing brokerage client: %w", err)
	}

	store, err := portfolio.NewPostgresStore(cfg.Database.DSN)
	if err != nil {
		return err
	}
	defer store.Close()

	audit, err := outbox.New(cfg.Execution.OutboxPath)
	if err != nil {
		return fmt.Errorf("initializing order audit log: %w", err)
	}

	pipeline := execution.New(brokerage, audit, execution.Config{
		PollInterval:     time.Duration(cfg.Execution.PollIntervalMs) * time.Millisecond,
		ConfirmTimeout:   time.Duration(cfg.Execution.ConfirmTimeoutSecs) * time.Second,
		StaleOrderWindow: time.Duration(cfg.Execution.StaleOrderWindowHours) * time.Hour,
	}, logger)

	r := runner.New(runner.Deps{
		Engine:       strategy.NewEngine(historyProvider, logger),
		Brokerage:    brokerage,
		Store:        store,
		Pipeline:     pipeline,
		Logger:       logger,
		Workers:      cfg.Workers,
		StrictQuotes: cfg.Quotes.Strict,
	})

	logger.Info("Starting rebalance cycle")
	if err := r.Run(ctx); err != nil {
		logger.WithError(err).Error("Rebalance cycle failed")
		return err
	}
	logger.Info("Rebalance cycle succeeded")
	return nil
}
