package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/vault-ledger/internal/app"
	"github.com/dvloznov/vault-ledger/internal/config"
	"github.com/dvloznov/vault-ledger/internal/importer"
	"github.com/dvloznov/vault-ledger/internal/jobs"
	"github.com/dvloznov/vault-ledger/internal/jobs/inmemory"
	"github.com/dvloznov/vault-ledger/internal/logger"
	"github.com/dvloznov/vault-ledger/internal/statement"
	"github.com/dvloznov/vault-ledger/internal/vaults"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	bootLog := logger.New()
	if err := cfg.Validate(); err != nil {
		bootLog.Fatal().Err(err).Msg("Invalid configuration")
	}

	log, err := logger.Configure(logger.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
	if err != nil {
		bootLog.Fatal().Err(err).Msg("Failed to configure logger")
	}

	if cfg.JobsTransport != config.JobsAMQP {
		log.Fatal().Str("transport", cfg.JobsTransport).Msg("The worker consumes from AMQP; set JOBS_TRANSPORT=amqp")
	}
	if cfg.Store == config.StoreMemory {
		log.Warn().Msg("Memory store is private to this process - imported vaults will not be visible to the API")
	}

	// Create context that cancels on interrupt
	ctx, cancel := context.WithCancel(logger.WithContext(context.Background(), log))
	defer cancel()

	backend, err := app.OpenBackend(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open store")
	}
	defer backend.Close()

	vaultService := vaults.NewService(backend, backend)
	imp := importer.New(vaultService, backend, app.NewPipeline(cfg, app.NewClassifier(ctx, cfg)), statement.NewFetcher())

	// Job state is local to the worker; the API only sees what it published.
	jobQueue, err := app.NewQueue(cfg, inmemory.NewStore())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to job queue")
	}

	log.Info().Str("queue", cfg.AMQPQueue).Msg("Starting worker service")

	if err := jobQueue.Start(ctx, jobs.NewImportHandler(imp)); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job consumer")
	}

	log.Info().Msg("Worker service started, waiting for jobs...")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down worker service...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Stop the queue and wait for in-flight jobs
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error during graceful shutdown")
	}
	cancel()

	if err := jobQueue.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close job queue")
	}

	log.Info().Msg("Worker service exited")
}
