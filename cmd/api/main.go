package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/vault-ledger/internal/action"
	"github.com/dvloznov/vault-ledger/internal/api/handlers"
	"github.com/dvloznov/vault-ledger/internal/api/middleware"
	"github.com/dvloznov/vault-ledger/internal/app"
	"github.com/dvloznov/vault-ledger/internal/cache"
	"github.com/dvloznov/vault-ledger/internal/config"
	"github.com/dvloznov/vault-ledger/internal/importer"
	"github.com/dvloznov/vault-ledger/internal/jobs"
	"github.com/dvloznov/vault-ledger/internal/jobs/inmemory"
	"github.com/dvloznov/vault-ledger/internal/logger"
	"github.com/dvloznov/vault-ledger/internal/sessions"
	"github.com/dvloznov/vault-ledger/internal/statement"
	"github.com/dvloznov/vault-ledger/internal/vaults"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	// Command-line flags override the environment
	var (
		port   = flag.String("port", cfg.Port, "HTTP server port")
		bucket = flag.String("bucket", cfg.StatementBucket, "GCS bucket for statement uploads (or set STATEMENT_BUCKET env)")
	)
	flag.Parse()
	cfg.Port = *port
	cfg.StatementBucket = *bucket

	bootLog := logger.New()
	if err := cfg.Validate(); err != nil {
		bootLog.Fatal().Err(err).Msg("Invalid configuration")
	}

	log, err := logger.Configure(logger.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
	if err != nil {
		bootLog.Fatal().Err(err).Msg("Failed to configure logger")
	}

	if cfg.StatementBucket == "" {
		log.Warn().Msg("No statement bucket configured - statement uploads will be disabled")
	}

	ctx := logger.WithContext(context.Background(), log)

	backend, err := app.OpenBackend(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open store")
	}
	defer backend.Close()

	vaultService := vaults.NewService(backend, backend)
	classifier := app.NewClassifier(ctx, cfg)
	imp := importer.New(vaultService, backend, app.NewPipeline(cfg, classifier), statement.NewFetcher())

	// Initialize job infrastructure
	jobStore := inmemory.NewStore()
	jobQueue, err := app.NewQueue(cfg, jobStore)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create job queue")
	}

	// Start worker in background to process jobs
	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	if cfg.JobsTransport == config.JobsInMemory {
		go func() {
			log.Info().Msg("Starting in-process import worker")
			if err := jobQueue.Start(workerCtx, jobs.NewImportHandler(imp)); err != nil {
				log.Error().Err(err).Msg("Job worker stopped with error")
			}
		}()
	} else {
		log.Info().Str("transport", cfg.JobsTransport).Msg("Imports run on external workers")
	}

	// Expiring in-memory state
	actionStore := action.NewMemoryStore(action.DefaultTTL)
	linkTokens := sessions.NewAccessTokenStore(cfg.LinkTokenTTL)
	conversations := sessions.NewConversationStore(cfg.ConversationTTL)
	caches := cache.NewManager()
	caches.Register(actionStore.Cleaner())
	caches.Register(linkTokens.Cleaner())
	caches.Register(conversations.Cleaner())
	caches.Start(workerCtx, cfg.SweepInterval)
	defer caches.Stop()

	mux := handlers.NewRouter(handlers.Handlers{
		Vaults:       handlers.NewVaultsHandler(vaultService),
		Transactions: handlers.NewTransactionsHandler(vaultService),
		Budgets:      handlers.NewBudgetsHandler(vaultService),
		Categories:   handlers.NewCategoriesHandler(backend),
		Imports:      handlers.NewImportsHandler(jobQueue, jobStore, cfg.StatementBucket),
		Actions:      handlers.NewActionsHandler(action.NewService(actionStore, app.ActionParser(classifier), vaultService), conversations),
		Links:        handlers.NewLinksHandler(linkTokens, vaultService),
	}, middleware.Auth(vaultService))

	// Apply middleware
	handler := middleware.Recovery(log)(
		middleware.RequestID(
			middleware.Logger(log)(
				middleware.CORS(mux),
			),
		),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Str("store", cfg.Store).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Let in-flight imports finish before cancelling their context
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}
	cancelWorker()

	if err := jobQueue.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close job queue")
	}

	log.Info().Msg("Server exited")
}
