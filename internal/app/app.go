// Package app wires the configured backends for the cmd binaries.
package app

import (
	"context"
	"fmt"

	"github.com/dvloznov/vault-ledger/internal/categorize"
	"github.com/dvloznov/vault-ledger/internal/config"
	infraBQ "github.com/dvloznov/vault-ledger/internal/infra/bigquery"
	"github.com/dvloznov/vault-ledger/internal/infra/memory"
	"github.com/dvloznov/vault-ledger/internal/infra/sqlite"
	"github.com/dvloznov/vault-ledger/internal/jobs"
	"github.com/dvloznov/vault-ledger/internal/jobs/amqp"
	"github.com/dvloznov/vault-ledger/internal/jobs/inmemory"
	"github.com/dvloznov/vault-ledger/internal/logger"
	"github.com/dvloznov/vault-ledger/internal/store"
)

// Backend is an opened persistence backend.
type Backend interface {
	store.VaultRepository
	store.Categories
	Close() error
}

type memoryBackend struct{ *memory.Store }

func (memoryBackend) Close() error { return nil }

// OpenBackend opens the store selected by cfg.Store and seeds the default
// categories when cfg.SeedCategories is set.
func OpenBackend(ctx context.Context, cfg *config.Config) (Backend, error) {
	log := logger.FromContext(ctx)

	var b Backend
	switch cfg.Store {
	case config.StoreMemory:
		b = memoryBackend{memory.NewStore()}
	case config.StoreSQLite:
		repo, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("OpenBackend: %w", err)
		}
		b = repo
	case config.StoreBigQuery:
		repo, err := infraBQ.NewRepository(ctx, cfg.GCPProjectID, cfg.BigQueryDS)
		if err != nil {
			return nil, fmt.Errorf("OpenBackend: %w", err)
		}
		b = repo
	default:
		return nil, fmt.Errorf("OpenBackend: unknown store %q", cfg.Store)
	}

	if cfg.SeedCategories {
		if err := store.SeedCategories(ctx, b); err != nil {
			b.Close()
			return nil, fmt.Errorf("OpenBackend: %w", err)
		}
	}

	log.Info().Str("store", cfg.Store).Bool("seeded", cfg.SeedCategories).Msg("Store opened")
	return b, nil
}

// NewClassifier creates the Gemini classifier. It returns nil with a warning
// when no credentials are available; categorization and free-text actions
// then fail with a classification error while everything else keeps working.
func NewClassifier(ctx context.Context, cfg *config.Config) *categorize.GeminiClassifier {
	c, err := categorize.NewGeminiClassifier(ctx, cfg.GeminiModel)
	if err != nil {
		log := logger.FromContext(ctx)
		log.Warn().Err(err).Msg("Gemini unavailable, running without a classifier")
		return nil
	}
	return c
}

// NewPipeline builds the categorization pipeline around classifier.
func NewPipeline(cfg *config.Config, classifier *categorize.GeminiClassifier) *categorize.Pipeline {
	var bc categorize.BatchClassifier
	if classifier != nil {
		bc = classifier
	}
	return categorize.NewPipeline(bc,
		categorize.WithChunkSize(cfg.CategorizeChunkSize),
		categorize.WithConcurrency(cfg.CategorizeConcurrency),
	)
}

// ActionParser returns classifier as an ActionParser, or a nil interface
// when there is no classifier.
func ActionParser(classifier *categorize.GeminiClassifier) categorize.ActionParser {
	if classifier == nil {
		return nil
	}
	return classifier
}

// Queue is both ends of a job transport.
type Queue interface {
	jobs.Publisher
	jobs.Consumer
}

// NewQueue opens the job transport selected by cfg.JobsTransport. Job state
// goes to jobStore.
func NewQueue(cfg *config.Config, jobStore jobs.JobStore) (Queue, error) {
	switch cfg.JobsTransport {
	case config.JobsInMemory:
		return inmemory.NewQueue(cfg.JobsBuffer, inmemory.DefaultWorkers, jobStore), nil
	case config.JobsAMQP:
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, jobStore)
		if err != nil {
			return nil, fmt.Errorf("NewQueue: %w", err)
		}
		return client, nil
	}
	return nil, fmt.Errorf("NewQueue: unknown transport %q", cfg.JobsTransport)
}
