package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/dvloznov/vault-ledger/internal/config"
	infraBQ "github.com/dvloznov/vault-ledger/internal/infra/bigquery"
	"github.com/dvloznov/vault-ledger/internal/infra/sqlite"
	"github.com/dvloznov/vault-ledger/internal/logger"
	"github.com/dvloznov/vault-ledger/internal/store"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	var (
		storeName = flag.String("store", cfg.Store, "Backend to migrate: sqlite or bigquery (or set STORE env)")
		projectID = flag.String("project", cfg.GCPProjectID, "GCP project ID (or set GCP_PROJECT_ID env)")
		datasetID = flag.String("dataset", cfg.BigQueryDS, "BigQuery dataset ID (or set BIGQUERY_DATASET env)")
		dbPath    = flag.String("db", cfg.SQLitePath, "SQLite database path (or set SQLITE_PATH env)")
		appliedBy = flag.String("applied-by", "migrate-cli", "Name of the tool applying migrations")
		seed      = flag.Bool("seed", true, "Upsert the default categories after migrating")
	)
	flag.Parse()
	cfg.Store, cfg.GCPProjectID, cfg.BigQueryDS, cfg.SQLitePath = *storeName, *projectID, *datasetID, *dbPath

	bootLog := logger.New()
	if err := cfg.Validate(); err != nil {
		bootLog.Fatal().Err(err).Msg("Invalid configuration")
	}
	log, err := logger.Configure(logger.Options{Level: cfg.LogLevel, Format: "console", Out: os.Stderr})
	if err != nil {
		bootLog.Fatal().Err(err).Msg("Failed to configure logger")
	}
	ctx := logger.WithContext(context.Background(), log)

	applied, err := migrate(ctx, cfg, *appliedBy, *seed)
	if err != nil {
		log.Fatal().Err(err).Str("store", cfg.Store).Msg("Migration failed")
	}

	switch {
	case applied < 0:
		log.Info().Str("store", cfg.Store).Msg("Schema is up to date")
	case applied == 0:
		log.Info().Msg("No new migrations to apply. Database is up to date.")
	default:
		log.Info().Int("applied", applied).Msg("Successfully applied migrations")
	}
}

// migrate brings the configured backend's schema up to date and optionally
// seeds the default categories. It returns the number of migrations applied,
// or -1 when the backend does not report it.
func migrate(ctx context.Context, cfg *config.Config, appliedBy string, seed bool) (int, error) {
	var (
		writer  store.CategoryWriter
		closer  func() error
		applied = -1
	)

	switch cfg.Store {
	case config.StoreSQLite:
		repo, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return 0, fmt.Errorf("migrate: %w", err)
		}
		writer, closer = repo, repo.Close
	case config.StoreBigQuery:
		repo, err := infraBQ.NewRepository(ctx, cfg.GCPProjectID, cfg.BigQueryDS)
		if err != nil {
			return 0, fmt.Errorf("migrate: %w", err)
		}
		if applied, err = repo.Migrate(ctx, appliedBy); err != nil {
			repo.Close()
			return applied, fmt.Errorf("migrate: %w", err)
		}
		writer, closer = repo, repo.Close
	default:
		return 0, fmt.Errorf("migrate: store %q has no schema", cfg.Store)
	}
	defer closer()

	if seed {
		if err := store.SeedCategories(ctx, writer); err != nil {
			return applied, fmt.Errorf("migrate: %w", err)
		}
	}
	return applied, nil
}
