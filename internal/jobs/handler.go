package jobs

import (
	"context"
	"fmt"

	"github.com/dvloznov/vault-ledger/internal/importer"
	"github.com/dvloznov/vault-ledger/internal/logger"
)

// StatementImporter is the part of importer.Importer a job needs.
type StatementImporter interface {
	ImportURI(ctx context.Context, vaultID, uri string) (*importer.Report, error)
}

// NewImportHandler returns a JobHandler running import jobs through im. The
// report is written onto the job so the queue stores it with the final status.
func NewImportHandler(im StatementImporter) JobHandler {
	return func(ctx context.Context, job Job) error {
		importJob, ok := job.(*ImportStatementJob)
		if !ok {
			return fmt.Errorf("unexpected job type: %T", job)
		}

		log := logger.WithFields(logger.FromContext(ctx), map[string]interface{}{
			"job_id":        importJob.JobID,
			"vault_id":      importJob.VaultID,
			"statement_uri": importJob.StatementURI,
		})

		log.Info().Msg("Processing import job")

		report, err := im.ImportURI(logger.WithContext(ctx, log), importJob.VaultID, importJob.StatementURI)
		if err != nil {
			log.Error().Err(err).Msg("Import job failed")
			return err
		}
		importJob.Report = report

		log.Info().Int("imported", report.Imported).Msg("Import job completed successfully")
		return nil
	}
}
