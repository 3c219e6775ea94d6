package amqp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dvloznov/vault-ledger/internal/jobs"
	"github.com/dvloznov/vault-ledger/internal/logger"
)

type outcome int

const (
	outcomeAck outcome = iota
	// outcomeReject drops the message without requeueing. Imports are not
	// idempotent, so failed jobs are never redelivered.
	outcomeReject
)

func encodeJob(job *jobs.ImportStatementJob) ([]byte, error) {
	body, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("marshal job: %w", err)
	}
	return body, nil
}

func decodeJob(body []byte) (*jobs.ImportStatementJob, error) {
	var job jobs.ImportStatementJob
	if err := json.Unmarshal(body, &job); err != nil {
		return nil, fmt.Errorf("unmarshal job: %w", err)
	}
	if job.JobID == "" || job.VaultID == "" || job.StatementURI == "" {
		return nil, fmt.Errorf("incomplete job message")
	}
	return &job, nil
}

// process decodes one delivery, runs it and records the job state.
func process(ctx context.Context, body []byte, handler jobs.JobHandler, store jobs.JobStore) outcome {
	log := logger.FromContext(ctx)

	job, err := decodeJob(body)
	if err != nil {
		log.Error().Err(err).Msg("Rejecting malformed job message")
		return outcomeReject
	}

	started := time.Now().UTC()
	job.Status = jobs.JobStatusRunning
	job.StartedAt = &started
	save(ctx, store, job)

	err = run(ctx, job, handler)

	completed := time.Now().UTC()
	job.CompletedAt = &completed
	if err != nil {
		job.Status = jobs.JobStatusFailed
		job.Error = err.Error()
		save(ctx, store, job)
		return outcomeReject
	}

	job.Status = jobs.JobStatusCompleted
	save(ctx, store, job)
	return outcomeAck
}

func run(ctx context.Context, job *jobs.ImportStatementJob, handler jobs.JobHandler) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return handler(ctx, job)
}

func save(ctx context.Context, store jobs.JobStore, job *jobs.ImportStatementJob) {
	if store == nil {
		return
	}
	if err := store.SaveJob(ctx, job); err != nil {
		log := logger.FromContext(ctx)
		log.Error().Err(err).Str("job_id", job.JobID).Msg("Failed to save job state")
	}
}
