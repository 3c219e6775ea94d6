package amqp

import (
	"context"
	"errors"
	"testing"

	"github.com/dvloznov/vault-ledger/internal/jobs"
	"github.com/dvloznov/vault-ledger/internal/jobs/inmemory"
)

func TestProcess(t *testing.T) {
	valid, err := encodeJob(&jobs.ImportStatementJob{JobID: "j1", VaultID: "v1", StatementURI: "gs://b/o.csv"})
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name       string
		body       []byte
		handler    jobs.JobHandler
		want       outcome
		wantStatus jobs.JobStatus
	}{
		{
			name:       "success acks",
			body:       valid,
			handler:    func(context.Context, jobs.Job) error { return nil },
			want:       outcomeAck,
			wantStatus: jobs.JobStatusCompleted,
		},
		{
			name:       "failure rejects without requeue",
			body:       valid,
			handler:    func(context.Context, jobs.Job) error { return errors.New("boom") },
			want:       outcomeReject,
			wantStatus: jobs.JobStatusFailed,
		},
		{
			name:       "panic rejects",
			body:       valid,
			handler:    func(context.Context, jobs.Job) error { panic("boom") },
			want:       outcomeReject,
			wantStatus: jobs.JobStatusFailed,
		},
		{
			name:    "malformed body rejects",
			body:    []byte("{not json"),
			handler: func(context.Context, jobs.Job) error { t.Error("handler must not run"); return nil },
			want:    outcomeReject,
		},
		{
			name:    "incomplete job rejects",
			body:    []byte(`{"job_id":"j2"}`),
			handler: func(context.Context, jobs.Job) error { t.Error("handler must not run"); return nil },
			want:    outcomeReject,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := inmemory.NewStore()
			got := process(context.Background(), tt.body, tt.handler, store)
			if got != tt.want {
				t.Errorf("process() = %v, want %v", got, tt.want)
			}
			if tt.wantStatus == "" {
				return
			}
			job, err := store.GetJob(context.Background(), "j1")
			if err != nil {
				t.Fatal(err)
			}
			if job.Status != tt.wantStatus {
				t.Errorf("Expected status %s, got %s", tt.wantStatus, job.Status)
			}
		})
	}
}

func TestDecodeJob_RoundTrip(t *testing.T) {
	in := &jobs.ImportStatementJob{JobID: "j1", VaultID: "v1", StatementURI: "statement.csv", MaxRetries: 0}
	body, err := encodeJob(in)
	if err != nil {
		t.Fatal(err)
	}
	out, err := decodeJob(body)
	if err != nil {
		t.Fatalf("decodeJob failed: %v", err)
	}
	if out.JobID != in.JobID || out.VaultID != in.VaultID || out.StatementURI != in.StatementURI {
		t.Errorf("Expected %+v, got %+v", in, out)
	}
}
