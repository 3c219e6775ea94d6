package handlers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/dvloznov/vault-ledger/internal/api/middleware"
	"github.com/dvloznov/vault-ledger/internal/jobs"
	"github.com/dvloznov/vault-ledger/internal/ledger"
	"github.com/dvloznov/vault-ledger/internal/logger"
	"github.com/dvloznov/vault-ledger/internal/statement"
	"github.com/google/uuid"
)

// maxStatementSize bounds uploaded statement bodies.
const maxStatementSize = 10 << 20

// UploadFunc stores a statement and returns its URI.
type UploadFunc func(ctx context.Context, bucket, object string, r io.Reader) (string, error)

// ImportsHandler enqueues statement imports and reports their status.
type ImportsHandler struct {
	publisher jobs.Publisher
	store     jobs.JobStore
	bucket    string
	upload    UploadFunc
}

// NewImportsHandler creates a new imports handler. Uploads are disabled
// when bucket is empty.
func NewImportsHandler(publisher jobs.Publisher, store jobs.JobStore, bucket string) *ImportsHandler {
	return &ImportsHandler{
		publisher: publisher,
		store:     store,
		bucket:    bucket,
		upload:    statement.Upload,
	}
}

// WithUploader replaces the Cloud Storage uploader.
func (h *ImportsHandler) WithUploader(fn UploadFunc) *ImportsHandler {
	h.upload = fn
	return h
}

// EnqueueImport handles POST /api/imports. Only gs:// statements can be
// imported over HTTP.
func (h *ImportsHandler) EnqueueImport(w http.ResponseWriter, r *http.Request) {
	id, ok := vaultID(w, r)
	if !ok {
		return
	}
	var req struct {
		StatementURI string `json:"statement_uri"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if _, _, err := statement.ParseGCSURI(req.StatementURI); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "statement_uri must be a gs:// URI")
		return
	}

	h.enqueue(w, r, id, req.StatementURI)
}

// UploadStatement handles POST /api/imports/upload?filename=. The request
// body is the CSV statement; it is stored in the bucket and then imported.
func (h *ImportsHandler) UploadStatement(w http.ResponseWriter, r *http.Request) {
	id, ok := vaultID(w, r)
	if !ok {
		return
	}
	if h.bucket == "" {
		middleware.WriteError(w, http.StatusServiceUnavailable, "Statement uploads are not configured")
		return
	}

	filename := path.Base(strings.TrimSpace(r.URL.Query().Get("filename")))
	if filename == "" || filename == "." || filename == "/" {
		filename = "statement.csv"
	}
	object := fmt.Sprintf("statements/%s/%s/%s-%s", id, time.Now().UTC().Format("2006/01/02"), uuid.NewString(), filename)

	uri, err := h.upload(r.Context(), h.bucket, object, http.MaxBytesReader(w, r.Body, maxStatementSize))
	if err != nil {
		writeServiceError(w, r, err, "Failed to upload statement")
		return
	}
	log := logger.FromContext(r.Context())
	log.Info().Str("statement_uri", uri).Msg("Statement uploaded")

	h.enqueue(w, r, id, uri)
}

func (h *ImportsHandler) enqueue(w http.ResponseWriter, r *http.Request, vaultID, uri string) {
	ctx := r.Context()
	job := &jobs.ImportStatementJob{
		VaultID:      vaultID,
		StatementURI: uri,
	}
	if err := h.publisher.PublishImportStatement(ctx, job); err != nil {
		writeServiceError(w, r, err, "Failed to enqueue import")
		return
	}

	log := logger.FromContext(ctx)
	log.Info().Str("job_id", job.JobID).Str("statement_uri", uri).Msg("Import job enqueued")

	// The worker owns job once published; respond from the store.
	saved, err := h.store.GetJob(ctx, job.JobID)
	if err != nil {
		middleware.WriteJSON(w, http.StatusAccepted, map[string]string{"job_id": job.JobID})
		return
	}
	middleware.WriteJSON(w, http.StatusAccepted, saved)
}

// GetImport handles GET /api/imports/{id}
func (h *ImportsHandler) GetImport(w http.ResponseWriter, r *http.Request) {
	id, ok := vaultID(w, r)
	if !ok {
		return
	}

	job, err := h.store.GetJob(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err, "Failed to get import")
		return
	}
	if job.VaultID != id {
		writeServiceError(w, r, ledger.ErrNotFound, "Failed to get import")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, job)
}

// ListImports handles GET /api/imports
func (h *ImportsHandler) ListImports(w http.ResponseWriter, r *http.Request) {
	id, ok := vaultID(w, r)
	if !ok {
		return
	}

	query := r.URL.Query()
	filter := jobs.JobFilter{
		VaultID: id,
		Status:  jobs.JobStatus(query.Get("status")),
	}
	if limitStr := query.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil {
			filter.Limit = limit
		}
	}
	if offsetStr := query.Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil {
			filter.Offset = offset
		}
	}

	list, err := h.store.ListJobs(r.Context(), filter)
	if err != nil {
		writeServiceError(w, r, err, "Failed to list imports")
		return
	}
	if list == nil {
		list = []*jobs.ImportStatementJob{}
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  list,
		"count": len(list),
	})
}
