package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dvloznov/vault-ledger/internal/action"
	"github.com/dvloznov/vault-ledger/internal/api/middleware"
	"github.com/dvloznov/vault-ledger/internal/categorize"
	"github.com/dvloznov/vault-ledger/internal/ledger"
	"github.com/dvloznov/vault-ledger/internal/logger"
)

// statusFor maps domain errors to HTTP status codes and client messages.
// Unknown errors become 500 with fallback as the message.
func statusFor(err error, fallback string) (int, string) {
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		return http.StatusNotFound, "Not found"
	case errors.Is(err, ledger.ErrAlreadyCommitted):
		return http.StatusConflict, "Transaction is already committed"
	case errors.Is(err, ledger.ErrNegativeBudget):
		return http.StatusBadRequest, "Budget amount must not be negative"
	case errors.Is(err, ledger.ErrInvalidAmount):
		return http.StatusBadRequest, "Amount must not be negative"
	case errors.Is(err, ledger.ErrInvalidKind):
		return http.StatusBadRequest, "Kind must be income or expense"
	case errors.Is(err, ledger.ErrVaultMismatch):
		return http.StatusConflict, "Transaction belongs to another vault"
	case errors.Is(err, action.ErrNotPending):
		return http.StatusConflict, "Action is no longer pending"
	case errors.Is(err, action.ErrNoMatch):
		return http.StatusUnprocessableEntity, "No transaction recognized in text"
	case errors.Is(err, categorize.ErrPipelineFailed), errors.Is(err, categorize.ErrClassificationFailed):
		return http.StatusServiceUnavailable, "Categorization is unavailable, try again later"
	}
	return http.StatusInternalServerError, fallback
}

// writeServiceError logs err and writes the mapped response. Client errors
// log at warn level, server errors at error level.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	status, msg := statusFor(err, fallback)
	log := logger.FromContext(r.Context())
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Int("status", status).Msg(fallback)
	} else {
		log.Warn().Err(err).Int("status", status).Msg(fallback)
	}
	middleware.WriteError(w, status, msg)
}

// decodeJSON reads the request body into dst and writes a 400 on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

// vaultID returns the authenticated vault or writes a 401.
func vaultID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, ok := middleware.VaultID(r.Context())
	if !ok {
		middleware.WriteError(w, http.StatusUnauthorized, "Unauthorized")
	}
	return id, ok
}
