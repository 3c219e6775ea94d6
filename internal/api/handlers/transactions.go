package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/dvloznov/vault-ledger/internal/api/middleware"
	"github.com/dvloznov/vault-ledger/internal/ledger"
	"github.com/dvloznov/vault-ledger/internal/store"
	"github.com/dvloznov/vault-ledger/internal/vaults"
	"github.com/shopspring/decimal"
)

// TransactionsHandler handles transaction endpoints of the authenticated vault.
type TransactionsHandler struct {
	vaults     *vaults.Service
	categories store.CategorySource
}

// NewTransactionsHandler creates a new transactions handler.
func NewTransactionsHandler(svc *vaults.Service) *TransactionsHandler {
	return &TransactionsHandler{vaults: svc, categories: svc.Categories()}
}

// ListTransactions handles GET /api/transactions. The optional committed
// query parameter filters by commit state.
func (h *TransactionsHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	id, ok := vaultID(w, r)
	if !ok {
		return
	}

	var committed *bool
	if s := r.URL.Query().Get("committed"); s != "" {
		b, err := strconv.ParseBool(s)
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "Invalid committed filter")
			return
		}
		committed = &b
	}

	var out []ledger.TransactionRecord
	err := h.vaults.View(r.Context(), id, func(v *ledger.Vault) error {
		for _, tx := range v.Transactions() {
			if committed == nil || tx.IsCommitted == *committed {
				out = append(out, tx)
			}
		}
		return nil
	})
	if err != nil {
		writeServiceError(w, r, err, "Failed to list transactions")
		return
	}

	if out == nil {
		out = []ledger.TransactionRecord{}
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"transactions": out,
		"count":        len(out),
	})
}

type addTransactionRequest struct {
	vaults.Draft
	Commit bool `json:"commit"`
}

// AddTransaction handles POST /api/transactions
func (h *TransactionsHandler) AddTransaction(w http.ResponseWriter, r *http.Request) {
	id, ok := vaultID(w, r)
	if !ok {
		return
	}
	var req addTransactionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Date.IsZero() {
		req.Date = time.Now().UTC()
	}

	rec, err := h.vaults.AddTransaction(r.Context(), id, req.Draft, req.Commit)
	if err != nil {
		writeServiceError(w, r, err, "Failed to add transaction")
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, rec)
}

// GetTransaction handles GET /api/transactions/{code}
func (h *TransactionsHandler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	id, ok := vaultID(w, r)
	if !ok {
		return
	}
	code := r.PathValue("code")

	var rec ledger.TransactionRecord
	err := h.vaults.View(r.Context(), id, func(v *ledger.Vault) error {
		var found bool
		if rec, found = v.FindTransactionByCode(code); !found {
			return ledger.ErrNotFound
		}
		return nil
	})
	if err != nil {
		writeServiceError(w, r, err, "Failed to get transaction")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, rec)
}

type editTransactionRequest struct {
	Amount      *decimal.Decimal `json:"amount"`
	Description *string          `json:"description"`
	CategoryID  *string          `json:"category_id"`
	Date        *time.Time       `json:"date"`
	Kind        *ledger.Kind     `json:"kind"`
}

// EditTransaction handles PATCH /api/transactions/{code}. Absent fields are
// left unchanged; an empty category_id clears the category.
func (h *TransactionsHandler) EditTransaction(w http.ResponseWriter, r *http.Request) {
	id, ok := vaultID(w, r)
	if !ok {
		return
	}
	var req editTransactionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if req.CategoryID != nil && *req.CategoryID != "" {
		if _, err := h.categories.FindCategoryByID(r.Context(), *req.CategoryID); err != nil {
			writeServiceError(w, r, err, "Failed to edit transaction")
			return
		}
	}

	patch := ledger.TransactionPatch{
		Amount:      req.Amount,
		Description: req.Description,
		CategoryID:  req.CategoryID,
		Date:        req.Date,
		Kind:        req.Kind,
	}

	var rec ledger.TransactionRecord
	err := h.vaults.WithVault(r.Context(), id, func(v *ledger.Vault) error {
		var err error
		rec, err = v.EditTransaction(r.PathValue("code"), patch)
		return err
	})
	if err != nil {
		writeServiceError(w, r, err, "Failed to edit transaction")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, rec)
}

// DeleteTransaction handles DELETE /api/transactions/{code}
func (h *TransactionsHandler) DeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id, ok := vaultID(w, r)
	if !ok {
		return
	}

	err := h.vaults.WithVault(r.Context(), id, func(v *ledger.Vault) error {
		return v.DeleteTransaction(r.PathValue("code"))
	})
	if err != nil {
		writeServiceError(w, r, err, "Failed to delete transaction")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CommitTransaction handles POST /api/transactions/{code}/commit
func (h *TransactionsHandler) CommitTransaction(w http.ResponseWriter, r *http.Request) {
	id, ok := vaultID(w, r)
	if !ok {
		return
	}

	var rec ledger.TransactionRecord
	err := h.vaults.WithVault(r.Context(), id, func(v *ledger.Vault) error {
		tx, found := v.FindTransactionByCode(r.PathValue("code"))
		if !found {
			return ledger.ErrNotFound
		}
		if err := v.CommitTransaction(tx.ID); err != nil {
			return err
		}
		rec, _ = v.FindTransactionByID(tx.ID)
		return nil
	})
	if err != nil {
		writeServiceError(w, r, err, "Failed to commit transaction")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, rec)
}
