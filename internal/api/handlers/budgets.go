package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/dvloznov/vault-ledger/internal/api/middleware"
	"github.com/dvloznov/vault-ledger/internal/ledger"
	"github.com/dvloznov/vault-ledger/internal/store"
	"github.com/dvloznov/vault-ledger/internal/vaults"
	"github.com/shopspring/decimal"
)

// BudgetsHandler handles budget endpoints of the authenticated vault.
type BudgetsHandler struct {
	vaults     *vaults.Service
	categories store.CategorySource
}

// NewBudgetsHandler creates a new budgets handler.
func NewBudgetsHandler(svc *vaults.Service) *BudgetsHandler {
	return &BudgetsHandler{vaults: svc, categories: svc.Categories()}
}

// ListBudgets handles GET /api/budgets
func (h *BudgetsHandler) ListBudgets(w http.ResponseWriter, r *http.Request) {
	id, ok := vaultID(w, r)
	if !ok {
		return
	}

	var budgets []ledger.Budget
	err := h.vaults.View(r.Context(), id, func(v *ledger.Vault) error {
		budgets = v.Budgets()
		return nil
	})
	if err != nil {
		writeServiceError(w, r, err, "Failed to list budgets")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"budgets": budgets,
		"count":   len(budgets),
	})
}

// SetBudget handles PUT /api/budgets/{category}. The path accepts a
// category id or code.
func (h *BudgetsHandler) SetBudget(w http.ResponseWriter, r *http.Request) {
	id, ok := vaultID(w, r)
	if !ok {
		return
	}
	var req struct {
		Amount decimal.Decimal `json:"amount"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	category, err := h.resolveCategory(r, r.PathValue("category"))
	if err != nil {
		writeServiceError(w, r, err, "Failed to set budget")
		return
	}

	var budget ledger.Budget
	err = h.vaults.WithVault(r.Context(), id, func(v *ledger.Vault) error {
		if err := v.SetBudget(category, req.Amount); err != nil {
			return err
		}
		budget = ledger.Budget{Category: category, Amount: req.Amount}
		return nil
	})
	if err != nil {
		writeServiceError(w, r, err, "Failed to set budget")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, budget)
}

// RemoveBudget handles DELETE /api/budgets/{category}
func (h *BudgetsHandler) RemoveBudget(w http.ResponseWriter, r *http.Request) {
	id, ok := vaultID(w, r)
	if !ok {
		return
	}

	category, err := h.resolveCategory(r, r.PathValue("category"))
	if err != nil {
		writeServiceError(w, r, err, "Failed to remove budget")
		return
	}

	err = h.vaults.WithVault(r.Context(), id, func(v *ledger.Vault) error {
		return v.RemoveBudget(category.ID)
	})
	if err != nil {
		writeServiceError(w, r, err, "Failed to remove budget")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Summary handles GET /api/budgets/summary?month=&year=. Either filter
// may be omitted.
func (h *BudgetsHandler) Summary(w http.ResponseWriter, r *http.Request) {
	id, ok := vaultID(w, r)
	if !ok {
		return
	}

	period, err := parsePeriod(r)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	var summary []ledger.BudgetSummary
	err = h.vaults.View(r.Context(), id, func(v *ledger.Vault) error {
		summary = v.BudgetsSummary(period)
		return nil
	})
	if err != nil {
		writeServiceError(w, r, err, "Failed to summarize budgets")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"summary": summary,
		"count":   len(summary),
	})
}

// Totals handles GET /api/budgets/totals. total_spent covers every expense
// of the vault, not only the budgeted categories of one month.
func (h *BudgetsHandler) Totals(w http.ResponseWriter, r *http.Request) {
	id, ok := vaultID(w, r)
	if !ok {
		return
	}

	resp := map[string]decimal.Decimal{}
	err := h.vaults.View(r.Context(), id, func(v *ledger.Vault) error {
		resp["total_budgeted"] = v.TotalBudgetedAmount()
		resp["total_spent"] = v.TotalSpentAmount()
		resp["percentage_used"] = v.PercentageTotalBudgetedAmount()
		return nil
	})
	if err != nil {
		writeServiceError(w, r, err, "Failed to compute totals")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, resp)
}

func (h *BudgetsHandler) resolveCategory(r *http.Request, idOrCode string) (ledger.Category, error) {
	c, err := h.categories.FindCategoryByID(r.Context(), idOrCode)
	if err == nil || !errors.Is(err, ledger.ErrNotFound) {
		return c, err
	}
	return h.categories.FindCategoryByCode(r.Context(), idOrCode)
}

type periodError string

func (e periodError) Error() string { return string(e) }

func parsePeriod(r *http.Request) (ledger.Period, error) {
	var p ledger.Period
	q := r.URL.Query()
	if s := q.Get("month"); s != "" {
		m, err := strconv.Atoi(s)
		if err != nil || m < 1 || m > 12 {
			return p, periodError("month must be between 1 and 12")
		}
		p.Month = time.Month(m)
	}
	if s := q.Get("year"); s != "" {
		y, err := strconv.Atoi(s)
		if err != nil || y < 1 {
			return p, periodError("year must be a positive number")
		}
		p.Year = y
	}
	return p, nil
}

// CategoriesHandler handles category endpoints.
type CategoriesHandler struct {
	categories store.CategorySource
}

// NewCategoriesHandler creates a new categories handler.
func NewCategoriesHandler(categories store.CategorySource) *CategoriesHandler {
	return &CategoriesHandler{categories: categories}
}

// ListCategories handles GET /api/categories
func (h *CategoriesHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	id, ok := vaultID(w, r)
	if !ok {
		return
	}

	categories, err := h.categories.ListCategories(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err, "Failed to list categories")
		return
	}
	if categories == nil {
		categories = []ledger.Category{}
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"categories": categories,
		"count":      len(categories),
	})
}
