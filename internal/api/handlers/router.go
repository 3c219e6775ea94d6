package handlers

import (
	"net/http"
	"time"

	"github.com/dvloznov/vault-ledger/internal/api/middleware"
)

// Handlers groups the endpoint handlers served by NewRouter.
type Handlers struct {
	Vaults       *VaultsHandler
	Transactions *TransactionsHandler
	Budgets      *BudgetsHandler
	Categories   *CategoriesHandler
	Imports      *ImportsHandler
	Actions      *ActionsHandler
	Links        *LinksHandler
}

// NewRouter registers every endpoint. Vault-scoped routes go through auth.
func NewRouter(h Handlers, auth func(http.Handler) http.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	private := func(pattern string, fn http.HandlerFunc) {
		mux.Handle(pattern, auth(fn))
	}

	// Public endpoints
	mux.HandleFunc("POST /api/vaults", h.Vaults.CreateVault)
	mux.HandleFunc("POST /api/links/redeem", h.Links.RedeemLink)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	// Vault
	private("GET /api/vault", h.Vaults.GetVault)
	private("PUT /api/vault/prompt", h.Vaults.UpdatePrompt)
	private("GET /api/balance", h.Vaults.GetBalance)
	private("POST /api/links", h.Links.IssueLink)

	// Transactions
	private("GET /api/transactions", h.Transactions.ListTransactions)
	private("POST /api/transactions", h.Transactions.AddTransaction)
	private("GET /api/transactions/{code}", h.Transactions.GetTransaction)
	private("PATCH /api/transactions/{code}", h.Transactions.EditTransaction)
	private("DELETE /api/transactions/{code}", h.Transactions.DeleteTransaction)
	private("POST /api/transactions/{code}/commit", h.Transactions.CommitTransaction)

	// Budgets and categories
	private("GET /api/budgets", h.Budgets.ListBudgets)
	private("GET /api/budgets/summary", h.Budgets.Summary)
	private("GET /api/budgets/totals", h.Budgets.Totals)
	private("PUT /api/budgets/{category}", h.Budgets.SetBudget)
	private("DELETE /api/budgets/{category}", h.Budgets.RemoveBudget)
	private("GET /api/categories", h.Categories.ListCategories)

	// Imports
	private("GET /api/imports", h.Imports.ListImports)
	private("POST /api/imports", h.Imports.EnqueueImport)
	private("POST /api/imports/upload", h.Imports.UploadStatement)
	private("GET /api/imports/{id}", h.Imports.GetImport)

	// Actions
	private("POST /api/actions", h.Actions.ProposeAction)
	private("GET /api/actions/{id}", h.Actions.GetAction)
	private("POST /api/actions/{id}/execute", h.Actions.ExecuteAction)
	private("POST /api/actions/{id}/cancel", h.Actions.CancelAction)
	private("GET /api/conversations/{id}", h.Actions.GetConversation)
	private("DELETE /api/conversations/{id}", h.Actions.EndConversation)

	return mux
}
