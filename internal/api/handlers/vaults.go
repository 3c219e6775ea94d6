package handlers

import (
	"net/http"
	"time"

	"github.com/dvloznov/vault-ledger/internal/api/middleware"
	"github.com/dvloznov/vault-ledger/internal/ledger"
	"github.com/dvloznov/vault-ledger/internal/vaults"
	"github.com/shopspring/decimal"
)

// VaultsHandler handles vault lifecycle endpoints.
type VaultsHandler struct {
	vaults *vaults.Service
}

// NewVaultsHandler creates a new vaults handler.
func NewVaultsHandler(svc *vaults.Service) *VaultsHandler {
	return &VaultsHandler{vaults: svc}
}

type vaultResponse struct {
	VaultID      string    `json:"vault_id"`
	Token        string    `json:"token,omitempty"`
	CustomPrompt string    `json:"custom_prompt"`
	CreatedAt    time.Time `json:"created_at"`
}

// CreateVault handles POST /api/vaults. The token in the response is the
// only credential for the new vault.
func (h *VaultsHandler) CreateVault(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CustomPrompt string `json:"custom_prompt"`
	}
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}

	v, err := h.vaults.Create(r.Context(), req.CustomPrompt)
	if err != nil {
		writeServiceError(w, r, err, "Failed to create vault")
		return
	}

	middleware.WriteJSON(w, http.StatusCreated, vaultResponse{
		VaultID:      v.ID(),
		Token:        v.Token(),
		CustomPrompt: v.CustomPrompt(),
		CreatedAt:    v.CreatedAt(),
	})
}

// GetVault handles GET /api/vault
func (h *VaultsHandler) GetVault(w http.ResponseWriter, r *http.Request) {
	id, ok := vaultID(w, r)
	if !ok {
		return
	}

	var resp vaultResponse
	err := h.vaults.View(r.Context(), id, func(v *ledger.Vault) error {
		resp = vaultResponse{VaultID: v.ID(), CustomPrompt: v.CustomPrompt(), CreatedAt: v.CreatedAt()}
		return nil
	})
	if err != nil {
		writeServiceError(w, r, err, "Failed to load vault")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, resp)
}

// UpdatePrompt handles PUT /api/vault/prompt
func (h *VaultsHandler) UpdatePrompt(w http.ResponseWriter, r *http.Request) {
	id, ok := vaultID(w, r)
	if !ok {
		return
	}
	var req struct {
		CustomPrompt string `json:"custom_prompt"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	err := h.vaults.WithVault(r.Context(), id, func(v *ledger.Vault) error {
		v.SetCustomPrompt(req.CustomPrompt)
		return nil
	})
	if err != nil {
		writeServiceError(w, r, err, "Failed to update prompt")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"custom_prompt": req.CustomPrompt})
}

// GetBalance handles GET /api/balance. Only committed transactions count.
func (h *VaultsHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	id, ok := vaultID(w, r)
	if !ok {
		return
	}

	var balance decimal.Decimal
	err := h.vaults.View(r.Context(), id, func(v *ledger.Vault) error {
		balance = v.Balance()
		return nil
	})
	if err != nil {
		writeServiceError(w, r, err, "Failed to compute balance")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]decimal.Decimal{"balance": balance})
}
