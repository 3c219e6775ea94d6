package handlers

import (
	"net/http"

	"github.com/dvloznov/vault-ledger/internal/api/middleware"
	"github.com/dvloznov/vault-ledger/internal/ledger"
	"github.com/dvloznov/vault-ledger/internal/sessions"
	"github.com/dvloznov/vault-ledger/internal/vaults"
)

// LinksHandler hands out single-use link tokens that let another client,
// such as a browser opened from a chat, obtain the vault token.
type LinksHandler struct {
	tokens *sessions.AccessTokenStore
	vaults *vaults.Service
}

// NewLinksHandler creates a new links handler.
func NewLinksHandler(tokens *sessions.AccessTokenStore, svc *vaults.Service) *LinksHandler {
	return &LinksHandler{tokens: tokens, vaults: svc}
}

// IssueLink handles POST /api/links
func (h *LinksHandler) IssueLink(w http.ResponseWriter, r *http.Request) {
	id, ok := vaultID(w, r)
	if !ok {
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, map[string]string{
		"link_token": h.tokens.Issue(id),
	})
}

// RedeemLink handles POST /api/links/redeem. A link token works once.
func (h *LinksHandler) RedeemLink(w http.ResponseWriter, r *http.Request) {
	var req struct {
		LinkToken string `json:"link_token"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	id, err := h.tokens.Redeem(req.LinkToken)
	if err != nil {
		middleware.WriteError(w, http.StatusUnauthorized, "Invalid or expired link")
		return
	}

	var token string
	err = h.vaults.View(r.Context(), id, func(v *ledger.Vault) error {
		token = v.Token()
		return nil
	})
	if err != nil {
		writeServiceError(w, r, err, "Failed to redeem link")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]string{
		"vault_id": id,
		"token":    token,
	})
}
