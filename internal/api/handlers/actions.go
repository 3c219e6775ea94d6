package handlers

import (
	"net/http"
	"strings"

	"github.com/dvloznov/vault-ledger/internal/action"
	"github.com/dvloznov/vault-ledger/internal/api/middleware"
	"github.com/dvloznov/vault-ledger/internal/logger"
	"github.com/dvloznov/vault-ledger/internal/sessions"
)

// ActionsHandler turns free text into pending actions and runs them.
type ActionsHandler struct {
	actions       *action.Service
	conversations *sessions.ConversationStore
}

// NewActionsHandler creates a new actions handler. conversations may be nil,
// which disables conversation tracking.
func NewActionsHandler(actions *action.Service, conversations *sessions.ConversationStore) *ActionsHandler {
	return &ActionsHandler{actions: actions, conversations: conversations}
}

// conversationState is what a client gets back when it resumes a
// conversation, for example after reconnecting mid-confirmation.
type conversationState struct {
	PendingActionID string `json:"pending_action_id"`
}

func conversationKey(vaultID, conversationID string) string {
	return vaultID + "/" + conversationID
}

// ProposeAction handles POST /api/actions
func (h *ActionsHandler) ProposeAction(w http.ResponseWriter, r *http.Request) {
	id, ok := vaultID(w, r)
	if !ok {
		return
	}
	var req struct {
		Text           string `json:"text"`
		ConversationID string `json:"conversation_id"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		middleware.WriteError(w, http.StatusBadRequest, "text is required")
		return
	}

	a, err := h.actions.Propose(r.Context(), id, req.Text)
	if err != nil {
		writeServiceError(w, r, err, "Failed to propose action")
		return
	}
	if req.ConversationID != "" && h.conversations != nil {
		state := conversationState{PendingActionID: a.ID}
		if err := h.conversations.Save(conversationKey(id, req.ConversationID), state); err != nil {
			log := logger.FromContext(r.Context())
			log.Warn().Err(err).Msg("Failed to save conversation state")
		}
	}
	middleware.WriteJSON(w, http.StatusCreated, a)
}

// GetAction handles GET /api/actions/{id}
func (h *ActionsHandler) GetAction(w http.ResponseWriter, r *http.Request) {
	id, ok := vaultID(w, r)
	if !ok {
		return
	}

	a, err := h.actions.Get(r.Context(), id, r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err, "Failed to get action")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, a)
}

// ExecuteAction handles POST /api/actions/{id}/execute
func (h *ActionsHandler) ExecuteAction(w http.ResponseWriter, r *http.Request) {
	id, ok := vaultID(w, r)
	if !ok {
		return
	}

	a, err := h.actions.Execute(r.Context(), id, r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err, "Failed to execute action")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, a)
}

// CancelAction handles POST /api/actions/{id}/cancel
func (h *ActionsHandler) CancelAction(w http.ResponseWriter, r *http.Request) {
	id, ok := vaultID(w, r)
	if !ok {
		return
	}

	a, err := h.actions.Cancel(r.Context(), id, r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err, "Failed to cancel action")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, a)
}

// GetConversation handles GET /api/conversations/{id}. It returns the
// action the conversation is waiting on.
func (h *ActionsHandler) GetConversation(w http.ResponseWriter, r *http.Request) {
	id, ok := vaultID(w, r)
	if !ok {
		return
	}
	if h.conversations == nil {
		middleware.WriteError(w, http.StatusNotFound, "Not found")
		return
	}

	var state conversationState
	found, err := h.conversations.Load(conversationKey(id, r.PathValue("id")), &state)
	if err != nil {
		writeServiceError(w, r, err, "Failed to load conversation")
		return
	}
	if !found {
		middleware.WriteError(w, http.StatusNotFound, "Not found")
		return
	}

	a, err := h.actions.Get(r.Context(), id, state.PendingActionID)
	if err != nil {
		writeServiceError(w, r, err, "Failed to load conversation")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"conversation_id": r.PathValue("id"),
		"action":          a,
	})
}

// EndConversation handles DELETE /api/conversations/{id}
func (h *ActionsHandler) EndConversation(w http.ResponseWriter, r *http.Request) {
	id, ok := vaultID(w, r)
	if !ok {
		return
	}
	if h.conversations != nil {
		h.conversations.End(conversationKey(id, r.PathValue("id")))
	}
	w.WriteHeader(http.StatusNoContent)
}
