// Package sessions holds short-lived state that is not part of a vault:
// one-time link tokens and resumable conversation state.
package sessions

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dvloznov/vault-ledger/internal/cache"
	"github.com/dvloznov/vault-ledger/internal/ledger"
	"github.com/google/uuid"
)

const (
	DefaultLinkTokenTTL    = 15 * time.Minute
	DefaultConversationTTL = 30 * time.Minute

	maxEntries = 10000
)

// AccessTokenStore maps short-lived link tokens to vault ids. A link token
// lets a new client obtain the vault's bearer token once.
type AccessTokenStore struct {
	tokens *cache.LRU[string]
}

func NewAccessTokenStore(ttl time.Duration) *AccessTokenStore {
	if ttl <= 0 {
		ttl = DefaultLinkTokenTTL
	}
	return &AccessTokenStore{tokens: cache.NewLRU[string](maxEntries, ttl)}
}

// Issue creates a link token for vaultID.
func (s *AccessTokenStore) Issue(vaultID string) string {
	token := uuid.NewString()
	s.tokens.Set(token, vaultID)
	return token
}

// Redeem consumes token and returns its vault id. A token works once.
func (s *AccessTokenStore) Redeem(token string) (string, error) {
	vaultID, ok := s.tokens.Take(token)
	if !ok {
		return "", fmt.Errorf("Redeem: link token: %w", ledger.ErrNotFound)
	}
	return vaultID, nil
}

// Cleaner exposes the underlying cache to a cache.Manager.
func (s *AccessTokenStore) Cleaner() cache.Cleaner { return s.tokens }

// ConversationStore keeps opaque agent state keyed by conversation id so an
// interrupted exchange can be resumed. Every save refreshes the expiry.
type ConversationStore struct {
	states *cache.LRU[json.RawMessage]
}

func NewConversationStore(ttl time.Duration) *ConversationStore {
	if ttl <= 0 {
		ttl = DefaultConversationTTL
	}
	return &ConversationStore{states: cache.NewLRU[json.RawMessage](maxEntries, ttl)}
}

// Save stores state under conversationID.
func (s *ConversationStore) Save(conversationID string, state any) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("Save: encode conversation %s: %w", conversationID, err)
	}
	s.states.Set(conversationID, data)
	return nil
}

// Load decodes the state for conversationID into dst. It reports false
// when there is no live state.
func (s *ConversationStore) Load(conversationID string, dst any) (bool, error) {
	data, ok := s.states.Get(conversationID)
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, fmt.Errorf("Load: decode conversation %s: %w", conversationID, err)
	}
	return true, nil
}

// End drops the state of a finished conversation.
func (s *ConversationStore) End(conversationID string) {
	s.states.Delete(conversationID)
}

// Cleaner exposes the underlying cache to a cache.Manager.
func (s *ConversationStore) Cleaner() cache.Cleaner { return s.states }
