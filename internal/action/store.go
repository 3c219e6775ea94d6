package action

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dvloznov/vault-ledger/internal/cache"
	"github.com/dvloznov/vault-ledger/internal/ledger"
)

// DefaultTTL is how long an action is kept before it is forgotten.
const DefaultTTL = 24 * time.Hour

// Store keeps actions.
type Store interface {
	Save(ctx context.Context, a *Action) error
	Get(ctx context.Context, id string) (*Action, error)
}

// MemoryStore is a Store backed by an expiring LRU cache. Stored actions
// are copies so callers cannot mutate them in place.
type MemoryStore struct {
	mu      sync.Mutex
	actions *cache.LRU[Action]
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{actions: cache.NewLRU[Action](10000, ttl)}
}

// Save implements Store.
func (s *MemoryStore) Save(ctx context.Context, a *Action) error {
	if a.ID == "" {
		return fmt.Errorf("Save: action id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actions.Set(a.ID, *a)
	return nil
}

// Get implements Store.
func (s *MemoryStore) Get(ctx context.Context, id string) (*Action, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.actions.Get(id)
	if !ok {
		return nil, fmt.Errorf("Get: action %s: %w", id, ledger.ErrNotFound)
	}
	return &a, nil
}

// Cleaner exposes the underlying cache to a cache.Manager.
func (s *MemoryStore) Cleaner() cache.Cleaner { return s.actions }
