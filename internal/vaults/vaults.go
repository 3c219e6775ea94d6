// Package vaults serializes load, mutate and save of a vault.
package vaults

import (
	"context"
	"fmt"
	"sync"

	"github.com/dvloznov/vault-ledger/internal/ledger"
	"github.com/dvloznov/vault-ledger/internal/logger"
	"github.com/dvloznov/vault-ledger/internal/store"
)

// KeyedMutex hands out one mutex per key and forgets it once nobody holds it.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

// Lock blocks until key is free and returns the matching unlock func.
func (k *KeyedMutex) Lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*keyedLock)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

// Service is the entry point for every vault mutation. Within one process,
// operations on the same vault never interleave; across processes the last
// saved write wins.
type Service struct {
	repo       store.VaultRepository
	categories store.CategorySource
	locks      KeyedMutex
}

func NewService(repo store.VaultRepository, categories store.CategorySource) *Service {
	return &Service{repo: repo, categories: categories}
}

// Categories returns the category source the service was built with.
func (s *Service) Categories() store.CategorySource {
	return s.categories
}

// Create makes and stores a new vault.
func (s *Service) Create(ctx context.Context, customPrompt string) (*ledger.Vault, error) {
	v := ledger.NewVault(customPrompt)
	if err := s.repo.Create(ctx, v); err != nil {
		return nil, fmt.Errorf("Create: %w", err)
	}
	log := logger.FromContext(ctx)
	log.Info().Str("vault_id", v.ID()).Msg("vault created")
	return v, nil
}

// WithVault loads the vault, runs fn and saves the result. When fn fails
// nothing is saved and its error is returned unwrapped.
func (s *Service) WithVault(ctx context.Context, vaultID string, fn func(v *ledger.Vault) error) error {
	unlock := s.locks.Lock(vaultID)
	defer unlock()

	v, err := s.repo.Load(ctx, vaultID)
	if err != nil {
		return fmt.Errorf("WithVault: load %s: %w", vaultID, err)
	}
	if err := fn(v); err != nil {
		return err
	}
	if err := s.repo.Save(ctx, v); err != nil {
		return fmt.Errorf("WithVault: save %s: %w", vaultID, err)
	}
	return nil
}

// View loads the vault and runs fn without saving.
func (s *Service) View(ctx context.Context, vaultID string, fn func(v *ledger.Vault) error) error {
	unlock := s.locks.Lock(vaultID)
	defer unlock()

	v, err := s.repo.Load(ctx, vaultID)
	if err != nil {
		return fmt.Errorf("View: load %s: %w", vaultID, err)
	}
	return fn(v)
}

// ResolveToken returns the id of the vault owning token.
func (s *Service) ResolveToken(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", ledger.ErrNotFound
	}
	v, err := s.repo.LoadByToken(ctx, token)
	if err != nil {
		return "", fmt.Errorf("ResolveToken: %w", err)
	}
	return v.ID(), nil
}

// AddTransaction creates a transaction in the vault, committing it when
// commit is set. A category id, when given, must exist.
func (s *Service) AddTransaction(ctx context.Context, vaultID string, draft Draft, commit bool) (ledger.TransactionRecord, error) {
	var rec ledger.TransactionRecord
	if draft.CategoryID != "" && s.categories != nil {
		if _, err := s.categories.FindCategoryByID(ctx, draft.CategoryID); err != nil {
			return rec, fmt.Errorf("AddTransaction: category %s: %w", draft.CategoryID, err)
		}
	}
	err := s.WithVault(ctx, vaultID, func(v *ledger.Vault) error {
		tx, err := ledger.NewTransaction(draft.Amount, draft.Kind, draft.Description, draft.CategoryID, draft.Date, v.ID())
		if err != nil {
			return err
		}
		if err := v.AddTransaction(tx); err != nil {
			return err
		}
		if commit {
			if err := v.CommitTransaction(tx.ID()); err != nil {
				return err
			}
		}
		rec, _ = v.FindTransactionByID(tx.ID())
		return nil
	})
	if err == nil {
		log := logger.FromContext(ctx)
		log.Info().
			Str("vault_id", vaultID).
			Str("transaction_id", rec.ID).
			Bool("committed", rec.IsCommitted).
			Msg("transaction added")
	}
	return rec, err
}
