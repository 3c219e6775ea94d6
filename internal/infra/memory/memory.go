// Package memory keeps vaults and categories in process memory. It backs
// tests and single-process deployments without a database.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/dvloznov/vault-ledger/internal/ledger"
	"github.com/dvloznov/vault-ledger/internal/store"
)

type vaultRow struct {
	header       ledger.VaultRecord
	transactions map[string]ledger.TransactionRecord
	order        []string
	budgets      map[string]ledger.Budget
}

// Store implements store.VaultRepository and store.Categories.
// Rows are stored as copies, so a loaded vault never aliases stored state.
type Store struct {
	mu         sync.RWMutex
	vaults     map[string]*vaultRow
	tokens     map[string]string
	categories map[string]ledger.Category

	// FailSave makes the next Save fail. Tests use it to check that trackers survive.
	FailSave error
}

func NewStore() *Store {
	return &Store{
		vaults:     make(map[string]*vaultRow),
		tokens:     make(map[string]string),
		categories: make(map[string]ledger.Category),
	}
}

// Create implements store.VaultRepository.
func (s *Store) Create(ctx context.Context, v *ledger.Vault) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	header := v.Record()
	if _, exists := s.vaults[header.ID]; exists {
		return fmt.Errorf("Create: vault %s already exists", header.ID)
	}
	s.vaults[header.ID] = &vaultRow{
		header:       header,
		transactions: make(map[string]ledger.TransactionRecord),
		budgets:      make(map[string]ledger.Budget),
	}
	s.tokens[header.Token] = header.ID
	return s.flush(v)
}

// Load implements store.VaultRepository.
func (s *Store) Load(ctx context.Context, vaultID string) (*ledger.Vault, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row, ok := s.vaults[vaultID]
	if !ok {
		return nil, ledger.ErrNotFound
	}

	txs := make([]ledger.TransactionRecord, 0, len(row.order))
	for _, id := range row.order {
		txs = append(txs, row.transactions[id])
	}
	budgets := make([]ledger.Budget, 0, len(row.budgets))
	for _, b := range row.budgets {
		budgets = append(budgets, b)
	}
	return ledger.RestoreVault(row.header, txs, budgets), nil
}

// LoadByToken implements store.VaultRepository.
func (s *Store) LoadByToken(ctx context.Context, token string) (*ledger.Vault, error) {
	s.mu.RLock()
	id, ok := s.tokens[token]
	s.mu.RUnlock()
	if !ok {
		return nil, ledger.ErrNotFound
	}
	return s.Load(ctx, id)
}

// Save implements store.VaultRepository.
func (s *Store) Save(ctx context.Context, v *ledger.Vault) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailSave != nil {
		err := s.FailSave
		s.FailSave = nil
		return fmt.Errorf("Save: %w", err)
	}

	row, ok := s.vaults[v.ID()]
	if !ok {
		return fmt.Errorf("Save: %w: vault %s", ledger.ErrNotFound, v.ID())
	}
	row.header = v.Record()
	return s.flush(v)
}

// flush applies the collapsed tracker changes. Callers hold s.mu.
func (s *Store) flush(v *ledger.Vault) error {
	row := s.vaults[v.ID()]

	txChanges := v.TransactionsTracker().Changes().Collapse()
	for _, tx := range append(txChanges.New, txChanges.Dirty...) {
		rec := tx.Record()
		if _, exists := row.transactions[rec.ID]; !exists {
			row.order = append(row.order, rec.ID)
		}
		row.transactions[rec.ID] = rec
	}
	for _, tx := range txChanges.Deleted {
		delete(row.transactions, tx.ID())
		for i, id := range row.order {
			if id == tx.ID() {
				row.order = append(row.order[:i], row.order[i+1:]...)
				break
			}
		}
	}

	budgetChanges := v.BudgetsTracker().Changes().Collapse()
	for _, b := range append(budgetChanges.New, budgetChanges.Dirty...) {
		row.budgets[b.Category.ID] = *b
	}
	for _, b := range budgetChanges.Deleted {
		delete(row.budgets, b.Category.ID)
	}

	v.TransactionsTracker().Clear()
	v.BudgetsTracker().Clear()
	return nil
}

// ListCategories implements store.CategorySource. Every vault shares the
// same categories.
func (s *Store) ListCategories(ctx context.Context, vaultID string) ([]ledger.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ledger.Category, 0, len(s.categories))
	for _, c := range s.categories {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// FindCategoryByID implements store.CategorySource.
func (s *Store) FindCategoryByID(ctx context.Context, id string) (ledger.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.categories[id]
	if !ok {
		return ledger.Category{}, ledger.ErrNotFound
	}
	return c, nil
}

// FindCategoryByCode implements store.CategorySource. Codes compare
// case-insensitively.
func (s *Store) FindCategoryByCode(ctx context.Context, code string) (ledger.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, c := range s.categories {
		if strings.EqualFold(c.Code, strings.TrimSpace(code)) {
			return c, nil
		}
	}
	return ledger.Category{}, ledger.ErrNotFound
}

// UpsertCategory implements store.CategoryWriter.
func (s *Store) UpsertCategory(ctx context.Context, c ledger.Category) error {
	if c.ID == "" {
		return fmt.Errorf("UpsertCategory: category id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.categories[c.ID] = c
	return nil
}

// Ensure Store implements the store interfaces.
var (
	_ store.VaultRepository = (*Store)(nil)
	_ store.Categories      = (*Store)(nil)
)
