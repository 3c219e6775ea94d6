// Package store declares the persistence ports of the ledger.
package store

import (
	"context"

	"github.com/dvloznov/vault-ledger/internal/ledger"
)

// VaultRepository loads and saves whole vaults.
//
// Save persists the vault header and the collapsed changes of both trackers,
// then clears the trackers. When Save fails the trackers are left untouched
// so the same diff can be retried.
type VaultRepository interface {
	// Create stores a brand new vault with its current content.
	Create(ctx context.Context, v *ledger.Vault) error

	// Load returns the vault with the given id, or ledger.ErrNotFound.
	Load(ctx context.Context, vaultID string) (*ledger.Vault, error)

	// LoadByToken returns the vault owning the bearer token, or ledger.ErrNotFound.
	LoadByToken(ctx context.Context, token string) (*ledger.Vault, error)

	// Save flushes the pending changes of v.
	Save(ctx context.Context, v *ledger.Vault) error
}

// CategorySource is read access to the category reference data.
type CategorySource interface {
	// ListCategories returns the categories available to a vault.
	ListCategories(ctx context.Context, vaultID string) ([]ledger.Category, error)
	FindCategoryByID(ctx context.Context, id string) (ledger.Category, error)
	FindCategoryByCode(ctx context.Context, code string) (ledger.Category, error)
}

// CategoryWriter seeds and maintains categories.
type CategoryWriter interface {
	UpsertCategory(ctx context.Context, c ledger.Category) error
}

// Categories is a category store that can be both read and seeded.
type Categories interface {
	CategorySource
	CategoryWriter
}

// SeedCategories upserts the default categories into w.
func SeedCategories(ctx context.Context, w CategoryWriter) error {
	for _, c := range DefaultCategories() {
		if err := w.UpsertCategory(ctx, c); err != nil {
			return err
		}
	}
	return nil
}

// DefaultCategories is the category set a fresh installation starts with.
func DefaultCategories() []ledger.Category {
	return []ledger.Category{
		{ID: "housing", Name: "Housing", Code: "HOUSING", Description: "Rent, mortgage, building fees, repairs", TransactionKind: ledger.CategoryExpense},
		{ID: "utilities", Name: "Utilities", Code: "UTILITIES", Description: "Electricity, gas, water, internet, phone", TransactionKind: ledger.CategoryExpense},
		{ID: "groceries", Name: "Groceries", Code: "GROCERIES", Description: "Supermarkets and food shopping", TransactionKind: ledger.CategoryExpense},
		{ID: "eating-out", Name: "Eating out", Code: "EATING_OUT", Description: "Restaurants, cafes, take-away, delivery", TransactionKind: ledger.CategoryExpense},
		{ID: "transport", Name: "Transport", Code: "TRANSPORT", Description: "Public transit, taxi, fuel, parking", TransactionKind: ledger.CategoryExpense},
		{ID: "health", Name: "Health", Code: "HEALTH", Description: "Pharmacy, doctors, insurance", TransactionKind: ledger.CategoryExpense},
		{ID: "entertainment", Name: "Entertainment", Code: "ENTERTAINMENT", Description: "Streaming, cinema, events, hobbies", TransactionKind: ledger.CategoryExpense},
		{ID: "shopping", Name: "Shopping", Code: "SHOPPING", Description: "Clothes, electronics, home goods", TransactionKind: ledger.CategoryExpense},
		{ID: "travel", Name: "Travel", Code: "TRAVEL", Description: "Flights, hotels, holidays", TransactionKind: ledger.CategoryExpense},
		{ID: "salary", Name: "Salary", Code: "SALARY", Description: "Wages and payroll", TransactionKind: ledger.CategoryIncome},
		{ID: "refunds", Name: "Refunds", Code: "REFUNDS", Description: "Refunds and reimbursements", TransactionKind: ledger.CategoryIncome},
		{ID: "transfers", Name: "Transfers", Code: "TRANSFERS", Description: "Transfers between own accounts or people", TransactionKind: ledger.CategoryBoth},
		{ID: "other", Name: "Other", Code: "OTHER", Description: "Anything that fits nowhere else", TransactionKind: ledger.CategoryBoth},
	}
}
