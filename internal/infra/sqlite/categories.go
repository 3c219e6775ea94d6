package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/dvloznov/vault-ledger/internal/ledger"
)

const categoryColumns = `id, name, code, description, transaction_kind`

func scanCategory(row interface{ Scan(...any) error }) (ledger.Category, error) {
	var (
		c    ledger.Category
		kind string
	)
	if err := row.Scan(&c.ID, &c.Name, &c.Code, &c.Description, &kind); err != nil {
		return ledger.Category{}, err
	}
	c.TransactionKind = ledger.CategoryKind(kind)
	return c, nil
}

// ListCategories implements store.CategorySource. Categories are global.
func (r *Repository) ListCategories(ctx context.Context, vaultID string) ([]ledger.Category, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+categoryColumns+` FROM categories ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("ListCategories: %w", err)
	}
	defer rows.Close()

	var out []ledger.Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("ListCategories: scan: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// FindCategoryByID implements store.CategorySource.
func (r *Repository) FindCategoryByID(ctx context.Context, id string) (ledger.Category, error) {
	c, err := scanCategory(r.db.QueryRowContext(ctx, `SELECT `+categoryColumns+` FROM categories WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Category{}, ledger.ErrNotFound
	}
	if err != nil {
		return ledger.Category{}, fmt.Errorf("FindCategoryByID: %w", err)
	}
	return c, nil
}

// FindCategoryByCode implements store.CategorySource.
func (r *Repository) FindCategoryByCode(ctx context.Context, code string) (ledger.Category, error) {
	c, err := scanCategory(r.db.QueryRowContext(ctx,
		`SELECT `+categoryColumns+` FROM categories WHERE code = ? COLLATE NOCASE`, strings.TrimSpace(code)))
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Category{}, ledger.ErrNotFound
	}
	if err != nil {
		return ledger.Category{}, fmt.Errorf("FindCategoryByCode: %w", err)
	}
	return c, nil
}

// UpsertCategory implements store.CategoryWriter.
func (r *Repository) UpsertCategory(ctx context.Context, c ledger.Category) error {
	if c.ID == "" {
		return fmt.Errorf("UpsertCategory: category id is required")
	}
	kind := c.TransactionKind
	if kind == "" {
		kind = ledger.CategoryBoth
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO categories (`+categoryColumns+`) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			code = excluded.code,
			description = excluded.description,
			transaction_kind = excluded.transaction_kind`,
		c.ID, c.Name, c.Code, c.Description, string(kind))
	if err != nil {
		return fmt.Errorf("UpsertCategory: %w", err)
	}
	return nil
}
