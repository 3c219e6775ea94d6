// Package sqlite persists vaults and categories in a SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dvloznov/vault-ledger/internal/ledger"
	"github.com/dvloznov/vault-ledger/internal/logger"
	"github.com/dvloznov/vault-ledger/internal/store"
	"github.com/shopspring/decimal"

	_ "modernc.org/sqlite"
)

const timeLayout = time.RFC3339Nano

// Repository implements store.VaultRepository and store.Categories.
type Repository struct {
	db *sql.DB
}

// Open creates the database directory if needed, opens dbPath and runs the
// embedded migrations.
func Open(dbPath string) (*Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// one writer at a time; SQLite serializes writes anyway
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Create implements store.VaultRepository.
func (r *Repository) Create(ctx context.Context, v *ledger.Vault) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		h := v.Record()
		_, err := tx.ExecContext(ctx,
			`INSERT INTO vaults (id, token, created_at, custom_prompt) VALUES (?, ?, ?, ?)`,
			h.ID, h.Token, h.CreatedAt.UTC().Format(timeLayout), h.CustomPrompt)
		if err != nil {
			return fmt.Errorf("insert vault: %w", err)
		}
		return r.flush(ctx, tx, v)
	}, v)
}

// Load implements store.VaultRepository.
func (r *Repository) Load(ctx context.Context, vaultID string) (*ledger.Vault, error) {
	return r.load(ctx, `SELECT id, token, created_at, custom_prompt FROM vaults WHERE id = ?`, vaultID)
}

// LoadByToken implements store.VaultRepository.
func (r *Repository) LoadByToken(ctx context.Context, token string) (*ledger.Vault, error) {
	return r.load(ctx, `SELECT id, token, created_at, custom_prompt FROM vaults WHERE token = ?`, token)
}

func (r *Repository) load(ctx context.Context, query string, arg string) (*ledger.Vault, error) {
	var (
		h         ledger.VaultRecord
		createdAt string
	)
	err := r.db.QueryRowContext(ctx, query, arg).Scan(&h.ID, &h.Token, &createdAt, &h.CustomPrompt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ledger.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load vault: %w", err)
	}
	if h.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return nil, fmt.Errorf("load vault: created_at: %w", err)
	}

	txs, err := r.loadTransactions(ctx, h.ID)
	if err != nil {
		return nil, err
	}
	budgets, err := r.loadBudgets(ctx, h.ID)
	if err != nil {
		return nil, err
	}
	return ledger.RestoreVault(h, txs, budgets), nil
}

func (r *Repository) loadTransactions(ctx context.Context, vaultID string) ([]ledger.TransactionRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, code, vault_id, amount, kind, description, category_id, created_at, date, is_committed
		FROM transactions WHERE vault_id = ? ORDER BY seq`, vaultID)
	if err != nil {
		return nil, fmt.Errorf("load transactions: %w", err)
	}
	defer rows.Close()

	var out []ledger.TransactionRecord
	for rows.Next() {
		var (
			rec                         ledger.TransactionRecord
			amount, kind, created, date string
		)
		if err := rows.Scan(&rec.ID, &rec.Code, &rec.VaultID, &amount, &kind, &rec.Description,
			&rec.CategoryID, &created, &date, &rec.IsCommitted); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		rec.Kind = ledger.Kind(kind)
		if rec.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("transaction %s amount: %w", rec.ID, err)
		}
		if rec.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
			return nil, fmt.Errorf("transaction %s created_at: %w", rec.ID, err)
		}
		if rec.Date, err = time.Parse(timeLayout, date); err != nil {
			return nil, fmt.Errorf("transaction %s date: %w", rec.ID, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *Repository) loadBudgets(ctx context.Context, vaultID string) ([]ledger.Budget, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT b.category_id, b.amount,
		       COALESCE(c.name, ''), COALESCE(c.code, ''), COALESCE(c.description, ''), COALESCE(c.transaction_kind, '')
		FROM budgets b LEFT JOIN categories c ON c.id = b.category_id
		WHERE b.vault_id = ?`, vaultID)
	if err != nil {
		return nil, fmt.Errorf("load budgets: %w", err)
	}
	defer rows.Close()

	var out []ledger.Budget
	for rows.Next() {
		var (
			b      ledger.Budget
			amount string
			kind   string
		)
		if err := rows.Scan(&b.Category.ID, &amount, &b.Category.Name, &b.Category.Code, &b.Category.Description, &kind); err != nil {
			return nil, fmt.Errorf("scan budget: %w", err)
		}
		b.Category.TransactionKind = ledger.CategoryKind(kind)
		if b.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("budget %s amount: %w", b.Category.ID, err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// Save implements store.VaultRepository. The header and every change are
// written in one SQL transaction.
func (r *Repository) Save(ctx context.Context, v *ledger.Vault) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		h := v.Record()
		res, err := tx.ExecContext(ctx, `UPDATE vaults SET custom_prompt = ? WHERE id = ?`, h.CustomPrompt, h.ID)
		if err != nil {
			return fmt.Errorf("update vault: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("update vault %s: %w", h.ID, ledger.ErrNotFound)
		}
		return r.flush(ctx, tx, v)
	}, v)
}

// inTx runs fn in a transaction and clears the trackers of v once it commits.
func (r *Repository) inTx(ctx context.Context, fn func(tx *sql.Tx) error, v *ledger.Vault) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	v.TransactionsTracker().Clear()
	v.BudgetsTracker().Clear()
	return nil
}

func (r *Repository) flush(ctx context.Context, tx *sql.Tx, v *ledger.Vault) error {
	log := logger.FromContext(ctx)

	txChanges := v.TransactionsTracker().Changes().Collapse()
	for _, t := range append(txChanges.New, txChanges.Dirty...) {
		rec := t.Record()
		_, err := tx.ExecContext(ctx, `
			INSERT INTO transactions (id, code, vault_id, amount, kind, description, category_id, created_at, date, is_committed, seq)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM transactions WHERE vault_id = ?))
			ON CONFLICT (id) DO UPDATE SET
				amount = excluded.amount,
				kind = excluded.kind,
				description = excluded.description,
				category_id = excluded.category_id,
				date = excluded.date,
				is_committed = excluded.is_committed`,
			rec.ID, rec.Code, rec.VaultID, rec.Amount.String(), string(rec.Kind), rec.Description, rec.CategoryID,
			rec.CreatedAt.UTC().Format(timeLayout), rec.Date.UTC().Format(timeLayout), rec.IsCommitted, rec.VaultID)
		if err != nil {
			return fmt.Errorf("upsert transaction %s: %w", rec.ID, err)
		}
	}
	for _, t := range txChanges.Deleted {
		if _, err := tx.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, t.ID()); err != nil {
			return fmt.Errorf("delete transaction %s: %w", t.ID(), err)
		}
	}

	budgetChanges := v.BudgetsTracker().Changes().Collapse()
	for _, b := range append(budgetChanges.New, budgetChanges.Dirty...) {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO budgets (vault_id, category_id, amount) VALUES (?, ?, ?)
			ON CONFLICT (vault_id, category_id) DO UPDATE SET amount = excluded.amount`,
			v.ID(), b.Category.ID, b.Amount.String())
		if err != nil {
			return fmt.Errorf("upsert budget %s: %w", b.Category.ID, err)
		}
	}
	for _, b := range budgetChanges.Deleted {
		if _, err := tx.ExecContext(ctx, `DELETE FROM budgets WHERE vault_id = ? AND category_id = ?`, v.ID(), b.Category.ID); err != nil {
			return fmt.Errorf("delete budget %s: %w", b.Category.ID, err)
		}
	}

	log.Debug().
		Str("vault_id", v.ID()).
		Int("tx_upserts", len(txChanges.New)+len(txChanges.Dirty)).
		Int("tx_deletes", len(txChanges.Deleted)).
		Int("budget_upserts", len(budgetChanges.New)+len(budgetChanges.Dirty)).
		Int("budget_deletes", len(budgetChanges.Deleted)).
		Msg("vault changes flushed")
	return nil
}

// Ensure Repository implements the store interfaces.
var (
	_ store.VaultRepository = (*Repository)(nil)
	_ store.Categories      = (*Repository)(nil)
)
