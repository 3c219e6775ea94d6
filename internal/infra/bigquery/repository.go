// Package bigquery stores vaults in BigQuery tables. It suits deployments
// that already keep their finance data in a warehouse; writes go through DML
// so rows are never stuck in the streaming buffer.
package bigquery

import (
	"context"
	"fmt"
	"math/big"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/dvloznov/vault-ledger/internal/ledger"
	"github.com/dvloznov/vault-ledger/internal/logger"
	"github.com/dvloznov/vault-ledger/internal/store"
	"google.golang.org/api/iterator"
)

// Repository implements store.VaultRepository and store.Categories on
// BigQuery. It holds a shared client to avoid a connection per call.
type Repository struct {
	client    *bigquery.Client
	projectID string
	datasetID string
}

// NewRepository creates a client for projectID using Application Default
// Credentials. Tables live in datasetID.
func NewRepository(ctx context.Context, projectID, datasetID string) (*Repository, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewRepository: creating client: %w", err)
	}
	return &Repository{client: client, projectID: projectID, datasetID: datasetID}, nil
}

// Close closes the BigQuery client connection.
func (r *Repository) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

func (r *Repository) table(name string) string {
	return "`" + r.projectID + "." + r.datasetID + "." + name + "`"
}

// Create implements store.VaultRepository.
func (r *Repository) Create(ctx context.Context, v *ledger.Vault) error {
	return r.save(ctx, v, true)
}

// Save implements store.VaultRepository. The header and all changes run as
// one multi-statement transaction.
func (r *Repository) Save(ctx context.Context, v *ledger.Vault) error {
	return r.save(ctx, v, false)
}

func (r *Repository) save(ctx context.Context, v *ledger.Vault, create bool) error {
	header := v.Record()
	txChanges := v.TransactionsTracker().Changes().Collapse()
	budgetChanges := v.BudgetsTracker().Changes().Collapse()

	upserts := make([]txParam, 0, len(txChanges.New)+len(txChanges.Dirty))
	for _, t := range append(txChanges.New, txChanges.Dirty...) {
		upserts = append(upserts, newTxParam(t.Record()))
	}
	txDeletes := make([]string, 0, len(txChanges.Deleted))
	for _, t := range txChanges.Deleted {
		txDeletes = append(txDeletes, t.ID())
	}
	budgetUpserts := make([]budgetParam, 0, len(budgetChanges.New)+len(budgetChanges.Dirty))
	for _, b := range append(budgetChanges.New, budgetChanges.Dirty...) {
		budgetUpserts = append(budgetUpserts, budgetParam{CategoryID: b.Category.ID, Amount: toRat(b.Amount)})
	}
	budgetDeletes := make([]string, 0, len(budgetChanges.Deleted))
	for _, b := range budgetChanges.Deleted {
		budgetDeletes = append(budgetDeletes, b.Category.ID)
	}

	q := r.client.Query(r.saveScript(create))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "vault_id", Value: header.ID},
		{Name: "token", Value: header.Token},
		{Name: "created_ts", Value: header.CreatedAt.UTC()},
		{Name: "custom_prompt", Value: header.CustomPrompt},
		{Name: "tx_upserts", Value: upserts},
		{Name: "tx_deletes", Value: txDeletes},
		{Name: "budget_upserts", Value: budgetUpserts},
		{Name: "budget_deletes", Value: budgetDeletes},
	}

	if err := runAndWait(ctx, q); err != nil {
		return fmt.Errorf("Save: vault %s: %w", header.ID, err)
	}

	log := logger.FromContext(ctx)
	log.Debug().
		Str("vault_id", header.ID).
		Int("tx_upserts", len(upserts)).
		Int("tx_deletes", len(txDeletes)).
		Int("budget_upserts", len(budgetUpserts)).
		Int("budget_deletes", len(budgetDeletes)).
		Msg("vault changes flushed to BigQuery")

	v.TransactionsTracker().Clear()
	v.BudgetsTracker().Clear()
	return nil
}

// txParam is the STRUCT element of the @tx_upserts array parameter.
type txParam struct {
	TransactionID   string     `bigquery:"transaction_id"`
	Code            string     `bigquery:"code"`
	Amount          *big.Rat   `bigquery:"amount"`
	Kind            string     `bigquery:"kind"`
	Description     string     `bigquery:"description"`
	CategoryID      string     `bigquery:"category_id"`
	TransactionDate civil.Date `bigquery:"transaction_date"`
	IsCommitted     bool       `bigquery:"is_committed"`
	CreatedTS       string     `bigquery:"created_ts"`
}

func newTxParam(rec ledger.TransactionRecord) txParam {
	row := transactionToRow(rec)
	return txParam{
		TransactionID:   row.TransactionID,
		Code:            row.Code,
		Amount:          row.Amount,
		Kind:            row.Kind,
		Description:     row.Description.StringVal,
		CategoryID:      row.CategoryID.StringVal,
		TransactionDate: row.TransactionDate,
		IsCommitted:     row.IsCommitted,
		CreatedTS:       row.CreatedTS.Format("2006-01-02 15:04:05.999999 UTC"),
	}
}

// budgetParam is the STRUCT element of the @budget_upserts array parameter.
type budgetParam struct {
	CategoryID string   `bigquery:"category_id"`
	Amount     *big.Rat `bigquery:"amount"`
}

func (r *Repository) saveScript(create bool) string {
	header := `UPDATE ` + r.table("vaults") + ` SET custom_prompt = @custom_prompt WHERE vault_id = @vault_id;
IF @@row_count = 0 THEN
  RAISE USING MESSAGE = 'vault not found';
END IF;`
	if create {
		header = `INSERT INTO ` + r.table("vaults") + ` (vault_id, token, created_ts, custom_prompt)
VALUES (@vault_id, @token, @created_ts, @custom_prompt);`
	}

	return `BEGIN TRANSACTION;
` + header + `

MERGE ` + r.table("transactions") + ` T
USING UNNEST(@tx_upserts) S
ON T.transaction_id = S.transaction_id
WHEN MATCHED THEN UPDATE SET
  amount = S.amount,
  kind = S.kind,
  description = NULLIF(S.description, ''),
  category_id = NULLIF(S.category_id, ''),
  transaction_date = S.transaction_date,
  is_committed = S.is_committed
WHEN NOT MATCHED THEN INSERT
  (transaction_id, code, vault_id, amount, kind, description, category_id, transaction_date, is_committed, created_ts)
  VALUES (S.transaction_id, S.code, @vault_id, S.amount, S.kind, NULLIF(S.description, ''), NULLIF(S.category_id, ''),
          S.transaction_date, S.is_committed, TIMESTAMP(S.created_ts));

DELETE FROM ` + r.table("transactions") + `
WHERE vault_id = @vault_id AND transaction_id IN UNNEST(@tx_deletes);

MERGE ` + r.table("budgets") + ` T
USING UNNEST(@budget_upserts) S
ON T.vault_id = @vault_id AND T.category_id = S.category_id
WHEN MATCHED THEN UPDATE SET amount = S.amount
WHEN NOT MATCHED THEN INSERT (vault_id, category_id, amount) VALUES (@vault_id, S.category_id, S.amount);

DELETE FROM ` + r.table("budgets") + `
WHERE vault_id = @vault_id AND category_id IN UNNEST(@budget_deletes);

COMMIT TRANSACTION;`
}

// Load implements store.VaultRepository.
func (r *Repository) Load(ctx context.Context, vaultID string) (*ledger.Vault, error) {
	return r.load(ctx, "vault_id", vaultID)
}

// LoadByToken implements store.VaultRepository.
func (r *Repository) LoadByToken(ctx context.Context, token string) (*ledger.Vault, error) {
	return r.load(ctx, "token", token)
}

func (r *Repository) load(ctx context.Context, column, value string) (*ledger.Vault, error) {
	q := r.client.Query(`
		SELECT vault_id, token, created_ts, custom_prompt
		FROM ` + r.table("vaults") + `
		WHERE ` + column + ` = @value
		LIMIT 1
	`)
	q.Parameters = []bigquery.QueryParameter{{Name: "value", Value: value}}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("Load: query read: %w", err)
	}
	var row VaultRow
	err = it.Next(&row)
	if err == iterator.Done {
		return nil, ledger.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("Load: iter next: %w", err)
	}

	txs, err := r.loadTransactions(ctx, row.VaultID)
	if err != nil {
		return nil, err
	}
	budgets, err := r.loadBudgets(ctx, row.VaultID)
	if err != nil {
		return nil, err
	}

	header := ledger.VaultRecord{
		ID:           row.VaultID,
		Token:        row.Token,
		CreatedAt:    row.CreatedTS,
		CustomPrompt: row.CustomPrompt,
	}
	return ledger.RestoreVault(header, txs, budgets), nil
}

func (r *Repository) loadTransactions(ctx context.Context, vaultID string) ([]ledger.TransactionRecord, error) {
	q := r.client.Query(`
		SELECT
			transaction_id,
			code,
			vault_id,
			amount,
			kind,
			description,
			category_id,
			transaction_date,
			is_committed,
			created_ts
		FROM ` + r.table("transactions") + `
		WHERE vault_id = @vault_id
		ORDER BY created_ts, transaction_id
	`)
	q.Parameters = []bigquery.QueryParameter{{Name: "vault_id", Value: vaultID}}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("loadTransactions: query read: %w", err)
	}

	var out []ledger.TransactionRecord
	for {
		var row TransactionRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("loadTransactions: iter next: %w", err)
		}
		rec, err := transactionFromRow(row)
		if err != nil {
			return nil, fmt.Errorf("loadTransactions: %w", err)
		}
		out = append(out, rec)
	}
	return out, nil
}

func (r *Repository) loadBudgets(ctx context.Context, vaultID string) ([]ledger.Budget, error) {
	q := r.client.Query(`
		SELECT
			b.vault_id,
			b.category_id,
			b.amount,
			c.name AS category_name,
			c.code AS category_code,
			c.description AS category_description,
			c.transaction_kind AS category_kind
		FROM ` + r.table("budgets") + ` b
		LEFT JOIN ` + r.table("categories") + ` c ON c.category_id = b.category_id
		WHERE b.vault_id = @vault_id
	`)
	q.Parameters = []bigquery.QueryParameter{{Name: "vault_id", Value: vaultID}}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("loadBudgets: query read: %w", err)
	}

	var out []ledger.Budget
	for {
		var row BudgetRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("loadBudgets: iter next: %w", err)
		}
		b, err := budgetFromRow(row)
		if err != nil {
			return nil, fmt.Errorf("loadBudgets: %w", err)
		}
		out = append(out, b)
	}
	return out, nil
}

func runAndWait(ctx context.Context, q *bigquery.Query) error {
	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("run query: %w", err)
	}

	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("wait for job: %w", err)
	}

	if err := status.Err(); err != nil {
		return fmt.Errorf("job error: %w", err)
	}
	return nil
}

// Ensure Repository implements the store interfaces.
var (
	_ store.VaultRepository = (*Repository)(nil)
	_ store.Categories      = (*Repository)(nil)
)
