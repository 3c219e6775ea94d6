package bigquery

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/vault-ledger/internal/ledger"
	"google.golang.org/api/iterator"
)

// ListCategories implements store.CategorySource. All vaults share one taxonomy.
func (r *Repository) ListCategories(ctx context.Context, vaultID string) ([]ledger.Category, error) {
	return r.queryCategories(ctx, "", nil)
}

// FindCategoryByID implements store.CategorySource.
func (r *Repository) FindCategoryByID(ctx context.Context, id string) (ledger.Category, error) {
	cats, err := r.queryCategories(ctx, "WHERE category_id = @id", []bigquery.QueryParameter{{Name: "id", Value: id}})
	if err != nil {
		return ledger.Category{}, err
	}
	if len(cats) == 0 {
		return ledger.Category{}, ledger.ErrNotFound
	}
	return cats[0], nil
}

// FindCategoryByCode implements store.CategorySource. Codes compare case-insensitively.
func (r *Repository) FindCategoryByCode(ctx context.Context, code string) (ledger.Category, error) {
	cats, err := r.queryCategories(ctx, "WHERE UPPER(code) = @code",
		[]bigquery.QueryParameter{{Name: "code", Value: strings.ToUpper(strings.TrimSpace(code))}})
	if err != nil {
		return ledger.Category{}, err
	}
	if len(cats) == 0 {
		return ledger.Category{}, ledger.ErrNotFound
	}
	return cats[0], nil
}

func (r *Repository) queryCategories(ctx context.Context, where string, params []bigquery.QueryParameter) ([]ledger.Category, error) {
	q := r.client.Query(`
		SELECT
		  category_id,
		  name,
		  code,
		  description,
		  transaction_kind
		FROM ` + r.table("categories") + `
		` + where + `
		ORDER BY name
	`)
	q.Parameters = params

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("queryCategories: query read: %w", err)
	}

	var out []ledger.Category
	for {
		var row CategoryRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("queryCategories: iter next: %w", err)
		}
		out = append(out, categoryFromRow(row))
	}
	return out, nil
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

	q := r.client.Query(`
		MERGE ` + r.table("categories") + ` T
		USING (SELECT @id AS category_id, @name AS name, @code AS code, @description AS description, @kind AS transaction_kind) S
		ON T.category_id = S.category_id
		WHEN MATCHED THEN UPDATE SET
		  name = S.name, code = S.code, description = NULLIF(S.description, ''), transaction_kind = S.transaction_kind
		WHEN NOT MATCHED THEN INSERT (category_id, name, code, description, transaction_kind)
		  VALUES (S.category_id, S.name, S.code, NULLIF(S.description, ''), S.transaction_kind)
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "id", Value: c.ID},
		{Name: "name", Value: c.Name},
		{Name: "code", Value: c.Code},
		{Name: "description", Value: c.Description},
		{Name: "kind", Value: string(kind)},
	}

	if err := runAndWait(ctx, q); err != nil {
		return fmt.Errorf("UpsertCategory: %w", err)
	}
	return nil
}
