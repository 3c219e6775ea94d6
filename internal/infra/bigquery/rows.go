package bigquery

import (
	"fmt"
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/dvloznov/vault-ledger/internal/ledger"
	"github.com/shopspring/decimal"
)

// numericScale is the number of fractional digits of a BigQuery NUMERIC.
const numericScale = 9

type VaultRow struct {
	VaultID      string    `bigquery:"vault_id"`      // REQUIRED
	Token        string    `bigquery:"token"`         // REQUIRED
	CreatedTS    time.Time `bigquery:"created_ts"`    // REQUIRED
	CustomPrompt string    `bigquery:"custom_prompt"` // REQUIRED, may be empty
}

type TransactionRow struct {
	TransactionID string `bigquery:"transaction_id"` // REQUIRED
	Code          string `bigquery:"code"`           // REQUIRED
	VaultID       string `bigquery:"vault_id"`       // REQUIRED

	Amount *big.Rat `bigquery:"amount"` // REQUIRED NUMERIC, non-negative
	Kind   string   `bigquery:"kind"`   // REQUIRED: income | expense

	Description bigquery.NullString `bigquery:"description"` // NULLABLE
	CategoryID  bigquery.NullString `bigquery:"category_id"` // NULLABLE

	TransactionDate civil.Date `bigquery:"transaction_date"` // REQUIRED
	IsCommitted     bool       `bigquery:"is_committed"`     // REQUIRED
	CreatedTS       time.Time  `bigquery:"created_ts"`       // REQUIRED
}

type BudgetRow struct {
	VaultID    string   `bigquery:"vault_id"`    // REQUIRED
	CategoryID string   `bigquery:"category_id"` // REQUIRED
	Amount     *big.Rat `bigquery:"amount"`      // REQUIRED NUMERIC

	// joined from categories on load
	CategoryName        bigquery.NullString `bigquery:"category_name"`
	CategoryCode        bigquery.NullString `bigquery:"category_code"`
	CategoryDescription bigquery.NullString `bigquery:"category_description"`
	CategoryKind        bigquery.NullString `bigquery:"category_kind"`
}

type CategoryRow struct {
	CategoryID      string              `bigquery:"category_id"`      // REQUIRED
	Name            string              `bigquery:"name"`             // REQUIRED
	Code            string              `bigquery:"code"`             // REQUIRED
	Description     bigquery.NullString `bigquery:"description"`      // NULLABLE
	TransactionKind string              `bigquery:"transaction_kind"` // REQUIRED: income | expense | both
}

func nullString(s string) bigquery.NullString {
	return bigquery.NullString{StringVal: s, Valid: s != ""}
}

func toRat(d decimal.Decimal) *big.Rat {
	return d.Rat()
}

func fromRat(r *big.Rat) (decimal.Decimal, error) {
	if r == nil {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(r.FloatString(numericScale))
}

func transactionToRow(rec ledger.TransactionRecord) TransactionRow {
	return TransactionRow{
		TransactionID:   rec.ID,
		Code:            rec.Code,
		VaultID:         rec.VaultID,
		Amount:          toRat(rec.Amount),
		Kind:            string(rec.Kind),
		Description:     nullString(rec.Description),
		CategoryID:      nullString(rec.CategoryID),
		TransactionDate: civil.DateOf(rec.Date.UTC()),
		IsCommitted:     rec.IsCommitted,
		CreatedTS:       rec.CreatedAt.UTC(),
	}
}

func transactionFromRow(r TransactionRow) (ledger.TransactionRecord, error) {
	amount, err := fromRat(r.Amount)
	if err != nil {
		return ledger.TransactionRecord{}, fmt.Errorf("transaction %s amount: %w", r.TransactionID, err)
	}
	return ledger.TransactionRecord{
		ID:          r.TransactionID,
		Code:        r.Code,
		VaultID:     r.VaultID,
		Amount:      amount,
		Kind:        ledger.Kind(r.Kind),
		Description: r.Description.StringVal,
		CategoryID:  r.CategoryID.StringVal,
		CreatedAt:   r.CreatedTS,
		Date:        r.TransactionDate.In(time.UTC),
		IsCommitted: r.IsCommitted,
	}, nil
}

func budgetFromRow(r BudgetRow) (ledger.Budget, error) {
	amount, err := fromRat(r.Amount)
	if err != nil {
		return ledger.Budget{}, fmt.Errorf("budget %s amount: %w", r.CategoryID, err)
	}
	return ledger.Budget{
		Category: ledger.Category{
			ID:              r.CategoryID,
			Name:            r.CategoryName.StringVal,
			Code:            r.CategoryCode.StringVal,
			Description:     r.CategoryDescription.StringVal,
			TransactionKind: ledger.CategoryKind(r.CategoryKind.StringVal),
		},
		Amount: amount,
	}, nil
}

func categoryFromRow(r CategoryRow) ledger.Category {
	return ledger.Category{
		ID:              r.CategoryID,
		Name:            r.Name,
		Code:            r.Code,
		Description:     r.Description.StringVal,
		TransactionKind: ledger.CategoryKind(r.TransactionKind),
	}
}
