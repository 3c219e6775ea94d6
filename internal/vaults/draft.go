package vaults

import (
	"time"

	"github.com/dvloznov/vault-ledger/internal/ledger"
	"github.com/shopspring/decimal"
)

// Draft is a transaction that has not been added to a vault yet.
type Draft struct {
	Amount      decimal.Decimal `json:"amount"`
	Kind        ledger.Kind     `json:"kind"`
	Description string          `json:"description"`
	CategoryID  string          `json:"category_id,omitempty"`
	Date        time.Time       `json:"date"`
}
