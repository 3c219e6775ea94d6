package ledger

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Transaction is a single income or expense line of a vault.
//
// The amount is always a non-negative magnitude; its sign comes from Kind when
// a balance is computed. A transaction starts uncommitted and can be committed
// exactly once. Editable fields stay editable after commit.
type Transaction struct {
	id          string
	code        string
	vaultID     string
	amount      decimal.Decimal
	kind        Kind
	description string
	categoryID  string
	createdAt   time.Time
	date        time.Time
	committed   bool
}

// NewTransaction creates an uncommitted transaction with a fresh id and code.
// description and categoryID may be empty.
func NewTransaction(amount decimal.Decimal, kind Kind, description, categoryID string, date time.Time, vaultID string) (*Transaction, error) {
	if amount.IsNegative() {
		return nil, ErrInvalidAmount
	}
	if !kind.Valid() {
		return nil, fmt.Errorf("NewTransaction: %w: %q", ErrInvalidKind, kind)
	}
	if vaultID == "" {
		return nil, fmt.Errorf("NewTransaction: vault id is required")
	}

	now := time.Now().UTC()
	if date.IsZero() {
		date = now
	}

	return &Transaction{
		id:          uuid.NewString(),
		code:        NewTransactionCode(),
		vaultID:     vaultID,
		amount:      amount,
		kind:        kind,
		description: description,
		categoryID:  categoryID,
		createdAt:   now,
		date:        date,
	}, nil
}

func (t *Transaction) ID() string              { return t.id }
func (t *Transaction) Code() string            { return t.code }
func (t *Transaction) VaultID() string         { return t.vaultID }
func (t *Transaction) Amount() decimal.Decimal { return t.amount }
func (t *Transaction) Kind() Kind              { return t.kind }
func (t *Transaction) Description() string     { return t.description }
func (t *Transaction) CategoryID() string      { return t.categoryID }
func (t *Transaction) CreatedAt() time.Time    { return t.createdAt }
func (t *Transaction) Date() time.Time         { return t.date }
func (t *Transaction) IsCommitted() bool       { return t.committed }

// EntityID implements Entity.
func (t *Transaction) EntityID() string { return t.id }

// SignedAmount is +amount for income and -amount for expense.
func (t *Transaction) SignedAmount() decimal.Decimal {
	if t.kind == KindExpense {
		return t.amount.Neg()
	}
	return t.amount
}

// Commit marks the transaction as contributing to the balance.
// A second call fails with ErrAlreadyCommitted and changes nothing.
func (t *Transaction) Commit() error {
	if t.committed {
		return ErrAlreadyCommitted
	}
	t.committed = true
	return nil
}

// SetAmount replaces the magnitude. Negative values are rejected.
func (t *Transaction) SetAmount(amount decimal.Decimal) error {
	if amount.IsNegative() {
		return ErrInvalidAmount
	}
	t.amount = amount
	return nil
}

func (t *Transaction) SetDescription(description string) { t.description = description }

func (t *Transaction) SetCategory(categoryID string) { t.categoryID = categoryID }

func (t *Transaction) SetDate(date time.Time) { t.date = date }

// SetKind flips the direction of the transaction.
func (t *Transaction) SetKind(kind Kind) error {
	if !kind.Valid() {
		return ErrInvalidKind
	}
	t.kind = kind
	return nil
}

// TransactionPatch carries the fields of an edit. Nil fields are left untouched.
type TransactionPatch struct {
	Amount      *decimal.Decimal
	Description *string
	CategoryID  *string
	Date        *time.Time
	Kind        *Kind
}

// apply validates the whole patch first so a rejected edit leaves t unchanged.
func (p TransactionPatch) apply(t *Transaction) error {
	if p.Amount != nil && p.Amount.IsNegative() {
		return ErrInvalidAmount
	}
	if p.Kind != nil && !p.Kind.Valid() {
		return ErrInvalidKind
	}

	if p.Amount != nil {
		t.amount = *p.Amount
	}
	if p.Description != nil {
		t.description = *p.Description
	}
	if p.CategoryID != nil {
		t.categoryID = *p.CategoryID
	}
	if p.Date != nil {
		t.date = *p.Date
	}
	if p.Kind != nil {
		t.kind = *p.Kind
	}
	return nil
}

// TransactionRecord is the plain-data form of a Transaction used by
// persistence adapters and API responses.
type TransactionRecord struct {
	ID          string          `json:"id"`
	Code        string          `json:"code"`
	VaultID     string          `json:"vault_id"`
	Amount      decimal.Decimal `json:"amount"`
	Kind        Kind            `json:"kind"`
	Description string          `json:"description,omitempty"`
	CategoryID  string          `json:"category_id,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	Date        time.Time       `json:"date"`
	IsCommitted bool            `json:"is_committed"`
}

// Record returns a copy of the transaction state.
func (t *Transaction) Record() TransactionRecord {
	return TransactionRecord{
		ID:          t.id,
		Code:        t.code,
		VaultID:     t.vaultID,
		Amount:      t.amount,
		Kind:        t.kind,
		Description: t.description,
		CategoryID:  t.categoryID,
		CreatedAt:   t.createdAt,
		Date:        t.date,
		IsCommitted: t.committed,
	}
}

// TransactionFromRecord rebuilds a transaction loaded from storage.
func TransactionFromRecord(r TransactionRecord) *Transaction {
	return &Transaction{
		id:          r.ID,
		code:        r.Code,
		vaultID:     r.VaultID,
		amount:      r.Amount,
		kind:        r.Kind,
		description: r.Description,
		categoryID:  r.CategoryID,
		createdAt:   r.CreatedAt,
		date:        r.Date,
		committed:   r.IsCommitted,
	}
}
