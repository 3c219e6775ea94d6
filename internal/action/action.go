// Package action holds transactions proposed from free text until a user
// approves or cancels them.
package action

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dvloznov/vault-ledger/internal/ledger"
	"github.com/dvloznov/vault-ledger/internal/vaults"
)

var (
	// ErrNotPending is returned when an action has already reached a terminal state.
	ErrNotPending = errors.New("action is not pending")

	// ErrNoMatch is returned when the text does not describe a transaction.
	ErrNoMatch = errors.New("text does not describe a transaction")
)

// Type mirrors the direction of the proposed transaction.
type Type string

const (
	TypeIncome  Type = "income"
	TypeExpense Type = "expense"
)

// Status of an action. Pending is the only non-terminal state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusExecuted  Status = "executed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s != StatusPending
}

// Payload is the typed content of an action.
type Payload interface {
	Type() Type
	Draft() vaults.Draft
}

// IncomePayload proposes an income transaction.
type IncomePayload struct {
	Transaction vaults.Draft `json:"transaction"`
}

func (p IncomePayload) Type() Type          { return TypeIncome }
func (p IncomePayload) Draft() vaults.Draft { return p.Transaction }

// ExpensePayload proposes an expense transaction.
type ExpensePayload struct {
	Transaction vaults.Draft `json:"transaction"`
}

func (p ExpensePayload) Type() Type          { return TypeExpense }
func (p ExpensePayload) Draft() vaults.Draft { return p.Transaction }

// NewPayload wraps a draft in the payload matching its kind.
func NewPayload(d vaults.Draft) (Payload, error) {
	switch d.Kind {
	case ledger.KindIncome:
		return IncomePayload{Transaction: d}, nil
	case ledger.KindExpense:
		return ExpensePayload{Transaction: d}, nil
	}
	return nil, fmt.Errorf("NewPayload: %w: %q", ledger.ErrInvalidKind, d.Kind)
}

// Action is a pending operation on a vault.
type Action struct {
	ID        string
	VaultID   string
	Payload   Payload
	CreatedAt time.Time
	Status    Status

	// Set once the action has been handled.
	TransactionID string
	Error         string
}

// Type returns the payload type.
func (a *Action) Type() Type {
	if a.Payload == nil {
		return ""
	}
	return a.Payload.Type()
}

type actionJSON struct {
	ID            string          `json:"id"`
	VaultID       string          `json:"vault_id"`
	Type          Type            `json:"type"`
	Payload       json.RawMessage `json:"payload"`
	CreatedAt     time.Time       `json:"created_at"`
	Status        Status          `json:"status"`
	TransactionID string          `json:"transaction_id,omitempty"`
	Error         string          `json:"error,omitempty"`
}

// MarshalJSON writes the payload next to its type tag.
func (a Action) MarshalJSON() ([]byte, error) {
	payload, err := json.Marshal(a.Payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(actionJSON{
		ID:            a.ID,
		VaultID:       a.VaultID,
		Type:          a.Type(),
		Payload:       payload,
		CreatedAt:     a.CreatedAt,
		Status:        a.Status,
		TransactionID: a.TransactionID,
		Error:         a.Error,
	})
}

// UnmarshalJSON picks the payload type from the type tag.
func (a *Action) UnmarshalJSON(data []byte) error {
	var raw actionJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var payload Payload
	switch raw.Type {
	case TypeIncome:
		var p IncomePayload
		if err := json.Unmarshal(raw.Payload, &p); err != nil {
			return fmt.Errorf("income payload: %w", err)
		}
		payload = p
	case TypeExpense:
		var p ExpensePayload
		if err := json.Unmarshal(raw.Payload, &p); err != nil {
			return fmt.Errorf("expense payload: %w", err)
		}
		payload = p
	default:
		return fmt.Errorf("unknown action type %q", raw.Type)
	}

	*a = Action{
		ID:            raw.ID,
		VaultID:       raw.VaultID,
		Payload:       payload,
		CreatedAt:     raw.CreatedAt,
		Status:        raw.Status,
		TransactionID: raw.TransactionID,
		Error:         raw.Error,
	}
	return nil
}
