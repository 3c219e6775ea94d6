package ledger

import "errors"

// Ledger error kinds. Callers branch on them with errors.Is; the messages are
// safe to show to end users verbatim.
var (
	ErrNotFound         = errors.New("not found")
	ErrAlreadyCommitted = errors.New("transaction already committed")
	ErrNegativeBudget   = errors.New("budget amount cannot be negative")
	ErrInvalidAmount    = errors.New("amount must be a non-negative magnitude")
	ErrInvalidKind      = errors.New("invalid transaction kind")
	ErrVaultMismatch    = errors.New("transaction belongs to another vault")
)
