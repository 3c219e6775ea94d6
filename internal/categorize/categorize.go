// Package categorize assigns vault categories to transactions using an
// external classifier. Bulk imports go through Pipeline, which splits the
// batch into chunks and classifies them with bounded concurrency; single
// free-text entries go through an ActionParser.
package categorize

import (
	"context"
	"errors"

	"github.com/dvloznov/vault-ledger/internal/ledger"
	"github.com/shopspring/decimal"
)

// DefaultModelName is the Gemini model used when none is configured.
const DefaultModelName = "gemini-2.5-flash"

const (
	DefaultChunkSize   = 5
	DefaultConcurrency = 5
)

var (
	// ErrClassificationFailed marks one chunk or one request that the
	// classifier could not answer. It never aborts a bulk import.
	ErrClassificationFailed = errors.New("classification failed")

	// ErrClassifierUnreachable marks a request that never got an answer from
	// the classifier, as opposed to an answer that could not be used.
	ErrClassifierUnreachable = errors.New("classifier unreachable")

	// ErrPipelineFailed means the classifier could not be reached at all:
	// none is configured, or every request failed to get an answer.
	ErrPipelineFailed = errors.New("categorization pipeline failed")
)

// TransactionInput is what the classifier sees of a transaction.
type TransactionInput struct {
	ID          string          `json:"id"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Kind        ledger.Kind     `json:"type"`
}

// Assignment maps one transaction to one category.
type Assignment struct {
	TransactionID string `json:"transactionId"`
	CategoryID    string `json:"categoryId"`
}

// ActionProposal is the classifier's reading of a free-text message such as
// "spent 12.40 on groceries". Matched is false when the text is not a
// transaction.
type ActionProposal struct {
	Matched     bool            `json:"matched"`
	Kind        ledger.Kind     `json:"type"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	CategoryID  string          `json:"categoryId"`
}

// BatchClassifier classifies one chunk of transactions.
type BatchClassifier interface {
	ClassifyTransactions(ctx context.Context, txs []TransactionInput, categories []ledger.Category, contextPrompt string) ([]Assignment, error)
}

// ActionParser turns a free-text message into a proposed transaction.
type ActionParser interface {
	ParseAction(ctx context.Context, text string, categories []ledger.Category, contextPrompt string) (*ActionProposal, error)
}
