package categorize

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dvloznov/vault-ledger/internal/ledger"
	"github.com/dvloznov/vault-ledger/internal/logger"
	"github.com/dvloznov/vault-ledger/internal/queue"
)

// Pipeline categorizes a batch of transactions chunk by chunk.
type Pipeline struct {
	classifier  BatchClassifier
	chunkSize   int
	concurrency int
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithChunkSize sets how many transactions go into one classifier request.
func WithChunkSize(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.chunkSize = n
		}
	}
}

// WithConcurrency sets how many classifier requests may run at once.
func WithConcurrency(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

func NewPipeline(classifier BatchClassifier, opts ...Option) *Pipeline {
	p := &Pipeline{
		classifier:  classifier,
		chunkSize:   DefaultChunkSize,
		concurrency: DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Result is the outcome of a categorization run.
type Result struct {
	// Assignments maps transaction id to category id. Transactions from
	// failed chunks, or the classifier left out, are absent.
	Assignments  map[string]string
	TotalChunks  int
	FailedChunks int
}

// Categorize classifies txs against categories. Each chunk is sent once; a
// failing chunk only leaves its transactions uncategorized, whether the
// classifier errored or answered with something unusable. The run fails with
// ErrPipelineFailed only when there is no classifier, or when no chunk
// reached it because every call was unreachable or the context ended.
func (p *Pipeline) Categorize(ctx context.Context, txs []TransactionInput, categories []ledger.Category, contextPrompt string) (*Result, error) {
	log := logger.FromContext(ctx)

	if p.classifier == nil {
		return nil, fmt.Errorf("Categorize: %w: no classifier configured", ErrPipelineFailed)
	}

	chunks := Chunk(txs, p.chunkSize)
	result := &Result{
		Assignments: make(map[string]string, len(txs)),
		TotalChunks: len(chunks),
	}
	if len(chunks) == 0 {
		return result, nil
	}

	validator := NewCategoryValidator(categories)

	var (
		mu             sync.Mutex
		reached        int
		unreachableErr error
	)
	q := queue.New(chunks, p.concurrency, func(ctx context.Context, chunk []TransactionInput, index int) ([]Assignment, error) {
		assignments, err := p.classifier.ClassifyTransactions(ctx, chunk, categories, contextPrompt)

		mu.Lock()
		if errors.Is(err, ErrClassifierUnreachable) {
			unreachableErr = err
		} else {
			reached++
		}
		mu.Unlock()

		if err != nil {
			return nil, fmt.Errorf("%w: chunk %d: %v", ErrClassificationFailed, index, err)
		}
		return validator.Filter(ctx, chunk, assignments), nil
	})

	results := q.Run(ctx)
	result.FailedChunks = results.Failed()

	for _, assignments := range results.Ordered() {
		for _, a := range assignments {
			result.Assignments[a.TransactionID] = a.CategoryID
		}
	}

	log.Info().
		Int("transactions", len(txs)).
		Int("chunks", result.TotalChunks).
		Int("failed_chunks", result.FailedChunks).
		Int("categorized", len(result.Assignments)).
		Msg("categorization finished")

	if reached == 0 {
		cause := unreachableErr
		if err := ctx.Err(); err != nil {
			cause = err
		}
		if cause != nil {
			return result, fmt.Errorf("Categorize: %w: no chunk reached the classifier: %v", ErrPipelineFailed, cause)
		}
	}
	return result, nil
}

// Chunk splits items into consecutive slices of at most size elements.
func Chunk[T any](items []T, size int) [][]T {
	if size < 1 {
		size = 1
	}
	var out [][]T
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		out = append(out, items[start:end])
	}
	return out
}
