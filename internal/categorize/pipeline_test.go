package categorize

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/dvloznov/vault-ledger/internal/ledger"
	"github.com/dvloznov/vault-ledger/internal/logger"
	"github.com/shopspring/decimal"
)

// MockBatchClassifier is a mock implementation of BatchClassifier for testing.
type MockBatchClassifier struct {
	ClassifyTransactionsFunc func(ctx context.Context, txs []TransactionInput, categories []ledger.Category, contextPrompt string) ([]Assignment, error)
}

func (m *MockBatchClassifier) ClassifyTransactions(ctx context.Context, txs []TransactionInput, categories []ledger.Category, contextPrompt string) ([]Assignment, error) {
	if m.ClassifyTransactionsFunc != nil {
		return m.ClassifyTransactionsFunc(ctx, txs, categories, contextPrompt)
	}
	return nil, nil
}

var testCategories = []ledger.Category{
	{ID: "c-food", Name: "Food", Code: "FOOD", TransactionKind: ledger.CategoryExpense},
	{ID: "c-rent", Name: "Rent", Code: "RENT", TransactionKind: ledger.CategoryExpense},
}

func quietContext() context.Context {
	return logger.WithContext(context.Background(), logger.NewWithWriter(io.Discard))
}

func inputs(n int) []TransactionInput {
	out := make([]TransactionInput, n)
	for i := range out {
		out[i] = TransactionInput{
			ID:          fmt.Sprintf("tx-%02d", i),
			Description: fmt.Sprintf("purchase %d", i),
			Amount:      decimal.NewFromInt(int64(i + 1)),
			Kind:        ledger.KindExpense,
		}
	}
	return out
}

// assignAll maps every transaction of the chunk to c-food.
func assignAll(txs []TransactionInput) []Assignment {
	out := make([]Assignment, 0, len(txs))
	for _, tx := range txs {
		out = append(out, Assignment{TransactionID: tx.ID, CategoryID: "c-food"})
	}
	return out
}

func TestPipeline_OneFailingChunkOutOfThree(t *testing.T) {
	classifier := &MockBatchClassifier{
		ClassifyTransactionsFunc: func(ctx context.Context, txs []TransactionInput, _ []ledger.Category, _ string) ([]Assignment, error) {
			if txs[0].ID == "tx-05" {
				return nil, errors.New("model unavailable")
			}
			return assignAll(txs), nil
		},
	}

	p := NewPipeline(classifier, WithChunkSize(5), WithConcurrency(5))
	res, err := p.Categorize(quietContext(), inputs(12), testCategories, "")
	if err != nil {
		t.Fatalf("Categorize failed: %v", err)
	}

	if res.TotalChunks != 3 {
		t.Errorf("Expected 3 chunks, got %d", res.TotalChunks)
	}
	if res.FailedChunks != 1 {
		t.Errorf("Expected 1 failed chunk, got %d", res.FailedChunks)
	}
	if len(res.Assignments) != 7 {
		t.Errorf("Expected 7 categorized transactions, got %d", len(res.Assignments))
	}
	for i := 5; i < 10; i++ {
		if _, ok := res.Assignments[fmt.Sprintf("tx-%02d", i)]; ok {
			t.Errorf("Expected tx-%02d from failed chunk to be uncategorized", i)
		}
	}
}

func TestPipeline_EachChunkSentOnceWithContext(t *testing.T) {
	var (
		mu      sync.Mutex
		calls   int
		prompts []string
	)
	classifier := &MockBatchClassifier{
		ClassifyTransactionsFunc: func(ctx context.Context, txs []TransactionInput, cats []ledger.Category, contextPrompt string) ([]Assignment, error) {
			mu.Lock()
			calls++
			prompts = append(prompts, contextPrompt)
			mu.Unlock()
			if len(cats) != len(testCategories) {
				t.Errorf("Expected %d categories, got %d", len(testCategories), len(cats))
			}
			if len(txs) > 4 {
				t.Errorf("Expected chunks of at most 4, got %d", len(txs))
			}
			return nil, errors.New("answer could not be parsed")
		},
	}

	p := NewPipeline(classifier, WithChunkSize(4))
	res, err := p.Categorize(quietContext(), inputs(9), testCategories, "we are two students")
	if err != nil {
		t.Fatalf("Expected failing chunks to leave transactions uncategorized, got %v", err)
	}
	if calls != 3 {
		t.Errorf("Expected 3 classifier calls with no retry, got %d", calls)
	}
	if res.FailedChunks != 3 || len(res.Assignments) != 0 {
		t.Errorf("Expected 3 failed chunks and no assignments, got %+v", res)
	}
	for _, got := range prompts {
		if got != "we are two students" {
			t.Errorf("Expected context prompt to be forwarded, got %q", got)
		}
	}
}

func TestPipeline_UnreachableClassifier(t *testing.T) {
	unreachable := fmt.Errorf("dial tcp: connection refused: %w", ErrClassifierUnreachable)

	tests := []struct {
		name     string
		classify func(txs []TransactionInput) ([]Assignment, error)
		wantErr  bool
		wantCats int
	}{
		{
			name:     "every call unreachable",
			classify: func([]TransactionInput) ([]Assignment, error) { return nil, unreachable },
			wantErr:  true,
		},
		{
			name: "one chunk reached but unusable",
			classify: func(txs []TransactionInput) ([]Assignment, error) {
				if txs[0].ID == "tx-00" {
					return nil, fmt.Errorf("%w: bad JSON", ErrClassificationFailed)
				}
				return nil, unreachable
			},
		},
		{
			name: "one chunk categorized",
			classify: func(txs []TransactionInput) ([]Assignment, error) {
				if txs[0].ID == "tx-05" {
					return assignAll(txs), nil
				}
				return nil, unreachable
			},
			wantCats: 5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			classifier := &MockBatchClassifier{
				ClassifyTransactionsFunc: func(_ context.Context, txs []TransactionInput, _ []ledger.Category, _ string) ([]Assignment, error) {
					return tt.classify(txs)
				},
			}
			res, err := NewPipeline(classifier).Categorize(quietContext(), inputs(12), testCategories, "")
			if tt.wantErr {
				if !errors.Is(err, ErrPipelineFailed) {
					t.Fatalf("Expected ErrPipelineFailed, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if len(res.Assignments) != tt.wantCats {
				t.Errorf("Expected %d assignments, got %d", tt.wantCats, len(res.Assignments))
			}
		})
	}
}

func TestPipeline_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(quietContext())
	cancel()

	classifier := &MockBatchClassifier{
		ClassifyTransactionsFunc: func(ctx context.Context, _ []TransactionInput, _ []ledger.Category, _ string) ([]Assignment, error) {
			return nil, fmt.Errorf("%w: %v", ErrClassifierUnreachable, ctx.Err())
		},
	}
	_, err := NewPipeline(classifier).Categorize(ctx, inputs(3), testCategories, "")
	if !errors.Is(err, ErrPipelineFailed) {
		t.Errorf("Expected ErrPipelineFailed for a cancelled run, got %v", err)
	}
}

func TestPipeline_DropsCategoryOfWrongKind(t *testing.T) {
	categories := append([]ledger.Category{
		{ID: "c-salary", Name: "Salary", Code: "SALARY", TransactionKind: ledger.CategoryIncome},
		{ID: "c-other", Name: "Other", Code: "OTHER", TransactionKind: ledger.CategoryBoth},
	}, testCategories...)

	txs := inputs(3)
	txs[2].Kind = ledger.KindIncome

	classifier := &MockBatchClassifier{
		ClassifyTransactionsFunc: func(context.Context, []TransactionInput, []ledger.Category, string) ([]Assignment, error) {
			return []Assignment{
				{TransactionID: "tx-00", CategoryID: "c-salary"},
				{TransactionID: "tx-01", CategoryID: "c-other"},
				{TransactionID: "tx-02", CategoryID: "c-food"},
			}, nil
		},
	}

	res, err := NewPipeline(classifier).Categorize(quietContext(), txs, categories, "")
	if err != nil {
		t.Fatalf("Categorize failed: %v", err)
	}
	if len(res.Assignments) != 1 || res.Assignments["tx-01"] != "c-other" {
		t.Errorf("Expected only tx-01 -> c-other, got %v", res.Assignments)
	}
}

func TestPipeline_NilClassifier(t *testing.T) {
	_, err := NewPipeline(nil).Categorize(quietContext(), inputs(3), testCategories, "")
	if !errors.Is(err, ErrPipelineFailed) {
		t.Errorf("Expected ErrPipelineFailed, got %v", err)
	}
}

func TestPipeline_EmptyBatch(t *testing.T) {
	res, err := NewPipeline(&MockBatchClassifier{}).Categorize(quietContext(), nil, testCategories, "")
	if err != nil {
		t.Fatalf("Expected no error for empty batch, got %v", err)
	}
	if res.TotalChunks != 0 || len(res.Assignments) != 0 {
		t.Errorf("Expected empty result, got %+v", res)
	}
}

func TestPipeline_DropsInvalidAssignments(t *testing.T) {
	classifier := &MockBatchClassifier{
		ClassifyTransactionsFunc: func(ctx context.Context, txs []TransactionInput, _ []ledger.Category, _ string) ([]Assignment, error) {
			return []Assignment{
				{TransactionID: txs[0].ID, CategoryID: "c-rent"},
				{TransactionID: txs[1].ID, CategoryID: "c-unknown"},
				{TransactionID: "tx-from-elsewhere", CategoryID: "c-food"},
				{TransactionID: txs[2].ID, CategoryID: " food "},
			}, nil
		},
	}

	res, err := NewPipeline(classifier).Categorize(quietContext(), inputs(3), testCategories, "")
	if err != nil {
		t.Fatalf("Categorize failed: %v", err)
	}

	want := map[string]string{"tx-00": "c-rent", "tx-02": "c-food"}
	if len(res.Assignments) != len(want) {
		t.Fatalf("Expected %d assignments, got %v", len(want), res.Assignments)
	}
	for id, cat := range want {
		if res.Assignments[id] != cat {
			t.Errorf("Assignments[%s] = %q, want %q", id, res.Assignments[id], cat)
		}
	}
}

func TestChunk(t *testing.T) {
	tests := []struct {
		name  string
		n     int
		size  int
		sizes []int
	}{
		{name: "exact", n: 10, size: 5, sizes: []int{5, 5}},
		{name: "remainder", n: 12, size: 5, sizes: []int{5, 5, 2}},
		{name: "smaller than size", n: 3, size: 5, sizes: []int{3}},
		{name: "empty", n: 0, size: 5, sizes: nil},
		{name: "invalid size", n: 2, size: 0, sizes: []int{1, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunks := Chunk(make([]int, tt.n), tt.size)
			if len(chunks) != len(tt.sizes) {
				t.Fatalf("Expected %d chunks, got %d", len(tt.sizes), len(chunks))
			}
			for i, c := range chunks {
				if len(c) != tt.sizes[i] {
					t.Errorf("chunk %d has %d items, want %d", i, len(c), tt.sizes[i])
				}
			}
		})
	}
}
