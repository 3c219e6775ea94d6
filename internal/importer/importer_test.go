package importer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/dvloznov/vault-ledger/internal/categorize"
	"github.com/dvloznov/vault-ledger/internal/infra/memory"
	"github.com/dvloznov/vault-ledger/internal/ledger"
	"github.com/dvloznov/vault-ledger/internal/statement"
	"github.com/dvloznov/vault-ledger/internal/store"
	"github.com/dvloznov/vault-ledger/internal/vaults"
	"github.com/shopspring/decimal"
	"google.golang.org/genai"
)

// MockBatchClassifier is a test double for categorize.BatchClassifier.
type MockBatchClassifier struct {
	ClassifyTransactionsFunc func(ctx context.Context, txs []categorize.TransactionInput, categories []ledger.Category, contextPrompt string) ([]categorize.Assignment, error)
}

func (m *MockBatchClassifier) ClassifyTransactions(ctx context.Context, txs []categorize.TransactionInput, categories []ledger.Category, contextPrompt string) ([]categorize.Assignment, error) {
	return m.ClassifyTransactionsFunc(ctx, txs, categories, contextPrompt)
}

type fixture struct {
	importer *Importer
	vaults   *vaults.Service
	vaultID  string
}

func newFixture(t *testing.T, classifier categorize.BatchClassifier) fixture {
	t.Helper()
	ctx := context.Background()
	mem := memory.NewStore()
	if err := store.SeedCategories(ctx, mem); err != nil {
		t.Fatal(err)
	}
	svc := vaults.NewService(mem, mem)
	v, err := svc.Create(ctx, "student flat")
	if err != nil {
		t.Fatal(err)
	}
	pipeline := categorize.NewPipeline(classifier, categorize.WithChunkSize(5), categorize.WithConcurrency(5))
	return fixture{
		importer: New(svc, mem, pipeline, statement.NewFetcher()),
		vaults:   svc,
		vaultID:  v.ID(),
	}
}

func lines(n int) []statement.Line {
	out := make([]statement.Line, n)
	for i := range out {
		out[i] = statement.Line{
			Date:        time.Date(2025, time.March, i+1, 0, 0, 0, 0, time.UTC),
			Description: fmt.Sprintf("line %d", i),
			Amount:      decimal.NewFromInt(10),
			Kind:        ledger.KindExpense,
		}
	}
	return out
}

func TestImport_PartialCategorization(t *testing.T) {
	ctx := context.Background()
	var (
		mu        sync.Mutex
		gotPrompt string
	)
	classifier := &MockBatchClassifier{
		ClassifyTransactionsFunc: func(ctx context.Context, txs []categorize.TransactionInput, categories []ledger.Category, contextPrompt string) ([]categorize.Assignment, error) {
			mu.Lock()
			gotPrompt = contextPrompt
			mu.Unlock()
			if txs[0].Description == "line 5" {
				return nil, errors.New("model overloaded")
			}
			out := make([]categorize.Assignment, len(txs))
			for i, tx := range txs {
				out[i] = categorize.Assignment{TransactionID: tx.ID, CategoryID: "groceries"}
			}
			return out, nil
		},
	}
	f := newFixture(t, classifier)

	report, err := f.importer.Import(ctx, f.vaultID, lines(12))
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	want := Report{Imported: 12, Categorized: 7, Uncategorized: 5, FailedChunks: 1}
	if *report != want {
		t.Errorf("Report = %+v, want %+v", *report, want)
	}
	if gotPrompt != "student flat" {
		t.Errorf("Expected vault custom prompt to reach the classifier, got %q", gotPrompt)
	}

	_ = f.vaults.View(ctx, f.vaultID, func(v *ledger.Vault) error {
		txs := v.Transactions()
		if len(txs) != 12 {
			t.Fatalf("Expected 12 transactions, got %d", len(txs))
		}
		for _, tx := range txs {
			if !tx.IsCommitted {
				t.Errorf("Expected imported transaction %s to be committed", tx.Code)
			}
		}
		if got := v.Balance(); !got.Equal(decimal.NewFromInt(-120)) {
			t.Errorf("Expected balance -120, got %s", got)
		}
		return nil
	})
}

// MockContentGenerator stands in for the Gemini models client.
type MockContentGenerator struct {
	GenerateContentFunc func(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

func (m *MockContentGenerator) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	return m.GenerateContentFunc(ctx, model, contents, config)
}

func TestImport_SingleFailedChunkImportsUncategorized(t *testing.T) {
	ctx := context.Background()
	classifier := categorize.NewGeminiClassifierWithGenerator(&MockContentGenerator{
		GenerateContentFunc: func(context.Context, string, []*genai.Content, *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
			return &genai.GenerateContentResponse{
				Candidates: []*genai.Candidate{{Content: &genai.Content{
					Role:  "model",
					Parts: []*genai.Part{{Text: "Sorry, I cannot help with that."}},
				}}},
			}, nil
		},
	}, "")
	f := newFixture(t, classifier)

	report, err := f.importer.Import(ctx, f.vaultID, lines(3))
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	want := Report{Imported: 3, Categorized: 0, Uncategorized: 3, FailedChunks: 1}
	if *report != want {
		t.Errorf("Report = %+v, want %+v", *report, want)
	}
	_ = f.vaults.View(ctx, f.vaultID, func(v *ledger.Vault) error {
		if got := len(v.Transactions()); got != 3 {
			t.Errorf("Expected 3 stored transactions, got %d", got)
		}
		return nil
	})
}

func TestImport_UnreachableClassifierWritesNothing(t *testing.T) {
	ctx := context.Background()
	classifier := &MockBatchClassifier{
		ClassifyTransactionsFunc: func(context.Context, []categorize.TransactionInput, []ledger.Category, string) ([]categorize.Assignment, error) {
			return nil, fmt.Errorf("dial tcp: i/o timeout: %w", categorize.ErrClassifierUnreachable)
		},
	}
	f := newFixture(t, classifier)

	_, err := f.importer.Import(ctx, f.vaultID, lines(7))
	if !errors.Is(err, categorize.ErrPipelineFailed) {
		t.Fatalf("Expected ErrPipelineFailed, got %v", err)
	}
	_ = f.vaults.View(ctx, f.vaultID, func(v *ledger.Vault) error {
		if len(v.Transactions()) != 0 {
			t.Error("Expected no transactions after a failed import")
		}
		return nil
	})
}

func TestImport_EmptyAndUnknownVault(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	report, err := f.importer.Import(ctx, f.vaultID, nil)
	if err != nil || report.Imported != 0 {
		t.Errorf("Expected empty report, got %+v, %v", report, err)
	}
	if _, err := f.importer.Import(ctx, "missing", lines(1)); !errors.Is(err, ledger.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestImportURI_LocalFile(t *testing.T) {
	ctx := context.Background()
	classifier := &MockBatchClassifier{
		ClassifyTransactionsFunc: func(ctx context.Context, txs []categorize.TransactionInput, categories []ledger.Category, contextPrompt string) ([]categorize.Assignment, error) {
			return []categorize.Assignment{{TransactionID: txs[0].ID, CategoryID: "SALARY"}}, nil
		},
	}
	f := newFixture(t, classifier)

	path := filepath.Join(t.TempDir(), "march.csv")
	csv := "Date,Description,Amount\n2025-03-01,SALARY ACME,2500\n2025-03-02,TESCO,-40\n"
	if err := os.WriteFile(path, []byte(csv), 0o644); err != nil {
		t.Fatal(err)
	}

	report, err := f.importer.ImportURI(ctx, f.vaultID, path)
	if err != nil {
		t.Fatalf("ImportURI failed: %v", err)
	}
	if report.Imported != 2 || report.Categorized != 1 {
		t.Errorf("Unexpected report %+v", *report)
	}
	_ = f.vaults.View(ctx, f.vaultID, func(v *ledger.Vault) error {
		if got := v.Balance(); !got.Equal(decimal.NewFromInt(2460)) {
			t.Errorf("Expected balance 2460, got %s", got)
		}
		return nil
	})
}
