package action

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/dvloznov/vault-ledger/internal/categorize"
	"github.com/dvloznov/vault-ledger/internal/infra/memory"
	"github.com/dvloznov/vault-ledger/internal/ledger"
	"github.com/dvloznov/vault-ledger/internal/store"
	"github.com/dvloznov/vault-ledger/internal/vaults"
	"github.com/shopspring/decimal"
)

// MockActionParser is a test double for categorize.ActionParser.
type MockActionParser struct {
	ParseActionFunc func(ctx context.Context, text string, categories []ledger.Category, contextPrompt string) (*categorize.ActionProposal, error)
}

func (m *MockActionParser) ParseAction(ctx context.Context, text string, categories []ledger.Category, contextPrompt string) (*categorize.ActionProposal, error) {
	return m.ParseActionFunc(ctx, text, categories, contextPrompt)
}

func groceriesParser() *MockActionParser {
	return &MockActionParser{
		ParseActionFunc: func(ctx context.Context, text string, categories []ledger.Category, contextPrompt string) (*categorize.ActionProposal, error) {
			return &categorize.ActionProposal{
				Matched:     true,
				Kind:        ledger.KindExpense,
				Amount:      decimal.RequireFromString("12.40"),
				Description: text,
				CategoryID:  "GROCERIES",
			}, nil
		},
	}
}

func newTestService(t *testing.T, parser categorize.ActionParser) (*Service, *vaults.Service, string) {
	t.Helper()
	ctx := context.Background()
	mem := memory.NewStore()
	if err := store.SeedCategories(ctx, mem); err != nil {
		t.Fatal(err)
	}
	vs := vaults.NewService(mem, mem)
	v, err := vs.Create(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	return NewService(NewMemoryStore(0), parser, vs), vs, v.ID()
}

func balance(t *testing.T, vs *vaults.Service, vaultID string) decimal.Decimal {
	t.Helper()
	var b decimal.Decimal
	if err := vs.View(context.Background(), vaultID, func(v *ledger.Vault) error {
		b = v.Balance()
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	return b
}

func TestService_ProposeAndExecute(t *testing.T) {
	ctx := context.Background()
	svc, vs, vaultID := newTestService(t, groceriesParser())

	a, err := svc.Propose(ctx, vaultID, "spent 12.40 at the market")
	if err != nil {
		t.Fatalf("Propose failed: %v", err)
	}
	if a.Status != StatusPending || a.Type() != TypeExpense {
		t.Fatalf("Unexpected action %+v", a)
	}
	if got := a.Payload.Draft().CategoryID; got != "groceries" {
		t.Errorf("Expected category code resolved to id, got %q", got)
	}
	if !balance(t, vs, vaultID).IsZero() {
		t.Error("Expected proposing to leave the vault untouched")
	}

	done, err := svc.Execute(ctx, vaultID, a.ID)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if done.Status != StatusExecuted || done.TransactionID == "" {
		t.Errorf("Unexpected executed action %+v", done)
	}
	if got := balance(t, vs, vaultID); !got.Equal(decimal.RequireFromString("-12.4")) {
		t.Errorf("Expected balance -12.4, got %s", got)
	}

	if _, err := svc.Execute(ctx, vaultID, a.ID); !errors.Is(err, ErrNotPending) {
		t.Errorf("Expected ErrNotPending on second execute, got %v", err)
	}
	if _, err := svc.Cancel(ctx, vaultID, a.ID); !errors.Is(err, ErrNotPending) {
		t.Errorf("Expected ErrNotPending on cancel after execute, got %v", err)
	}
}

func TestService_ExecuteOnceUnderConcurrency(t *testing.T) {
	ctx := context.Background()
	svc, vs, vaultID := newTestService(t, groceriesParser())
	a, _ := svc.Propose(ctx, vaultID, "lunch")

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Execute(ctx, vaultID, a.ID); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if succeeded != 1 {
		t.Errorf("Expected exactly one execution, got %d", succeeded)
	}
	if got := balance(t, vs, vaultID); !got.Equal(decimal.RequireFromString("-12.4")) {
		t.Errorf("Expected one transaction worth -12.4, got %s", got)
	}
}

func TestService_Cancel(t *testing.T) {
	ctx := context.Background()
	svc, vs, vaultID := newTestService(t, groceriesParser())
	a, _ := svc.Propose(ctx, vaultID, "coffee")

	cancelled, err := svc.Cancel(ctx, vaultID, a.ID)
	if err != nil || cancelled.Status != StatusCancelled {
		t.Fatalf("Cancel = %+v, %v", cancelled, err)
	}
	if _, err := svc.Execute(ctx, vaultID, a.ID); !errors.Is(err, ErrNotPending) {
		t.Errorf("Expected ErrNotPending, got %v", err)
	}
	if !balance(t, vs, vaultID).IsZero() {
		t.Error("Expected cancelled action to leave the vault untouched")
	}
}

func TestService_ProposeErrors(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		parser  categorize.ActionParser
		wantErr error
	}{
		{
			name:    "no parser",
			parser:  nil,
			wantErr: categorize.ErrClassificationFailed,
		},
		{
			name: "not a transaction",
			parser: &MockActionParser{
				ParseActionFunc: func(context.Context, string, []ledger.Category, string) (*categorize.ActionProposal, error) {
					return &categorize.ActionProposal{Matched: false}, nil
				},
			},
			wantErr: ErrNoMatch,
		},
		{
			name: "classifier error",
			parser: &MockActionParser{
				ParseActionFunc: func(context.Context, string, []ledger.Category, string) (*categorize.ActionProposal, error) {
					return nil, categorize.ErrClassificationFailed
				},
			},
			wantErr: categorize.ErrClassificationFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _, vaultID := newTestService(t, tt.parser)
			if _, err := svc.Propose(ctx, vaultID, "hello"); !errors.Is(err, tt.wantErr) {
				t.Errorf("Expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestService_OtherVaultCannotSeeAction(t *testing.T) {
	ctx := context.Background()
	svc, _, vaultID := newTestService(t, groceriesParser())
	a, _ := svc.Propose(ctx, vaultID, "coffee")

	if _, err := svc.Get(ctx, "someone-else", a.ID); !errors.Is(err, ledger.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if _, err := svc.Execute(ctx, "someone-else", a.ID); !errors.Is(err, ledger.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestAction_JSON(t *testing.T) {
	in := Action{
		ID:      "a1",
		VaultID: "v1",
		Payload: IncomePayload{Transaction: vaults.Draft{Amount: decimal.NewFromInt(5), Kind: ledger.KindIncome}},
		Status:  StatusPending,
	}
	data, err := json.Marshal(in)
	if err != nil {
		t.Fatal(err)
	}

	var out Action
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	p, ok := out.Payload.(IncomePayload)
	if !ok || !p.Transaction.Amount.Equal(decimal.NewFromInt(5)) {
		t.Errorf("Expected income payload to survive, got %#v", out.Payload)
	}

	if err := json.Unmarshal([]byte(`{"type":"transfer","payload":{}}`), &out); err == nil {
		t.Error("Expected unknown type to fail")
	}
}
