package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dvloznov/vault-ledger/internal/ledger"
	"github.com/dvloznov/vault-ledger/internal/store"
	"github.com/shopspring/decimal"
)

func TestStore_SaveAndLoad(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	v := ledger.NewVault("")
	if err := s.Create(ctx, v); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	a, _ := ledger.NewTransaction(decimal.NewFromInt(10), ledger.KindIncome, "a", "", time.Now(), v.ID())
	b, _ := ledger.NewTransaction(decimal.NewFromInt(4), ledger.KindExpense, "b", "", time.Now(), v.ID())
	_ = v.AddTransaction(a)
	_ = v.AddTransaction(b)
	_ = v.CommitTransaction(a.ID())
	_ = v.CommitTransaction(b.ID())
	if err := s.Save(ctx, v); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := s.LoadByToken(ctx, v.Token())
	if err != nil {
		t.Fatalf("LoadByToken failed: %v", err)
	}
	if got := loaded.Balance(); !got.Equal(decimal.NewFromInt(6)) {
		t.Errorf("Expected balance 6, got %s", got)
	}

	// mutating the loaded copy does not touch the stored rows
	_ = loaded.DeleteTransaction(a.Code())
	again, _ := s.Load(ctx, v.ID())
	if len(again.Transactions()) != 2 {
		t.Error("Expected stored vault to be isolated from loaded copies")
	}
}

func TestStore_FailedSaveKeepsChanges(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	v := ledger.NewVault("")
	_ = s.Create(ctx, v)

	_ = v.SetBudget(ledger.Category{ID: "c"}, decimal.NewFromInt(3))
	s.FailSave = errors.New("disk full")

	if err := s.Save(ctx, v); err == nil {
		t.Fatal("Expected save to fail")
	}
	if v.BudgetsTracker().Changes().Empty() {
		t.Fatal("Expected changes to survive the failed save")
	}
	if err := s.Save(ctx, v); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	loaded, _ := s.Load(ctx, v.ID())
	if len(loaded.Budgets()) != 1 {
		t.Errorf("Expected the retried budget to be stored")
	}
}

func TestStore_Categories(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	if err := store.SeedCategories(ctx, s); err != nil {
		t.Fatal(err)
	}

	c, err := s.FindCategoryByCode(ctx, " groceries ")
	if err != nil || c.ID != "groceries" {
		t.Errorf("FindCategoryByCode = %+v, %v", c, err)
	}
	if _, err := s.FindCategoryByID(ctx, "nope"); !errors.Is(err, ledger.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if _, err := s.Load(ctx, "nope"); !errors.Is(err, ledger.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}
