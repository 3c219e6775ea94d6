package ledger

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

var (
	housing   = Category{ID: "cat-housing", Name: "Housing", Code: "HOUSING", TransactionKind: CategoryExpense}
	groceries = Category{ID: "cat-groceries", Name: "Groceries", Code: "GROCERIES", TransactionKind: CategoryExpense}
	salary    = Category{ID: "cat-salary", Name: "Salary", Code: "SALARY", TransactionKind: CategoryIncome}
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func mustTx(t *testing.T, v *Vault, amount string, kind Kind, categoryID string, date time.Time) *Transaction {
	t.Helper()
	tx, err := NewTransaction(dec(amount), kind, "test", categoryID, date, v.ID())
	if err != nil {
		t.Fatalf("NewTransaction failed: %v", err)
	}
	if err := v.AddTransaction(tx); err != nil {
		t.Fatalf("AddTransaction failed: %v", err)
	}
	return tx
}

func TestVault_UncommittedExpenseDoesNotMoveBalance(t *testing.T) {
	v := NewVault("")
	tx := mustTx(t, v, "50", KindExpense, "", time.Now())

	if got := v.Balance(); !got.IsZero() {
		t.Fatalf("Expected balance 0 before commit, got %s", got)
	}

	if err := v.CommitTransaction(tx.ID()); err != nil {
		t.Fatalf("CommitTransaction failed: %v", err)
	}

	if got := v.Balance(); !got.Equal(dec("-50")) {
		t.Errorf("Expected balance -50 after commit, got %s", got)
	}
}

func TestVault_CommitIsOneWay(t *testing.T) {
	v := NewVault("")
	tx := mustTx(t, v, "10", KindIncome, "", time.Now())

	if err := v.CommitTransaction(tx.ID()); err != nil {
		t.Fatalf("first commit failed: %v", err)
	}
	v.TransactionsTracker().Clear()

	err := v.CommitTransaction(tx.ID())
	if !errors.Is(err, ErrAlreadyCommitted) {
		t.Fatalf("Expected ErrAlreadyCommitted, got %v", err)
	}
	if !tx.IsCommitted() {
		t.Error("Expected transaction to stay committed")
	}
	if changes := v.TransactionsTracker().Changes(); !changes.Empty() {
		t.Errorf("Expected no tracked change after failed commit, got %+v", changes)
	}
}

func TestVault_CommitUnknownTransaction(t *testing.T) {
	v := NewVault("")
	if err := v.CommitTransaction("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestVault_BalanceSignLaw(t *testing.T) {
	v := NewVault("")
	amounts := []struct {
		amount string
		kind   Kind
		commit bool
	}{
		{"100.50", KindIncome, true},
		{"20.25", KindExpense, true},
		{"1000", KindExpense, false},
		{"5", KindIncome, false},
		{"0.25", KindExpense, true},
	}
	for _, a := range amounts {
		tx := mustTx(t, v, a.amount, a.kind, "", time.Now())
		if a.commit {
			if err := v.CommitTransaction(tx.ID()); err != nil {
				t.Fatalf("CommitTransaction failed: %v", err)
			}
		}
	}

	if got, want := v.Balance(), dec("80"); !got.Equal(want) {
		t.Errorf("Expected balance %s, got %s", want, got)
	}
}

func TestVault_BudgetSummaryForCurrentMonth(t *testing.T) {
	v := NewVault("")
	if err := v.SetBudget(housing, dec("1000")); err != nil {
		t.Fatalf("SetBudget failed: %v", err)
	}

	tx := mustTx(t, v, "500", KindExpense, housing.ID, time.Now().UTC())
	if err := v.CommitTransaction(tx.ID()); err != nil {
		t.Fatalf("CommitTransaction failed: %v", err)
	}

	summary := v.BudgetsSummary(CurrentPeriod())
	if len(summary) != 1 {
		t.Fatalf("Expected 1 summary row, got %d", len(summary))
	}
	if !summary[0].Spent.Equal(dec("500")) {
		t.Errorf("Expected spent 500, got %s", summary[0].Spent)
	}
	if !summary[0].PercentageUsed.Equal(dec("50")) {
		t.Errorf("Expected 50%% used, got %s", summary[0].PercentageUsed)
	}
}

func TestVault_BudgetPercentageLaw(t *testing.T) {
	tests := []struct {
		name    string
		budget  string
		spent   string
		wantPct string
	}{
		{name: "zero budget reports zero", budget: "0", spent: "300", wantPct: "0"},
		{name: "over budget is not capped", budget: "100", spent: "250", wantPct: "250"},
		{name: "nothing spent", budget: "100", spent: "0", wantPct: "0"},
		{name: "fractional", budget: "400", spent: "100", wantPct: "25"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewVault("")
			if err := v.SetBudget(groceries, dec(tt.budget)); err != nil {
				t.Fatalf("SetBudget failed: %v", err)
			}
			mustTx(t, v, tt.spent, KindExpense, groceries.ID, time.Now())

			summary := v.BudgetsSummary(Period{})
			if !summary[0].PercentageUsed.Equal(dec(tt.wantPct)) {
				t.Errorf("Expected %s%%, got %s", tt.wantPct, summary[0].PercentageUsed)
			}
		})
	}
}

func TestVault_BudgetSummaryPeriodFilters(t *testing.T) {
	v := NewVault("")
	if err := v.SetBudget(housing, dec("100")); err != nil {
		t.Fatalf("SetBudget failed: %v", err)
	}
	mustTx(t, v, "10", KindExpense, housing.ID, time.Date(2024, time.March, 3, 0, 0, 0, 0, time.UTC))
	mustTx(t, v, "20", KindExpense, housing.ID, time.Date(2025, time.March, 3, 0, 0, 0, 0, time.UTC))
	mustTx(t, v, "40", KindExpense, housing.ID, time.Date(2025, time.April, 3, 0, 0, 0, 0, time.UTC))
	mustTx(t, v, "80", KindIncome, housing.ID, time.Date(2025, time.April, 3, 0, 0, 0, 0, time.UTC))

	tests := []struct {
		name   string
		period Period
		want   string
	}{
		{name: "unfiltered", period: Period{}, want: "70"},
		{name: "month only", period: Period{Month: time.March}, want: "30"},
		{name: "year only", period: Period{Year: 2025}, want: "60"},
		{name: "month and year", period: Period{Month: time.April, Year: 2025}, want: "40"},
		{name: "empty period", period: Period{Month: time.May, Year: 2025}, want: "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := v.BudgetsSummary(tt.period)[0].Spent
			if !got.Equal(dec(tt.want)) {
				t.Errorf("Expected spent %s, got %s", tt.want, got)
			}
		})
	}
}

func TestVault_Totals(t *testing.T) {
	v := NewVault("")
	_ = v.SetBudget(housing, dec("1000"))
	_ = v.SetBudget(groceries, dec("250"))

	mustTx(t, v, "500", KindExpense, housing.ID, time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC))
	mustTx(t, v, "125", KindExpense, "", time.Now())
	mustTx(t, v, "3000", KindIncome, salary.ID, time.Now())

	if got := v.TotalBudgetedAmount(); !got.Equal(dec("1250")) {
		t.Errorf("Expected total budgeted 1250, got %s", got)
	}
	// Total spent ignores month and category.
	if got := v.TotalSpentAmount(); !got.Equal(dec("625")) {
		t.Errorf("Expected total spent 625, got %s", got)
	}
	if got := v.PercentageTotalBudgetedAmount(); !got.Equal(dec("50")) {
		t.Errorf("Expected 50%%, got %s", got)
	}
}

func TestVault_SetBudgetRejectsNegative(t *testing.T) {
	v := NewVault("")
	if err := v.SetBudget(housing, dec("-1")); !errors.Is(err, ErrNegativeBudget) {
		t.Fatalf("Expected ErrNegativeBudget, got %v", err)
	}
	if len(v.Budgets()) != 0 {
		t.Error("Expected no budget to be stored")
	}
	if !v.BudgetsTracker().Changes().Empty() {
		t.Error("Expected nothing tracked")
	}
}

func TestVault_SetBudgetTracksInsertThenUpdate(t *testing.T) {
	v := NewVault("")
	_ = v.SetBudget(housing, dec("100"))
	_ = v.SetBudget(housing, dec("200"))

	changes := v.BudgetsTracker().Changes()
	if len(changes.New) != 1 || len(changes.Dirty) != 1 {
		t.Fatalf("Expected 1 new and 1 dirty, got %d new and %d dirty", len(changes.New), len(changes.Dirty))
	}
	if got := v.Budgets()[0].Amount; !got.Equal(dec("200")) {
		t.Errorf("Expected amount 200, got %s", got)
	}
}

func TestVault_RemoveBudget(t *testing.T) {
	v := NewVault("")
	_ = v.SetBudget(housing, dec("100"))

	if err := v.RemoveBudget(housing.ID); err != nil {
		t.Fatalf("RemoveBudget failed: %v", err)
	}
	if err := v.RemoveBudget(housing.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound on second removal, got %v", err)
	}
	if len(v.BudgetsTracker().Changes().Deleted) != 1 {
		t.Error("Expected one deleted budget tracked")
	}
}

func TestVault_EditAfterCommit(t *testing.T) {
	v := NewVault("")
	tx := mustTx(t, v, "30", KindExpense, "", time.Now())
	if err := v.CommitTransaction(tx.ID()); err != nil {
		t.Fatalf("CommitTransaction failed: %v", err)
	}

	amount := dec("45")
	desc := "dinner"
	cat := groceries.ID
	updated, err := v.EditTransaction(tx.Code(), TransactionPatch{Amount: &amount, Description: &desc, CategoryID: &cat})
	if err != nil {
		t.Fatalf("EditTransaction failed: %v", err)
	}

	if !updated.IsCommitted {
		t.Error("Expected transaction to remain committed")
	}
	if !updated.Amount.Equal(amount) || updated.Description != desc || updated.CategoryID != cat {
		t.Errorf("Patch not applied: %+v", updated)
	}
	if got := v.Balance(); !got.Equal(dec("-45")) {
		t.Errorf("Expected balance -45, got %s", got)
	}
}

func TestVault_EditRejectedPatchLeavesStateUnchanged(t *testing.T) {
	v := NewVault("")
	tx := mustTx(t, v, "30", KindExpense, "", time.Now())
	v.TransactionsTracker().Clear()

	negative := dec("-1")
	desc := "changed"
	_, err := v.EditTransaction(tx.Code(), TransactionPatch{Amount: &negative, Description: &desc})
	if !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("Expected ErrInvalidAmount, got %v", err)
	}
	if tx.Description() != "test" {
		t.Errorf("Expected description unchanged, got %q", tx.Description())
	}
	if !v.TransactionsTracker().Changes().Empty() {
		t.Error("Expected nothing tracked for a rejected edit")
	}
}

func TestVault_EditAndDeleteUnknownCode(t *testing.T) {
	v := NewVault("")
	if _, err := v.EditTransaction("abc123", TransactionPatch{}); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound from edit, got %v", err)
	}
	if err := v.DeleteTransaction("abc123"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound from delete, got %v", err)
	}
}

func TestVault_TrackerCompleteness(t *testing.T) {
	v := NewVault("")
	a := mustTx(t, v, "1", KindIncome, "", time.Now())
	b := mustTx(t, v, "2", KindExpense, "", time.Now())

	_ = v.CommitTransaction(a.ID())
	desc := "edited"
	_, _ = v.EditTransaction(b.Code(), TransactionPatch{Description: &desc})
	_ = v.DeleteTransaction(a.Code())

	changes := v.TransactionsTracker().Changes()
	if len(changes.New) != 2 {
		t.Errorf("Expected 2 new, got %d", len(changes.New))
	}
	if len(changes.Dirty) != 2 {
		t.Errorf("Expected 2 dirty, got %d", len(changes.Dirty))
	}
	if len(changes.Deleted) != 1 || changes.Deleted[0].ID() != a.ID() {
		t.Errorf("Expected %s deleted, got %+v", a.ID(), changes.Deleted)
	}

	collapsed := changes.Collapse()
	if len(collapsed.New) != 1 || collapsed.New[0].ID() != b.ID() {
		t.Errorf("Expected only %s to be inserted, got %+v", b.ID(), collapsed.New)
	}
	if len(collapsed.Dirty) != 0 || len(collapsed.Deleted) != 0 {
		t.Errorf("Expected inserted-then-deleted transaction to vanish, got %+v", collapsed)
	}

	v.TransactionsTracker().Clear()
	if !v.TransactionsTracker().Changes().Empty() {
		t.Error("Expected tracker to be empty after Clear")
	}
}

func TestVault_AddTransactionFromOtherVault(t *testing.T) {
	v := NewVault("")
	other := NewVault("")
	tx, err := NewTransaction(dec("1"), KindIncome, "", "", time.Now(), other.ID())
	if err != nil {
		t.Fatalf("NewTransaction failed: %v", err)
	}
	if err := v.AddTransaction(tx); !errors.Is(err, ErrVaultMismatch) {
		t.Errorf("Expected ErrVaultMismatch, got %v", err)
	}
}

func TestVault_FindTransactionByCode(t *testing.T) {
	v := NewVault("")
	tx := mustTx(t, v, "12.34", KindIncome, "", time.Now())

	got, ok := v.FindTransactionByCode(tx.Code())
	if !ok {
		t.Fatal("Expected transaction to be found")
	}
	if got.ID != tx.ID() {
		t.Errorf("Expected id %s, got %s", tx.ID(), got.ID)
	}
	if _, ok := v.FindTransactionByCode("zzzzzz"); ok {
		t.Error("Expected unknown code to be absent")
	}
}

func TestRestoreVault_DoesNotTrack(t *testing.T) {
	rec := VaultRecord{ID: "v1", Token: "tok", CreatedAt: time.Now()}
	txs := []TransactionRecord{{ID: "t1", Code: "aaaaaa", VaultID: "v1", Amount: dec("10"), Kind: KindIncome, IsCommitted: true}}
	budgets := []Budget{{Category: housing, Amount: dec("5")}}

	v := RestoreVault(rec, txs, budgets)
	if !v.TransactionsTracker().Changes().Empty() || !v.BudgetsTracker().Changes().Empty() {
		t.Error("Expected restored vault to have no pending changes")
	}
	if got := v.Balance(); !got.Equal(dec("10")) {
		t.Errorf("Expected balance 10, got %s", got)
	}
	if v.Token() != "tok" {
		t.Errorf("Expected token to be kept, got %q", v.Token())
	}
}
