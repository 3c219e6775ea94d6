package ledger

import (
	"errors"
	"regexp"
	"testing"
	"time"
)

func TestNewTransaction(t *testing.T) {
	date := time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		amount  string
		kind    Kind
		vaultID string
		wantErr error
	}{
		{name: "valid expense", amount: "12.50", kind: KindExpense, vaultID: "v1"},
		{name: "zero amount", amount: "0", kind: KindIncome, vaultID: "v1"},
		{name: "negative amount", amount: "-1", kind: KindIncome, vaultID: "v1", wantErr: ErrInvalidAmount},
		{name: "unknown kind", amount: "1", kind: Kind("transfer"), vaultID: "v1", wantErr: ErrInvalidKind},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx, err := NewTransaction(dec(tt.amount), tt.kind, "", "", date, tt.vaultID)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if tx.IsCommitted() {
				t.Error("Expected new transaction to be uncommitted")
			}
			if tx.ID() == "" {
				t.Error("Expected an id")
			}
			if !regexp.MustCompile(`^[0-9a-f]{6}$`).MatchString(tx.Code()) {
				t.Errorf("Expected 6 hex char code, got %q", tx.Code())
			}
			if !tx.Date().Equal(date) {
				t.Errorf("Expected date %v, got %v", date, tx.Date())
			}
		})
	}
}

func TestNewTransaction_RequiresVault(t *testing.T) {
	if _, err := NewTransaction(dec("1"), KindIncome, "", "", time.Now(), ""); err == nil {
		t.Error("Expected error for empty vault id")
	}
}

func TestTransaction_SignedAmount(t *testing.T) {
	income, _ := NewTransaction(dec("7"), KindIncome, "", "", time.Now(), "v")
	expense, _ := NewTransaction(dec("7"), KindExpense, "", "", time.Now(), "v")

	if !income.SignedAmount().Equal(dec("7")) {
		t.Errorf("Expected +7, got %s", income.SignedAmount())
	}
	if !expense.SignedAmount().Equal(dec("-7")) {
		t.Errorf("Expected -7, got %s", expense.SignedAmount())
	}
}

func TestTransaction_CommitTwice(t *testing.T) {
	tx, _ := NewTransaction(dec("1"), KindIncome, "", "", time.Now(), "v")
	if err := tx.Commit(); err != nil {
		t.Fatalf("first commit failed: %v", err)
	}
	if err := tx.Commit(); !errors.Is(err, ErrAlreadyCommitted) {
		t.Errorf("Expected ErrAlreadyCommitted, got %v", err)
	}
}

func TestTransaction_Setters(t *testing.T) {
	tx, _ := NewTransaction(dec("1"), KindIncome, "", "", time.Now(), "v")

	if err := tx.SetAmount(dec("-3")); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("Expected ErrInvalidAmount, got %v", err)
	}
	if err := tx.SetKind(KindExpense); err != nil {
		t.Errorf("SetKind failed: %v", err)
	}
	if err := tx.SetKind("other"); !errors.Is(err, ErrInvalidKind) {
		t.Errorf("Expected ErrInvalidKind, got %v", err)
	}
	if tx.Kind() != KindExpense {
		t.Errorf("Expected kind to stay expense, got %s", tx.Kind())
	}
}

func TestParseKind(t *testing.T) {
	tests := []struct {
		in      string
		want    Kind
		wantErr bool
	}{
		{in: "income", want: KindIncome},
		{in: " Expense ", want: KindExpense},
		{in: "INCOME", want: KindIncome},
		{in: "refund", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseKind(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseKind(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseKind(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestCategory_Accepts(t *testing.T) {
	if !salary.Accepts(KindIncome) || salary.Accepts(KindExpense) {
		t.Error("income category should accept only income")
	}
	both := Category{TransactionKind: CategoryBoth}
	if !both.Accepts(KindIncome) || !both.Accepts(KindExpense) {
		t.Error("both category should accept every kind")
	}
}

func TestNewVaultToken(t *testing.T) {
	a, b := NewVaultToken(), NewVaultToken()
	if len(a) != 32 {
		t.Errorf("Expected 32 hex chars, got %d", len(a))
	}
	if a == b {
		t.Error("Expected distinct tokens")
	}
}
