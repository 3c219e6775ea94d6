package ledger

import "strings"

// Kind is the direction of a transaction.
type Kind string

const (
	KindIncome  Kind = "income"
	KindExpense Kind = "expense"
)

// Valid reports whether k is income or expense.
func (k Kind) Valid() bool {
	return k == KindIncome || k == KindExpense
}

// ParseKind normalizes user or model input ("Expense", " income ") into a Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if !k.Valid() {
		return "", ErrInvalidKind
	}
	return k, nil
}

// CategoryKind restricts which transactions a category applies to.
type CategoryKind string

const (
	CategoryIncome  CategoryKind = "income"
	CategoryExpense CategoryKind = "expense"
	CategoryBoth    CategoryKind = "both"
)

// Category is reference data shared by transactions and budgets.
// Transactions and budgets point at it by ID and never own it.
type Category struct {
	ID              string       `json:"id"`
	Name            string       `json:"name"`
	Code            string       `json:"code"`
	Description     string       `json:"description"`
	TransactionKind CategoryKind `json:"transaction_kind"`
}

// Accepts reports whether a transaction of kind k may use this category.
func (c Category) Accepts(k Kind) bool {
	switch c.TransactionKind {
	case CategoryBoth, "":
		return true
	case CategoryIncome:
		return k == KindIncome
	case CategoryExpense:
		return k == KindExpense
	}
	return false
}
