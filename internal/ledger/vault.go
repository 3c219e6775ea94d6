package ledger

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Vault is the aggregate root of the ledger. It owns the transactions and
// budgets of one group of users and records every mutation in two change
// trackers so a repository can persist only the diff.
//
// All methods are safe for concurrent use; each one holds the vault mutex for
// its whole duration.
type Vault struct {
	mu sync.Mutex

	id           string
	token        string
	createdAt    time.Time
	customPrompt string

	transactions []*Transaction
	budgets      map[string]*Budget

	txTracker     *ChangeTracker[*Transaction]
	budgetTracker *ChangeTracker[*Budget]
}

// VaultRecord is the plain-data header of a vault.
type VaultRecord struct {
	ID           string    `json:"id"`
	Token        string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	CustomPrompt string    `json:"custom_prompt,omitempty"`
}

// NewVault creates an empty vault with a fresh id and bearer token.
func NewVault(customPrompt string) *Vault {
	return RestoreVault(VaultRecord{
		ID:           uuid.NewString(),
		Token:        NewVaultToken(),
		CreatedAt:    time.Now().UTC(),
		CustomPrompt: customPrompt,
	}, nil, nil)
}

// RestoreVault rebuilds a vault from storage. Nothing is registered in the
// trackers.
func RestoreVault(rec VaultRecord, txs []TransactionRecord, budgets []Budget) *Vault {
	v := &Vault{
		id:            rec.ID,
		token:         rec.Token,
		createdAt:     rec.CreatedAt,
		customPrompt:  rec.CustomPrompt,
		budgets:       make(map[string]*Budget, len(budgets)),
		txTracker:     NewChangeTracker[*Transaction](),
		budgetTracker: NewChangeTracker[*Budget](),
	}
	for _, r := range txs {
		v.transactions = append(v.transactions, TransactionFromRecord(r))
	}
	for _, b := range budgets {
		v.budgets[b.Category.ID] = &b
	}
	return v
}

func (v *Vault) ID() string { return v.id }

func (v *Vault) Token() string { return v.token }

func (v *Vault) CreatedAt() time.Time { return v.createdAt }

func (v *Vault) CustomPrompt() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.customPrompt
}

// SetCustomPrompt replaces the context prompt sent to the classifier.
// The vault header is always rewritten on save, so nothing is tracked.
func (v *Vault) SetCustomPrompt(prompt string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.customPrompt = prompt
}

// Record returns the vault header.
func (v *Vault) Record() VaultRecord {
	v.mu.Lock()
	defer v.mu.Unlock()
	return VaultRecord{ID: v.id, Token: v.token, CreatedAt: v.createdAt, CustomPrompt: v.customPrompt}
}

func (v *Vault) TransactionsTracker() *ChangeTracker[*Transaction] { return v.txTracker }

func (v *Vault) BudgetsTracker() *ChangeTracker[*Budget] { return v.budgetTracker }

// AddTransaction inserts tx and registers it as new. A transaction with the
// same id replaces the existing one.
func (v *Vault) AddTransaction(tx *Transaction) error {
	if tx.VaultID() != v.id {
		return fmt.Errorf("AddTransaction: %w", ErrVaultMismatch)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	replaced := false
	for i, existing := range v.transactions {
		if existing.id == tx.id {
			v.transactions[i] = tx
			replaced = true
			break
		}
	}
	if !replaced {
		v.transactions = append(v.transactions, tx)
	}
	v.txTracker.RegisterNew(tx)
	return nil
}

// CommitTransaction commits the transaction with the given id.
func (v *Vault) CommitTransaction(id string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	tx := v.byID(id)
	if tx == nil {
		return ErrNotFound
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	v.txTracker.RegisterDirty(tx)
	return nil
}

// EditTransaction applies patch to the transaction with the given code and
// returns its new state. Committed transactions can be edited.
func (v *Vault) EditTransaction(code string, patch TransactionPatch) (TransactionRecord, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	tx := v.byCode(code)
	if tx == nil {
		return TransactionRecord{}, ErrNotFound
	}
	if err := patch.apply(tx); err != nil {
		return TransactionRecord{}, fmt.Errorf("EditTransaction: %w", err)
	}
	v.txTracker.RegisterDirty(tx)
	return tx.Record(), nil
}

// DeleteTransaction removes the transaction with the given code.
func (v *Vault) DeleteTransaction(code string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	for i, tx := range v.transactions {
		if tx.code == code {
			v.transactions = append(v.transactions[:i], v.transactions[i+1:]...)
			v.txTracker.RegisterDeleted(tx)
			return nil
		}
	}
	return ErrNotFound
}

// FindTransactionByCode returns the transaction with the given code.
func (v *Vault) FindTransactionByCode(code string) (TransactionRecord, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	tx := v.byCode(code)
	if tx == nil {
		return TransactionRecord{}, false
	}
	return tx.Record(), true
}

// FindTransactionByID returns the transaction with the given id.
func (v *Vault) FindTransactionByID(id string) (TransactionRecord, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	tx := v.byID(id)
	if tx == nil {
		return TransactionRecord{}, false
	}
	return tx.Record(), true
}

// Transactions returns every transaction in insertion order.
func (v *Vault) Transactions() []TransactionRecord {
	v.mu.Lock()
	defer v.mu.Unlock()

	out := make([]TransactionRecord, 0, len(v.transactions))
	for _, tx := range v.transactions {
		out = append(out, tx.Record())
	}
	return out
}

// Balance is the signed sum of committed transactions. It is recomputed on
// every call.
func (v *Vault) Balance() decimal.Decimal {
	v.mu.Lock()
	defer v.mu.Unlock()

	total := decimal.Zero
	for _, tx := range v.transactions {
		if tx.committed {
			total = total.Add(tx.SignedAmount())
		}
	}
	return total
}

// SetBudget creates or replaces the budget of a category.
func (v *Vault) SetBudget(category Category, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return ErrNegativeBudget
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if b, ok := v.budgets[category.ID]; ok {
		b.Category = category
		b.Amount = amount
		v.budgetTracker.RegisterDirty(b)
		return nil
	}

	b := &Budget{Category: category, Amount: amount}
	v.budgets[category.ID] = b
	v.budgetTracker.RegisterNew(b)
	return nil
}

// RemoveBudget deletes the budget of a category.
func (v *Vault) RemoveBudget(categoryID string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	b, ok := v.budgets[categoryID]
	if !ok {
		return ErrNotFound
	}
	delete(v.budgets, categoryID)
	v.budgetTracker.RegisterDeleted(b)
	return nil
}

// Budgets returns the budgets ordered by category name.
func (v *Vault) Budgets() []Budget {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.sortedBudgets()
}

// BudgetsSummary reports, for every budget, the expenses of its category
// dated inside period. Commit state is not considered.
func (v *Vault) BudgetsSummary(period Period) []BudgetSummary {
	v.mu.Lock()
	defer v.mu.Unlock()

	spent := make(map[string]decimal.Decimal, len(v.budgets))
	for _, tx := range v.transactions {
		if tx.kind != KindExpense || tx.categoryID == "" || !period.Contains(tx.date) {
			continue
		}
		if _, ok := v.budgets[tx.categoryID]; !ok {
			continue
		}
		spent[tx.categoryID] = spent[tx.categoryID].Add(tx.amount)
	}

	budgets := v.sortedBudgets()
	out := make([]BudgetSummary, 0, len(budgets))
	for _, b := range budgets {
		s := spent[b.Category.ID]
		out = append(out, BudgetSummary{
			Category:       b.Category,
			Budgeted:       b.Amount,
			Spent:          s,
			PercentageUsed: percentage(s, b.Amount),
		})
	}
	return out
}

// TotalBudgetedAmount sums every budget amount.
func (v *Vault) TotalBudgetedAmount() decimal.Decimal {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.totalBudgeted()
}

// TotalSpentAmount sums every expense of the vault, regardless of date,
// category or commit state.
func (v *Vault) TotalSpentAmount() decimal.Decimal {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.totalSpent()
}

// PercentageTotalBudgetedAmount is TotalSpentAmount over TotalBudgetedAmount,
// as a percentage. Zero when nothing is budgeted.
func (v *Vault) PercentageTotalBudgetedAmount() decimal.Decimal {
	v.mu.Lock()
	defer v.mu.Unlock()
	return percentage(v.totalSpent(), v.totalBudgeted())
}

func (v *Vault) totalBudgeted() decimal.Decimal {
	total := decimal.Zero
	for _, b := range v.budgets {
		total = total.Add(b.Amount)
	}
	return total
}

func (v *Vault) totalSpent() decimal.Decimal {
	total := decimal.Zero
	for _, tx := range v.transactions {
		if tx.kind == KindExpense {
			total = total.Add(tx.amount)
		}
	}
	return total
}

func (v *Vault) sortedBudgets() []Budget {
	out := make([]Budget, 0, len(v.budgets))
	for _, b := range v.budgets {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Category.Name == out[j].Category.Name {
			return out[i].Category.ID < out[j].Category.ID
		}
		return out[i].Category.Name < out[j].Category.Name
	})
	return out
}

func (v *Vault) byID(id string) *Transaction {
	for _, tx := range v.transactions {
		if tx.id == id {
			return tx
		}
	}
	return nil
}

func (v *Vault) byCode(code string) *Transaction {
	for _, tx := range v.transactions {
		if tx.code == code {
			return tx
		}
	}
	return nil
}
