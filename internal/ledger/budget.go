package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Budget is the spending limit a vault sets for one category.
type Budget struct {
	Category Category        `json:"category"`
	Amount   decimal.Decimal `json:"amount"`
}

// EntityID implements Entity. Budgets are keyed by category inside a vault.
func (b *Budget) EntityID() string { return b.Category.ID }

// BudgetSummary is one row of a budget report.
type BudgetSummary struct {
	Category       Category        `json:"category"`
	Budgeted       decimal.Decimal `json:"budgeted"`
	Spent          decimal.Decimal `json:"spent"`
	PercentageUsed decimal.Decimal `json:"percentage_used"`
}

// Period filters budget spending by date. A zero Month or Year leaves that
// part of the date unfiltered; the two filters apply independently.
type Period struct {
	Month time.Month
	Year  int
}

// CurrentPeriod returns the month and year of now in UTC.
func CurrentPeriod() Period {
	now := time.Now().UTC()
	return Period{Month: now.Month(), Year: now.Year()}
}

// Contains reports whether t falls inside the period.
func (p Period) Contains(t time.Time) bool {
	if p.Month != 0 && t.Month() != p.Month {
		return false
	}
	if p.Year != 0 && t.Year() != p.Year {
		return false
	}
	return true
}

// percentage returns part/whole*100, or zero when whole is zero.
// The result is not capped at 100.
func percentage(part, whole decimal.Decimal) decimal.Decimal {
	if whole.IsZero() {
		return decimal.Zero
	}
	return part.Div(whole).Mul(hundred)
}
