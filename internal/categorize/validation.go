package categorize

import (
	"context"
	"strings"

	"github.com/dvloznov/vault-ledger/internal/ledger"
	"github.com/dvloznov/vault-ledger/internal/logger"
)

// CategoryValidator checks classifier output against the vault's categories.
type CategoryValidator struct {
	byID   map[string]ledger.Category
	byCode map[string]ledger.Category
}

// NewCategoryValidator indexes categories by id and normalized code.
func NewCategoryValidator(categories []ledger.Category) *CategoryValidator {
	v := &CategoryValidator{
		byID:   make(map[string]ledger.Category, len(categories)),
		byCode: make(map[string]ledger.Category, len(categories)),
	}
	for _, c := range categories {
		v.byID[c.ID] = c
		if c.Code != "" {
			v.byCode[normalizeCode(c.Code)] = c
		}
	}
	return v
}

// Resolve returns the category for an id. Models sometimes answer with the
// category code instead of its id, so codes are accepted too.
func (v *CategoryValidator) Resolve(idOrCode string) (ledger.Category, bool) {
	if c, ok := v.byID[strings.TrimSpace(idOrCode)]; ok {
		return c, true
	}
	c, ok := v.byCode[normalizeCode(idOrCode)]
	return c, ok
}

// Filter keeps the assignments that point a transaction of chunk at a known
// category accepting the transaction's kind, rewriting codes to ids.
// Everything else is logged and dropped.
func (v *CategoryValidator) Filter(ctx context.Context, chunk []TransactionInput, assignments []Assignment) []Assignment {
	log := logger.FromContext(ctx)

	kinds := make(map[string]ledger.Kind, len(chunk))
	for _, tx := range chunk {
		kinds[tx.ID] = tx.Kind
	}

	out := make([]Assignment, 0, len(assignments))
	for _, a := range assignments {
		kind, ok := kinds[a.TransactionID]
		if !ok {
			log.Warn().Str("transaction_id", a.TransactionID).Msg("classifier returned a transaction outside the chunk")
			continue
		}
		c, ok := v.Resolve(a.CategoryID)
		if !ok {
			log.Warn().Str("transaction_id", a.TransactionID).Str("category_id", a.CategoryID).Msg("classifier returned an unknown category")
			continue
		}
		if !c.Accepts(kind) {
			log.Warn().Str("transaction_id", a.TransactionID).Str("category_id", c.ID).Str("kind", string(kind)).Msg("classifier returned a category of the wrong kind")
			continue
		}
		out = append(out, Assignment{TransactionID: a.TransactionID, CategoryID: c.ID})
	}
	return out
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
