package notionsync

import (
	"time"

	"github.com/dvloznov/vault-ledger/internal/ledger"
	"github.com/jomei/notionapi"
)

// Property names of the mirror database. The database must define them with
// matching types before the first sync.
const (
	PropCode          = "Code"           // title
	PropTransactionID = "Transaction ID" // rich text
	PropVaultID       = "Vault ID"       // rich text
	PropDescription   = "Description"    // rich text
	PropAmount        = "Amount"         // number
	PropKind          = "Kind"           // select
	PropCategory      = "Category"       // select
	PropDate          = "Date"           // date
	PropCommitted     = "Committed"      // checkbox
)

// TransactionToNotionProperties maps a transaction to page properties.
// categoryNames resolves category ids to display names; unknown ids fall
// back to the id itself.
func TransactionToNotionProperties(tx ledger.TransactionRecord, categoryNames map[string]string) notionapi.Properties {
	amount, _ := tx.Amount.Float64()
	date := notionapi.Date(time.Date(tx.Date.Year(), tx.Date.Month(), tx.Date.Day(), 0, 0, 0, 0, time.UTC))

	props := notionapi.Properties{
		PropCode: notionapi.TitleProperty{
			Title: richText(tx.Code),
		},
		PropTransactionID: notionapi.RichTextProperty{
			RichText: richText(tx.ID),
		},
		PropVaultID: notionapi.RichTextProperty{
			RichText: richText(tx.VaultID),
		},
		PropDescription: notionapi.RichTextProperty{
			RichText: richText(tx.Description),
		},
		PropAmount: notionapi.NumberProperty{
			Number: amount,
		},
		PropKind: notionapi.SelectProperty{
			Select: notionapi.Option{Name: string(tx.Kind)},
		},
		PropDate: notionapi.DateProperty{
			Date: &notionapi.DateObject{Start: &date},
		},
		PropCommitted: notionapi.CheckboxProperty{
			Checkbox: tx.IsCommitted,
		},
	}

	if tx.CategoryID != "" {
		name := categoryNames[tx.CategoryID]
		if name == "" {
			name = tx.CategoryID
		}
		props[PropCategory] = notionapi.SelectProperty{
			Select: notionapi.Option{Name: name},
		}
	}

	return props
}

func richText(s string) []notionapi.RichText {
	if s == "" {
		return []notionapi.RichText{}
	}
	return []notionapi.RichText{
		{
			Type: notionapi.ObjectTypeText,
			Text: &notionapi.Text{Content: s},
		},
	}
}

// extractTransactionID reads the transaction id of a mirrored page.
// Returns empty string if the property is missing.
func extractTransactionID(page notionapi.Page) string {
	prop, ok := page.Properties[PropTransactionID]
	if !ok {
		return ""
	}
	switch p := prop.(type) {
	case *notionapi.RichTextProperty:
		return plainText(p.RichText)
	case notionapi.RichTextProperty:
		return plainText(p.RichText)
	}
	return ""
}

func plainText(rt []notionapi.RichText) string {
	if len(rt) == 0 {
		return ""
	}
	if rt[0].PlainText != "" {
		return rt[0].PlainText
	}
	if rt[0].Text != nil {
		return rt[0].Text.Content
	}
	return ""
}
