package categorize

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dvloznov/vault-ledger/internal/ledger"
)

// buildCategoriesPrompt lists the categories a model may answer with.
func buildCategoriesPrompt(categories []ledger.Category) string {
	var b strings.Builder
	b.WriteString("Use ONLY the following categories (id | name | applies to | description):\n\n")
	for _, c := range categories {
		kind := string(c.TransactionKind)
		if kind == "" {
			kind = string(ledger.CategoryBoth)
		}
		fmt.Fprintf(&b, "- %s | %s | %s | %s\n", c.ID, c.Name, kind, c.Description)
	}
	b.WriteString("\nCATEGORY ASSIGNMENT RULES:\n")
	b.WriteString("1. categoryId must be EXACTLY one of the ids shown above.\n")
	b.WriteString("2. Only use a category whose \"applies to\" matches the transaction type, or \"both\".\n")
	return b.String()
}

func buildContextPrompt(contextPrompt string) string {
	contextPrompt = strings.TrimSpace(contextPrompt)
	if contextPrompt == "" {
		return ""
	}
	return "Context provided by the ledger owners (follow it when it helps to choose):\n" + contextPrompt + "\n\n"
}

// buildBatchPrompt asks for one assignment per transaction of the chunk.
func buildBatchPrompt(txs []TransactionInput, categories []ledger.Category, contextPrompt string) (string, error) {
	payload, err := json.Marshal(txs)
	if err != nil {
		return "", fmt.Errorf("buildBatchPrompt: marshal transactions: %w", err)
	}

	basePrompt :=
		"You categorize bank statement transactions for a shared personal finance ledger.\n\n" +
			"Task:\n" +
			"- Assign the most appropriate category to EACH transaction below.\n" +
			"- Output STRICT JSON only (no comments, no trailing commas, no extra text).\n" +
			"- Output a JSON array of objects with fields \"transactionId\" and \"categoryId\".\n" +
			"- If no category fits a transaction, leave it out of the array.\n\n"

	rulesPrompt :=
		"Return ONLY valid raw JSON.\n" +
			"Do NOT wrap the response in code fences.\n" +
			"Output must begin with \"[\" and end with \"]\".\n"

	return basePrompt +
		buildContextPrompt(contextPrompt) +
		buildCategoriesPrompt(categories) + "\n" +
		"Transactions:\n" + string(payload) + "\n\n" +
		rulesPrompt, nil
}

// buildActionPrompt asks the model to read one free-text chat message.
func buildActionPrompt(text string, categories []ledger.Category, contextPrompt string) string {
	basePrompt :=
		"You read short chat messages in which people record their incomes and expenses.\n\n" +
			"Task:\n" +
			"- Decide whether the message describes ONE income or expense.\n" +
			"- Output a single STRICT JSON object with these fields:\n" +
			"  - \"matched\": boolean, false if the message is not a transaction\n" +
			"  - \"type\": \"income\" or \"expense\"\n" +
			"  - \"amount\": positive number, no currency symbol\n" +
			"  - \"description\": short description\n" +
			"  - \"categoryId\": one of the ids below, or \"\" if none fits\n\n"

	rulesPrompt :=
		"Return ONLY valid raw JSON.\n" +
			"Do NOT wrap the response in code fences.\n" +
			"Output must begin with \"{\" and end with \"}\".\n"

	return basePrompt +
		buildContextPrompt(contextPrompt) +
		buildCategoriesPrompt(categories) + "\n" +
		"Message:\n" + text + "\n\n" +
		rulesPrompt
}
