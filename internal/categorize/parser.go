package categorize

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dvloznov/vault-ledger/internal/ledger"
)

// parseAssignments decodes a batch answer. An empty answer means nothing
// could be categorized and is not an error.
func parseAssignments(raw string) ([]Assignment, error) {
	clean := cleanModelJSON(raw, '[', ']')
	if clean == "" {
		return nil, nil
	}

	var out []Assignment
	if err := json.Unmarshal([]byte(clean), &out); err != nil {
		return nil, fmt.Errorf("parseAssignments: unmarshal JSON: %w\nraw response: %s", err, raw)
	}
	return out, nil
}

// parseActionProposal decodes a single-action answer.
func parseActionProposal(raw string) (*ActionProposal, error) {
	clean := cleanModelJSON(raw, '{', '}')

	var wire struct {
		Matched     bool            `json:"matched"`
		Kind        string          `json:"type"`
		Amount      json.RawMessage `json:"amount"`
		Description string          `json:"description"`
		CategoryID  string          `json:"categoryId"`
	}
	if err := json.Unmarshal([]byte(clean), &wire); err != nil {
		return nil, fmt.Errorf("parseActionProposal: unmarshal JSON: %w\nraw response: %s", err, raw)
	}

	p := &ActionProposal{Matched: wire.Matched, Description: wire.Description, CategoryID: wire.CategoryID}
	if !wire.Matched {
		return p, nil
	}

	kind, err := ledger.ParseKind(wire.Kind)
	if err != nil {
		return nil, fmt.Errorf("parseActionProposal: %w: %q", err, wire.Kind)
	}
	p.Kind = kind

	if len(wire.Amount) == 0 {
		return nil, fmt.Errorf("parseActionProposal: missing amount")
	}
	if err := p.Amount.UnmarshalJSON(wire.Amount); err != nil {
		return nil, fmt.Errorf("parseActionProposal: amount: %w", err)
	}
	// models sometimes sign expenses
	p.Amount = p.Amount.Abs()

	return p, nil
}

// cleanModelJSON strips Markdown fences and any text around the outermost
// open..close pair.
func cleanModelJSON(raw string, open, close byte) string {
	s := strings.TrimSpace(raw)

	// Handle ```json ... ``` or ``` ... ``` wrappers.
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		} else {
			s = strings.TrimPrefix(s, "```json")
			s = strings.TrimPrefix(s, "```")
		}
		s = strings.TrimSpace(s)
	}
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	s = strings.TrimSpace(s)

	if start := strings.IndexByte(s, open); start != -1 {
		if end := strings.LastIndexByte(s, close); end != -1 && end > start {
			s = s[start : end+1]
		}
	}
	return strings.TrimSpace(s)
}
