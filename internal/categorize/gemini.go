package categorize

import (
	"context"
	"fmt"

	"github.com/dvloznov/vault-ledger/internal/ledger"
	"google.golang.org/genai"
)

// ContentGenerator is the part of the genai client the classifier uses.
// *genai.Models satisfies it.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiClassifier implements BatchClassifier and ActionParser with Gemini.
type GeminiClassifier struct {
	models ContentGenerator
	model  string
}

// NewGeminiClassifier creates a Gemini client from the environment
// (GOOGLE_API_KEY or Vertex AI settings).
func NewGeminiClassifier(ctx context.Context, model string) (*GeminiClassifier, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return nil, fmt.Errorf("NewGeminiClassifier: create genai client: %w", err)
	}
	return NewGeminiClassifierWithGenerator(client.Models, model), nil
}

func NewGeminiClassifierWithGenerator(models ContentGenerator, model string) *GeminiClassifier {
	if model == "" {
		model = DefaultModelName
	}
	return &GeminiClassifier{models: models, model: model}
}

// ClassifyTransactions implements BatchClassifier.
func (g *GeminiClassifier) ClassifyTransactions(ctx context.Context, txs []TransactionInput, categories []ledger.Category, contextPrompt string) ([]Assignment, error) {
	prompt, err := buildBatchPrompt(txs, categories, contextPrompt)
	if err != nil {
		return nil, err
	}

	raw, err := g.generate(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("ClassifyTransactions: %w", err)
	}

	assignments, err := parseAssignments(raw)
	if err != nil {
		return nil, fmt.Errorf("ClassifyTransactions: %w: %v", ErrClassificationFailed, err)
	}
	return assignments, nil
}

// ParseAction implements ActionParser.
func (g *GeminiClassifier) ParseAction(ctx context.Context, text string, categories []ledger.Category, contextPrompt string) (*ActionProposal, error) {
	raw, err := g.generate(ctx, buildActionPrompt(text, categories, contextPrompt))
	if err != nil {
		return nil, fmt.Errorf("ParseAction: %w: %v", ErrClassificationFailed, err)
	}
	if raw == "" {
		return nil, fmt.Errorf("ParseAction: %w: empty response from model", ErrClassificationFailed)
	}

	p, err := parseActionProposal(raw)
	if err != nil {
		return nil, fmt.Errorf("ParseAction: %w: %v", ErrClassificationFailed, err)
	}
	return p, nil
}

func (g *GeminiClassifier) generate(ctx context.Context, prompt string) (string, error) {
	contents := []*genai.Content{
		{
			Role:  "user",
			Parts: []*genai.Part{{Text: prompt}},
		},
	}

	resp, err := g.models.GenerateContent(ctx, g.model, contents, nil)
	if err != nil {
		return "", fmt.Errorf("generate content: %w: %w", ErrClassifierUnreachable, err)
	}
	return resp.Text(), nil
}

var (
	_ BatchClassifier = (*GeminiClassifier)(nil)
	_ ActionParser    = (*GeminiClassifier)(nil)
)
