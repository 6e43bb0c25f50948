package categorize

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"google.golang.org/genai"
)

// DefaultModelName is the Gemini model used for category suggestions.
const DefaultModelName = "gemini-2.5-flash"

// Input describes a transaction awaiting a category.
type Input struct {
	Store        string
	Description  string
	OriginalType string
	Amount       decimal.Decimal
}

// Suggester proposes a category from the vocabulary.
type Suggester interface {
	Suggest(ctx context.Context, in Input) (string, error)
}

// Suggest implements Suggester with the rule set alone.
func (c *Categorizer) Suggest(ctx context.Context, in Input) (string, error) {
	return c.SuggestCategory(in.Store, in.Description, in.OriginalType), nil
}

// contentGenerator is the part of *genai.Models the suggester uses.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiSuggester asks a Gemini model when the rules only reach the
// fallback category. Model failures and out-of-vocabulary answers fall back
// to the rule result.
type GeminiSuggester struct {
	rules  *Categorizer
	models contentGenerator
	model  string
	log    zerolog.Logger
}

// NewGeminiSuggester creates a Gemini API client with apiKey.
func NewGeminiSuggester(ctx context.Context, rules *Categorizer, apiKey, model string, log zerolog.Logger) (*GeminiSuggester, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("NewGeminiSuggester: create genai client: %w", err)
	}
	if model == "" {
		model = DefaultModelName
	}
	return &GeminiSuggester{rules: rules, models: client.Models, model: model, log: log}, nil
}

// Suggest implements Suggester.
func (g *GeminiSuggester) Suggest(ctx context.Context, in Input) (string, error) {
	ruled := g.rules.SuggestCategory(in.Store, in.Description, in.OriginalType)
	if ruled != FallbackExpense {
		return ruled, nil
	}

	contents := []*genai.Content{
		{
			Role:  "user",
			Parts: []*genai.Part{{Text: g.prompt(in)}},
		},
	}
	resp, err := g.models.GenerateContent(ctx, g.model, contents, nil)
	if err != nil {
		g.log.Warn().Err(err).Str("store", in.Store).Msg("Category model call failed, using rule fallback")
		return ruled, nil
	}

	answer := cleanModelAnswer(resp.Text())
	if !g.rules.IsValidCategory(answer) {
		g.log.Debug().Str("answer", answer).Str("store", in.Store).Msg("Model answered outside the vocabulary")
		return ruled, nil
	}
	return g.rules.NormalizeCategory(answer), nil
}

func (g *GeminiSuggester) prompt(in Input) string {
	var b strings.Builder
	b.WriteString("You categorise personal bank transactions.\n\n")
	b.WriteString("Use ONLY one of the following categories:\n")
	for _, cat := range g.rules.Categories() {
		b.WriteString("  - " + cat + "\n")
	}
	b.WriteString("\nTransaction:\n")
	fmt.Fprintf(&b, "  store: %s\n", in.Store)
	fmt.Fprintf(&b, "  description: %s\n", in.Description)
	fmt.Fprintf(&b, "  bank type: %s\n", in.OriginalType)
	fmt.Fprintf(&b, "  amount: %s\n\n", in.Amount.StringFixed(2))
	b.WriteString("Return ONLY the category name, exactly as listed. No punctuation, no explanation.\n")
	return b.String()
}

func cleanModelAnswer(raw string) string {
	// First non-fence line, minus quoting.
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "```") {
			continue
		}
		return strings.TrimSpace(strings.Trim(line, "`\"'."))
	}
	return ""
}
