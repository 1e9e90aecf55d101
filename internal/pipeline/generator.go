package pipeline

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"
)

// ErrNoInput is returned when a request carries neither text nor a PDF.
var ErrNoInput = errors.New("request has neither text nor PDF")

// GeminiCompletionGenerator is the concrete CompletionGenerator backed by Gemini.
type GeminiCompletionGenerator struct {
	client *genai.Client
	model  string
}

// NewGeminiCompletionGenerator creates a Gemini client. An empty apiKey falls
// back to the GOOGLE_API_KEY / GEMINI_API_KEY environment handled by genai.
func NewGeminiCompletionGenerator(ctx context.Context, apiKey, model string) (*GeminiCompletionGenerator, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      apiKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return nil, fmt.Errorf("NewGeminiCompletionGenerator: create genai client: %w", err)
	}
	if model == "" {
		model = DefaultModelName
	}
	return &GeminiCompletionGenerator{client: client, model: model}, nil
}

// GenerateCompletion sends the statement to Gemini and returns the raw text.
func (g *GeminiCompletionGenerator) GenerateCompletion(ctx context.Context, req CompletionRequest) (string, error) {
	prompt := BuildReadStatementPrompt(req.Categories)

	parts := []*genai.Part{{Text: prompt}}
	switch {
	case req.Text != "" && len(req.Text) <= maxStatementTextLen:
		parts = append(parts, &genai.Part{Text: "Statement text:\n" + req.Text})
	case len(req.PDF) > 0:
		parts = append(parts, &genai.Part{
			InlineData: &genai.Blob{
				MIMEType: "application/pdf",
				Data:     req.PDF,
			},
		})
	default:
		return "", fmt.Errorf("GenerateCompletion: %w", ErrNoInput)
	}

	contents := []*genai.Content{{Role: "user", Parts: parts}}
	cfg := &genai.GenerateContentConfig{Temperature: genai.Ptr[float32](DefaultTemperature)}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, cfg)
	if err != nil {
		return "", fmt.Errorf("GenerateCompletion: generate content: %w", err)
	}

	rawText := resp.Text()
	if rawText == "" {
		return "", fmt.Errorf("GenerateCompletion: empty response from model")
	}

	return cleanCompletion(rawText), nil
}

var _ CompletionGenerator = (*GeminiCompletionGenerator)(nil)
