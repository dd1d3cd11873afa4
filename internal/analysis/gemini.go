package analysis

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// GeminiGenerator calls the Gemini API.
type GeminiGenerator struct {
	client *genai.Client
}

// NewGeminiGenerator creates a Gemini API client. baseURL overrides the API endpoint when set.
func NewGeminiGenerator(ctx context.Context, apiKey, baseURL string) (*GeminiGenerator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GenAI API key is required")
	}

	config := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		config.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}

	client, err := genai.NewClient(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &GeminiGenerator{client: client}, nil
}

func (g *GeminiGenerator) Generate(ctx context.Context, model, prompt string, temperature float32) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, model, genai.Text(prompt), &genai.GenerateContentConfig{
		Temperature: &temperature,
	})
	if err != nil {
		return "", fmt.Errorf("GenAI generate failed: %w", err)
	}
	return resp.Text(), nil
}
