// ABOUTME: Generation boundary for the turn-based Gemini fallback
// ABOUTME: Narrow interface over the genai client so the service is testable
package chat

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// Generator is the slice of the Gemini API the chat service uses. The
// real implementation wraps *genai.Client; tests substitute a fake.
type Generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
	GenerateImages(ctx context.Context, model, prompt string, config *genai.GenerateImagesConfig) (*genai.GenerateImagesResponse, error)
}

type geminiGenerator struct {
	client *genai.Client
}

// NewGeminiGenerator dials the Gemini API with the given key.
func NewGeminiGenerator(ctx context.Context, apiKey string) (Generator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &geminiGenerator{client: client}, nil
}

func (g *geminiGenerator) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	return g.client.Models.GenerateContent(ctx, model, contents, config)
}

func (g *geminiGenerator) GenerateImages(ctx context.Context, model, prompt string, config *genai.GenerateImagesConfig) (*genai.GenerateImagesResponse, error) {
	return g.client.Models.GenerateImages(ctx, model, prompt, config)
}
