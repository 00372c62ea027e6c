// Package llm narrows the gateway's two outbound model dependencies -
// embedding and free-form completion - to the two interfaces the rest
// of the system actually calls through (spec §4.4, §4.5.2): Embedder
// for memory storage/retrieval, Completer for the router's optional
// LLM-assisted classification stage and cross-store synthesis.
package llm

import (
	"context"
	"fmt"

	"mimogate/internal/embedding"
	"mimogate/internal/logging"

	"google.golang.org/genai"
)

// Embedder generates vector embeddings for text. It is satisfied
// directly by embedding.EmbeddingEngine.
type Embedder = embedding.EmbeddingEngine

// Completer answers a single free-form prompt. Both the router's
// Analyzer stage and the /ask synthesis step treat any error or
// context deadline as "no LLM available" and fall back to their
// heuristic path rather than failing the call (spec §4.4).
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// GenAICompleter implements Completer against Google's GenAI API.
type GenAICompleter struct {
	client *genai.Client
	model  string
}

// NewGenAICompleter creates a Completer backed by the given API key
// and model (default "gemini-2.0-flash" when model is empty).
func NewGenAICompleter(ctx context.Context, apiKey, model string) (*GenAICompleter, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("llm: genai api key is required")
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("llm: new genai client: %w", err)
	}
	return &GenAICompleter{client: client, model: model}, nil
}

// Complete sends prompt to the configured model and returns its text.
func (c *GenAICompleter) Complete(ctx context.Context, prompt string) (string, error) {
	timer := logging.StartTimer(logging.CategoryRouter, "GenAICompleter.Complete")
	defer timer.Stop()

	contents := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}
	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, nil)
	if err != nil {
		return "", fmt.Errorf("llm: generate content: %w", err)
	}
	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("llm: empty response")
	}
	return text, nil
}

// NopCompleter always fails, forcing every caller onto its heuristic
// fallback path. Used when no completion endpoint is configured.
type NopCompleter struct{}

func (NopCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	return "", fmt.Errorf("llm: no completion backend configured")
}
