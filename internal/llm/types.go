package llm

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_llm.go -package=mocks quakeqa/internal/llm Embedder,Generator

import (
	"context"
	"fmt"
)

// Message represents a single message in a chat conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatParams holds parameters for chat completion requests.
type ChatParams struct {
	// Model specifies the model to use. If empty, the client's default model is used.
	Model string

	// MaxTokens specifies the maximum number of tokens to generate.
	// If 0, no limit is applied.
	MaxTokens int

	// Temperature controls the randomness of the output.
	Temperature float32
}

// Embedder maps texts to vectors of one fixed dimension.
// Output order matches input order and identical input yields identical vectors.
type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// Generator returns the model's reply to a conversation.
type Generator interface {
	ChatWithMessages(ctx context.Context, messages []Message, params ChatParams) (string, error)
}

// EmbedText embeds a single text.
func EmbedText(ctx context.Context, e Embedder, text string) ([]float32, error) {
	vectors, err := e.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) != 1 {
		return nil, &EmbeddingProviderError{Provider: "unknown", Err: fmt.Errorf("expected 1 embedding, got %d", len(vectors))}
	}
	return vectors[0], nil
}
