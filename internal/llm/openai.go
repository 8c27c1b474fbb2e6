package llm

import (
	"context"
	"fmt"
	"math"

	openai "github.com/sashabaranov/go-openai"
)

const providerOpenAI = "openai"

// OpenAIClient serves both embeddings and chat through the OpenAI API,
// or any server that speaks it when BaseURL is overridden.
type OpenAIClient struct {
	client         *openai.Client
	chatModel      string
	embeddingModel string
	dimensions     int
}

// NewOpenAIClient creates a client. An empty baseURL uses the public OpenAI endpoint;
// otherwise baseURL must include the API version prefix (for example http://host/v1).
// dimensions is requested from models that support shortening; zero leaves the model default.
func NewOpenAIClient(baseURL, apiKey, chatModel, embeddingModel string, dimensions int) *OpenAIClient {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIClient{
		client:         openai.NewClientWithConfig(cfg),
		chatModel:      chatModel,
		embeddingModel: embeddingModel,
		dimensions:     dimensions,
	}
}

// EmbedTexts implements Embedder.
func (c *OpenAIClient) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("empty input array")
	}

	req := openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(c.embeddingModel),
		Input: texts,
	}
	if c.dimensions > 0 {
		req.Dimensions = c.dimensions
	}

	resp, err := c.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, &EmbeddingProviderError{Provider: providerOpenAI, Err: err}
	}
	if len(resp.Data) != len(texts) {
		return nil, &EmbeddingProviderError{
			Provider: providerOpenAI,
			Err:      fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Data)),
		}
	}

	vectors := make([][]float32, len(texts))
	for i, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(texts) {
			return nil, &EmbeddingProviderError{
				Provider: providerOpenAI,
				Err:      fmt.Errorf("embedding %d has index %d, expected [0, %d)", i, d.Index, len(texts)),
			}
		}
		if vectors[d.Index] != nil {
			return nil, &EmbeddingProviderError{Provider: providerOpenAI, Err: fmt.Errorf("duplicate embedding index %d", d.Index)}
		}
		if len(d.Embedding) == 0 {
			return nil, &EmbeddingProviderError{Provider: providerOpenAI, Err: fmt.Errorf("embedding %d is empty", d.Index)}
		}
		vectors[d.Index] = d.Embedding
	}

	size := len(vectors[0])
	for i, v := range vectors {
		if len(v) != size {
			return nil, &EmbeddingProviderError{
				Provider: providerOpenAI,
				Err:      fmt.Errorf("embedding %d has size %d, expected %d", i, len(v), size),
			}
		}
	}
	return vectors, nil
}

// ChatWithMessages implements Generator.
func (c *OpenAIClient) ChatWithMessages(ctx context.Context, messages []Message, params ChatParams) (string, error) {
	model := params.Model
	if model == "" {
		model = c.chatModel
	}

	req := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    make([]openai.ChatCompletionMessage, 0, len(messages)),
		Temperature: requestTemperature(params.Temperature),
		MaxTokens:   params.MaxTokens,
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", &GenerationProviderError{Provider: providerOpenAI, Err: err}
	}
	if len(resp.Choices) == 0 {
		return "", &GenerationProviderError{Provider: providerOpenAI, Err: fmt.Errorf("no choices returned")}
	}
	return resp.Choices[0].Message.Content, nil
}

// requestTemperature keeps a zero temperature on the wire; go-openai omits a zero value
// and the server would fall back to its own default.
func requestTemperature(t float32) float32 {
	if t == 0 {
		return math.SmallestNonzeroFloat32
	}
	return t
}
