package provider

import (
	"context"

	appErrors "memorybank/pkg/errors"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// DefaultEmbeddingDim matches text-embedding-3-small.
const DefaultEmbeddingDim = 1536

// OpenAIProvider implements LLMProvider over the OpenAI chat API.
type OpenAIProvider struct {
	client openai.Client
	model  openai.ChatModel
	apiKey string
}

var _ LLMProvider = (*OpenAIProvider)(nil)

// NewOpenAIProvider creates a chat-completion provider. An empty API key
// yields a provider that reports itself unavailable, which routes every
// caller onto the degraded path.
func NewOpenAIProvider(apiKey string, model openai.ChatModel) *OpenAIProvider {
	if model == "" {
		model = openai.ChatModelGPT4oMini
	}
	return &OpenAIProvider{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
		apiKey: apiKey,
	}
}

// IsAvailable reports whether the provider has credentials.
func (p *OpenAIProvider) IsAvailable() bool {
	return p.apiKey != ""
}

// Complete runs one chat completion and returns the raw text.
func (p *OpenAIProvider) Complete(ctx context.Context, prompt string, options CompletionOptions) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: p.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
	}
	if options.Temperature > 0 {
		params.Temperature = openai.Float(options.Temperature)
	}
	if options.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(options.MaxTokens))
	}

	completion, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", appErrors.NewUnavailable("openai completion failed", err)
	}
	if len(completion.Choices) == 0 {
		return "", appErrors.NewUnavailable("openai completion returned no choices", nil)
	}
	return completion.Choices[0].Message.Content, nil
}

// OpenAIEmbedder implements Embedder over the OpenAI embeddings API.
type OpenAIEmbedder struct {
	client     openai.Client
	model      openai.EmbeddingModel
	dimensions int
}

var _ Embedder = (*OpenAIEmbedder)(nil)

// NewOpenAIEmbedder creates an embedder producing 1536-dimension vectors.
func NewOpenAIEmbedder(apiKey string, model openai.EmbeddingModel) *OpenAIEmbedder {
	if model == "" {
		model = openai.EmbeddingModelTextEmbedding3Small
	}
	return &OpenAIEmbedder{
		client:     openai.NewClient(option.WithAPIKey(apiKey)),
		model:      model,
		dimensions: DefaultEmbeddingDim,
	}
}

// Embed converts text into an embedding vector.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: e.model,
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: []string{text}},
	})
	if err != nil {
		return nil, appErrors.NewUnavailable("openai embedding failed", err)
	}
	if len(resp.Data) == 0 {
		return nil, appErrors.NewUnavailable("openai embedding returned no data", nil)
	}

	vec := make([]float32, len(resp.Data[0].Embedding))
	for i, v := range resp.Data[0].Embedding {
		vec[i] = float32(v)
	}
	return vec, nil
}

// Dimensions returns the embedding vector size.
func (e *OpenAIEmbedder) Dimensions() int {
	return e.dimensions
}
