package provider

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"

	appErrors "memorybank/pkg/errors"
)

// HashEmbedder generates deterministic embeddings from a text hash. It is
// both the test embedder and the reduced-quality fallback when no real
// embedding provider is configured: downstream cosine-similarity code
// keeps working, identical texts still land on identical vectors.
type HashEmbedder struct {
	dimensions int
}

var _ Embedder = (*HashEmbedder)(nil)

// NewHashEmbedder creates a deterministic embedder of the given dimension.
func NewHashEmbedder(dimensions int) *HashEmbedder {
	if dimensions <= 0 {
		dimensions = DefaultEmbeddingDim
	}
	return &HashEmbedder{dimensions: dimensions}
}

// Embed creates a unit vector seeded by the FNV hash of the text.
func (m *HashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	h := fnv.New64a()
	h.Write([]byte(text))
	seed := h.Sum64()

	embedding := make([]float32, m.dimensions)
	for i := 0; i < m.dimensions; i++ {
		// LCG step per component
		seed = seed*6364136223846793005 + 1442695040888963407
		embedding[i] = float32(int64(seed)) / float32(math.MaxInt64)
	}

	var norm float32
	for _, v := range embedding {
		norm += v * v
	}
	if norm > 0 {
		norm = float32(math.Sqrt(float64(norm)))
		for i := range embedding {
			embedding[i] /= norm
		}
	}
	return embedding, nil
}

// Dimensions returns the embedding vector size.
func (m *HashEmbedder) Dimensions() int {
	return m.dimensions
}

// MockProvider returns canned completions for tests. Responses are keyed
// by a substring of the prompt; unmatched prompts fail.
type MockProvider struct {
	available bool
	responses map[string]string
}

var _ LLMProvider = (*MockProvider)(nil)

// NewMockProvider creates an available mock with no canned responses.
func NewMockProvider() *MockProvider {
	return &MockProvider{
		available: true,
		responses: make(map[string]string),
	}
}

// Respond registers a canned response for prompts containing marker.
func (m *MockProvider) Respond(marker, response string) {
	m.responses[marker] = response
}

// SetAvailable controls availability (for testing degraded paths).
func (m *MockProvider) SetAvailable(available bool) {
	m.available = available
}

// IsAvailable reports whether the mock provider is available.
func (m *MockProvider) IsAvailable() bool {
	return m.available
}

// Complete returns the canned response whose marker the prompt contains.
func (m *MockProvider) Complete(ctx context.Context, prompt string, options CompletionOptions) (string, error) {
	if !m.available {
		return "", appErrors.NewUnavailable("mock provider is not available", nil)
	}
	for marker, response := range m.responses {
		if marker != "" && strings.Contains(prompt, marker) {
			return response, nil
		}
	}
	return "", fmt.Errorf("no canned response for prompt")
}
