// Package provider defines the external collaborator contracts the memory
// backends depend on (embeddings, concept and relationship extraction,
// summarization) and their LLM-backed and degraded implementations.
//
// Every implementation must degrade rather than fail: the backends treat
// a provider error as "no derived data", store the entry anyway, and fall
// back to text search.
package provider

import "context"

// Concept is one extracted candidate from free text.
type Concept struct {
	Label      string         `json:"label"`
	Properties map[string]any `json:"properties,omitempty"`
}

// Name returns the concept's name property, if any.
func (c Concept) Name() string {
	if s, ok := c.Properties["name"].(string); ok {
		return s
	}
	return ""
}

// Relationship is one proposed weighted link between two concepts.
type Relationship struct {
	Source       string  `json:"source"`
	Target       string  `json:"target"`
	Relationship string  `json:"relationship"`
	Weight       float64 `json:"weight"`
}

// Embedder converts text to a fixed-dimension vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

// ConceptExtractor pulls 3-7 concept candidates out of free text.
// Returns an empty slice when unavailable.
type ConceptExtractor interface {
	ExtractConcepts(ctx context.Context, text string) ([]Concept, error)
}

// RelationshipExtractor proposes links between extracted concepts.
// Returns an empty slice when unavailable.
type RelationshipExtractor interface {
	ExtractRelationships(ctx context.Context, concepts []Concept) ([]Relationship, error)
}

// Summarizer condenses text into a short summary for tree-index roots.
type Summarizer interface {
	Summarize(ctx context.Context, text string) (string, error)
}

// CompletionOptions configures LLM completion requests.
type CompletionOptions struct {
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
	Format      string  `json:"format"` // "json" or "text"
}

// LLMProvider is the raw completion interface behind the extraction
// service. Implementations: OpenAIProvider, MockProvider.
type LLMProvider interface {
	Complete(ctx context.Context, prompt string, options CompletionOptions) (string, error)
	IsAvailable() bool
}
