package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	appErrors "memorybank/pkg/errors"

	"go.uber.org/zap"
)

const (
	minConcepts = 3
	maxConcepts = 7

	// summaryFallbackLen caps the truncated-content placeholder used when
	// the summarizer is unavailable.
	summaryFallbackLen = 200
)

// ExtractionService turns free text into graph concepts, relationships
// and summaries through an LLM provider. Responses are validated against
// the expected shape on receipt; anything malformed is dropped rather
// than allowed into the graph.
type ExtractionService struct {
	provider LLMProvider
	logger   *zap.Logger
}

var (
	_ ConceptExtractor      = (*ExtractionService)(nil)
	_ RelationshipExtractor = (*ExtractionService)(nil)
	_ Summarizer            = (*ExtractionService)(nil)
)

// NewExtractionService creates an extraction service over the given provider.
func NewExtractionService(provider LLMProvider, logger *zap.Logger) *ExtractionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExtractionService{provider: provider, logger: logger}
}

// ExtractConcepts asks the provider for 3-7 concept candidates. An
// unavailable provider yields an empty list, not an error.
func (s *ExtractionService) ExtractConcepts(ctx context.Context, text string) ([]Concept, error) {
	if s.provider == nil || !s.provider.IsAvailable() {
		return nil, nil
	}

	response, err := s.provider.Complete(ctx, buildConceptPrompt(text), CompletionOptions{
		Temperature: 0.3,
		MaxTokens:   500,
		Format:      "json",
	})
	if err != nil {
		return nil, appErrors.NewUnavailable("concept extraction failed", err)
	}

	var concepts []Concept
	if err := json.Unmarshal([]byte(stripMarkdownFences(response)), &concepts); err != nil {
		s.logger.Warn("malformed concept extraction response", zap.Error(err))
		return nil, appErrors.NewUnavailable("malformed concept extraction response", err)
	}

	valid := make([]Concept, 0, len(concepts))
	for _, c := range concepts {
		if strings.TrimSpace(c.Label) == "" {
			continue
		}
		valid = append(valid, c)
		if len(valid) == maxConcepts {
			break
		}
	}
	return valid, nil
}

// ExtractRelationships proposes weighted links between the given concepts.
func (s *ExtractionService) ExtractRelationships(ctx context.Context, concepts []Concept) ([]Relationship, error) {
	if s.provider == nil || !s.provider.IsAvailable() || len(concepts) < 2 {
		return nil, nil
	}

	response, err := s.provider.Complete(ctx, buildRelationshipPrompt(concepts), CompletionOptions{
		Temperature: 0.2,
		MaxTokens:   400,
		Format:      "json",
	})
	if err != nil {
		return nil, appErrors.NewUnavailable("relationship extraction failed", err)
	}

	var relationships []Relationship
	if err := json.Unmarshal([]byte(stripMarkdownFences(response)), &relationships); err != nil {
		s.logger.Warn("malformed relationship extraction response", zap.Error(err))
		return nil, appErrors.NewUnavailable("malformed relationship extraction response", err)
	}

	valid := make([]Relationship, 0, len(relationships))
	for _, r := range relationships {
		if r.Source == "" || r.Target == "" || r.Relationship == "" {
			continue
		}
		if r.Weight < 0 {
			r.Weight = 0
		}
		if r.Weight > 1 {
			r.Weight = 1
		}
		valid = append(valid, r)
	}
	return valid, nil
}

// Summarize condenses text for a tree-index root. When the provider is
// unavailable the caller gets a truncated-content placeholder instead.
func (s *ExtractionService) Summarize(ctx context.Context, text string) (string, error) {
	if s.provider == nil || !s.provider.IsAvailable() {
		return FallbackSummary(text), nil
	}

	response, err := s.provider.Complete(ctx, buildSummaryPrompt(text), CompletionOptions{
		Temperature: 0.3,
		MaxTokens:   150,
		Format:      "text",
	})
	if err != nil {
		s.logger.Warn("summarization failed, using placeholder", zap.Error(err))
		return FallbackSummary(text), nil
	}

	summary := strings.TrimSpace(response)
	if summary == "" {
		return FallbackSummary(text), nil
	}
	return summary, nil
}

// FallbackSummary is the deterministic placeholder used when the
// summarizer cannot be reached.
func FallbackSummary(text string) string {
	if len(text) <= summaryFallbackLen {
		return text
	}
	return text[:summaryFallbackLen] + "..."
}

func buildConceptPrompt(text string) string {
	return fmt.Sprintf(`You are an expert knowledge-graph builder. Extract 3-7 key concepts from the following text.

Text:
%s

Return a JSON array with this structure:
[
  {"label": "Person", "properties": {"name": "Ada Lovelace"}},
  {"label": "Concept", "properties": {"name": "analytical engine"}}
]

Rules:
1. Label is a broad category (Person, Place, Concept, Organization, Event, Thing)
2. Every concept must have a "name" property
3. Extract between 3 and 7 concepts
4. Prefer concrete entities over vague themes
`, text)
}

func buildRelationshipPrompt(concepts []Concept) string {
	conceptList := make([]string, len(concepts))
	for i, c := range concepts {
		conceptList[i] = fmt.Sprintf(`{"label": "%s", "name": "%s"}`, c.Label, c.Name())
	}

	return fmt.Sprintf(`Propose relationships between these extracted concepts:

Concepts:
%s

Return a JSON array of relationships:
[
  {"source": "Person:Ada Lovelace", "target": "Concept:analytical engine", "relationship": "worked_on", "weight": 0.9}
]

Rules:
1. Source and target are "Label:name" references to the concepts above
2. Weight is connection strength, 0.0-1.0
3. Only propose relationships that the concepts clearly support
4. Relationship labels are short snake_case verbs
`, strings.Join(conceptList, ",\n"))
}

func buildSummaryPrompt(text string) string {
	return fmt.Sprintf(`Summarize the following text in one or two sentences. Return only the summary.

Text:
%s
`, text)
}

// stripMarkdownFences cleans up responses wrapped in ```json blocks.
func stripMarkdownFences(response string) string {
	response = strings.TrimSpace(response)
	if strings.HasPrefix(response, "```json") {
		response = strings.TrimPrefix(response, "```json")
		response = strings.TrimSuffix(response, "```")
		response = strings.TrimSpace(response)
	} else if strings.HasPrefix(response, "```") {
		response = strings.TrimPrefix(response, "```")
		response = strings.TrimSuffix(response, "```")
		response = strings.TrimSpace(response)
	}
	return response
}
