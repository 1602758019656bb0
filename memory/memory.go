// Package memory implements the pluggable agent-memory subsystem: one
// contract, three interchangeable backends with distinct recall
// strategies.
//
//   - buffer: recency- and importance-weighted flat cache with
//     capacity-driven pruning
//   - graph: concept/relationship extraction into a weighted directed
//     graph, answered by bounded-depth traversal
//   - indexed: overlapping content chunks served by list, keyword_table
//     or tree retrieval
//
// Instances hydrate lazily from the durable store on first use and
// write through on every mutation.
package memory

import (
	"context"
	"fmt"
	"time"

	"memorybank/domain"
	"memorybank/observability"
	appErrors "memorybank/pkg/errors"
	"memorybank/provider"
	"memorybank/repository"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// Backend selects a recall strategy. Resolved once at construction;
// there is no string dispatch at call sites.
type Backend string

const (
	BackendBuffer  Backend = "buffer"
	BackendGraph   Backend = "graph"
	BackendIndexed Backend = "indexed"
)

// ParseBackend resolves a backend name.
func ParseBackend(s string) (Backend, error) {
	switch Backend(s) {
	case BackendBuffer, BackendGraph, BackendIndexed:
		return Backend(s), nil
	}
	return "", appErrors.NewValidation(fmt.Sprintf("unknown memory backend %q", s))
}

// Strategy selects how the indexed backend retrieves chunks.
type Strategy string

const (
	StrategyList         Strategy = "list"
	StrategyKeywordTable Strategy = "keyword_table"
	StrategyTree         Strategy = "tree"
)

// SearchResult is one ranked hit. Context carries supporting material:
// traversed graph node descriptions or matched chunk excerpts.
type SearchResult struct {
	Entry   *domain.MemoryEntry `json:"entry"`
	Score   float64             `json:"score"`
	Context []string            `json:"context,omitempty"`
}

// Update is a partial entry change. Nil fields are left untouched;
// Metadata replaces the whole bag when set.
type Update struct {
	Content    *string        `json:"content,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Importance *float64       `json:"importance,omitempty"`
	Expires    *time.Time     `json:"expires,omitempty"`
}

// Memory is the contract every backend implements.
type Memory interface {
	AddMemory(ctx context.Context, entry *domain.MemoryEntry) error
	GetMemory(ctx context.Context, key string) (*domain.MemoryEntry, error)
	UpdateMemory(ctx context.Context, key string, update Update) error
	RemoveMemory(ctx context.Context, key string) error
	SearchMemories(ctx context.Context, query string, limit int) ([]SearchResult, error)
	Clear(ctx context.Context) error
	Metrics() domain.Metrics
	UpdateConfig(patch ConfigPatch) error
}

// Config carries the tuning knobs shared across backends. The scoring
// constants are policy defaults, not correctness requirements.
type Config struct {
	MaxItems           int           `json:"max_items" validate:"gt=0"`
	TTL                time.Duration `json:"ttl" validate:"gte=0"`
	RelevanceThreshold float64       `json:"relevance_threshold" validate:"gte=0,lte=1"`
	RecencyWeight      float64       `json:"recency_weight" validate:"gte=0,lte=1"`
	RetrievalDepth     int           `json:"retrieval_depth" validate:"gt=0"`
	MinNodeWeight      float64       `json:"min_node_weight" validate:"gte=0,lte=1"`
	MinEdgeWeight      float64       `json:"min_edge_weight" validate:"gte=0,lte=1"`
	ChunkSize          int           `json:"chunk_size" validate:"gt=0"`
	ChunkOverlap       int           `json:"chunk_overlap" validate:"gte=0,ltfield=ChunkSize"`
	Strategy           Strategy      `json:"strategy" validate:"oneof=list keyword_table tree"`
	EmbeddingDim       int           `json:"embedding_dim" validate:"gt=0"`
}

// DefaultConfig returns the starting configuration for a new instance.
func DefaultConfig() Config {
	return Config{
		MaxItems:           1000,
		TTL:                0,
		RelevanceThreshold: 0.3,
		RecencyWeight:      0.3,
		RetrievalDepth:     2,
		MinNodeWeight:      0.05,
		MinEdgeWeight:      0.1,
		ChunkSize:          1000,
		ChunkOverlap:       100,
		Strategy:           StrategyList,
		EmbeddingDim:       provider.DefaultEmbeddingDim,
	}
}

// Validate checks the configuration against its struct tags.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return appErrors.NewValidation(fmt.Sprintf("invalid memory config: %v", err))
	}
	return nil
}

// ConfigPatch is a partial configuration change for UpdateConfig.
type ConfigPatch struct {
	MaxItems           *int
	TTL                *time.Duration
	RelevanceThreshold *float64
	RecencyWeight      *float64
	RetrievalDepth     *int
	MinNodeWeight      *float64
	MinEdgeWeight      *float64
	ChunkSize          *int
	ChunkOverlap       *int
	Strategy           *Strategy
}

func (p ConfigPatch) apply(cfg Config) Config {
	if p.MaxItems != nil {
		cfg.MaxItems = *p.MaxItems
	}
	if p.TTL != nil {
		cfg.TTL = *p.TTL
	}
	if p.RelevanceThreshold != nil {
		cfg.RelevanceThreshold = *p.RelevanceThreshold
	}
	if p.RecencyWeight != nil {
		cfg.RecencyWeight = *p.RecencyWeight
	}
	if p.RetrievalDepth != nil {
		cfg.RetrievalDepth = *p.RetrievalDepth
	}
	if p.MinNodeWeight != nil {
		cfg.MinNodeWeight = *p.MinNodeWeight
	}
	if p.MinEdgeWeight != nil {
		cfg.MinEdgeWeight = *p.MinEdgeWeight
	}
	if p.ChunkSize != nil {
		cfg.ChunkSize = *p.ChunkSize
	}
	if p.ChunkOverlap != nil {
		cfg.ChunkOverlap = *p.ChunkOverlap
	}
	if p.Strategy != nil {
		cfg.Strategy = *p.Strategy
	}
	return cfg
}

// Options wires one memory instance to its collaborators. Store is
// required; everything else defaults to a no-op or degraded stand-in.
type Options struct {
	Owner string
	Name  string

	Store  repository.Store
	Logger *zap.Logger

	Embedder      provider.Embedder
	Concepts      provider.ConceptExtractor
	Relationships provider.RelationshipExtractor
	Summarizer    provider.Summarizer

	Collector *observability.Collector
}

// New constructs a memory instance of the chosen backend. The instance
// hydrates from the store lazily, on its first operation.
func New(backend Backend, cfg Config, opts Options) (Memory, error) {
	if opts.Store == nil {
		return nil, appErrors.NewValidation("memory store is required")
	}
	if opts.Owner == "" || opts.Name == "" {
		return nil, appErrors.NewValidation("memory owner and name are required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch backend {
	case BackendBuffer:
		return newBufferMemory(cfg, opts), nil
	case BackendGraph:
		return newGraphMemory(cfg, opts), nil
	case BackendIndexed:
		return newIndexedMemory(cfg, opts), nil
	default:
		return nil, appErrors.NewValidation(fmt.Sprintf("unknown memory backend %q", backend))
	}
}
