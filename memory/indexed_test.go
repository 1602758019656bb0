package memory

import (
	"context"
	"strings"
	"testing"

	"memorybank/domain"
	appErrors "memorybank/pkg/errors"
	"memorybank/repository/mocks"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// failingEmbedder always errors, forcing the substring fallback.
type failingEmbedder struct{}

func (failingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, appErrors.NewUnavailable("embedding service down", nil)
}

func (failingEmbedder) Dimensions() int { return 8 }

// stubSummarizer returns a fixed summary.
type stubSummarizer struct{ summary string }

func (s *stubSummarizer) Summarize(ctx context.Context, text string) (string, error) {
	return s.summary, nil
}

func newIndexedForTest(t *testing.T, cfg Config, opts Options) Memory {
	t.Helper()
	if opts.Owner == "" {
		opts.Owner = "tester"
	}
	if opts.Name == "" {
		opts.Name = "indexed-test"
	}
	if opts.Store == nil {
		opts.Store = mocks.NewMockStore()
	}
	mem, err := New(BackendIndexed, cfg, opts)
	require.NoError(t, err)
	return mem
}

func TestIndexed_ListStrategy(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Strategy = StrategyList
	cfg.EmbeddingDim = 64
	mem := newIndexedForTest(t, cfg, Options{})
	ctx := context.Background()

	require.NoError(t, mem.AddMemory(ctx, &domain.MemoryEntry{
		Key:        "m1",
		Content:    "kubernetes cluster autoscaling guide",
		Importance: 1.0,
	}))
	require.NoError(t, mem.AddMemory(ctx, &domain.MemoryEntry{
		Key:        "m2",
		Content:    "sourdough bread starter recipe",
		Importance: 1.0,
	}))

	// The deterministic embedder maps identical text to identical
	// vectors, so querying with the exact content scores 1.0.
	results, err := mem.SearchMemories(ctx, "kubernetes cluster autoscaling guide", 10)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "m1", results[0].Entry.Key)
	assert.InDelta(t, 1.0, results[0].Score, 1e-6)
	assert.NotEmpty(t, results[0].Context, "matched chunk excerpts attached")
}

func TestIndexed_KeywordTableStrategy(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Strategy = StrategyKeywordTable
	cfg.EmbeddingDim = 64
	mem := newIndexedForTest(t, cfg, Options{})
	ctx := context.Background()

	require.NoError(t, mem.AddMemory(ctx, &domain.MemoryEntry{
		Key:        "m1",
		Content:    "kubernetes deployment rollback procedure",
		Importance: 1.0,
	}))
	require.NoError(t, mem.AddMemory(ctx, &domain.MemoryEntry{
		Key:        "m2",
		Content:    "gardening in raised beds",
		Importance: 1.0,
	}))

	t.Run("scores by keyword fraction", func(t *testing.T) {
		results, err := mem.SearchMemories(ctx, "kubernetes rollback", 10)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "m1", results[0].Entry.Key)
		assert.InDelta(t, 1.0, results[0].Score, 1e-6)
	})

	t.Run("stop-word-only query yields nothing", func(t *testing.T) {
		results, err := mem.SearchMemories(ctx, "the and of", 10)
		require.NoError(t, err)
		assert.Empty(t, results)
	})
}

func TestIndexed_TreeStrategy(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Strategy = StrategyTree
	cfg.EmbeddingDim = 64
	cfg.ChunkSize = 60
	cfg.ChunkOverlap = 10
	mem := newIndexedForTest(t, cfg, Options{
		Summarizer: &stubSummarizer{summary: "incident review for the kubernetes outage"},
	})
	ctx := context.Background()

	content := strings.Repeat("the kubernetes control plane failed during the upgrade. ", 4)
	require.NoError(t, mem.AddMemory(ctx, &domain.MemoryEntry{
		Key:        "m1",
		Content:    content,
		Importance: 1.0,
	}))

	// Chunks plus one synthesized root.
	chunks := chunkText(content, cfg.ChunkSize, cfg.ChunkOverlap)
	assert.Equal(t, len(chunks)+1, mem.Metrics().NodeCount)

	// Querying with one chunk's exact text pins its cosine score to 1.0
	// on top of the keyword bonuses.
	results, err := mem.SearchMemories(ctx, chunks[0].Text, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "m1", results[0].Entry.Key)
	assert.GreaterOrEqual(t, results[0].Score, 1.0)
	assert.NotEmpty(t, results[0].Context)
}

func TestIndexed_SubstringFallback(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Strategy = StrategyList
	cfg.EmbeddingDim = 8
	store := mocks.NewMockStore()
	mem := newIndexedForTest(t, cfg, Options{Store: store, Embedder: failingEmbedder{}})
	ctx := context.Background()

	require.NoError(t, mem.AddMemory(ctx, &domain.MemoryEntry{
		Key:        "m1",
		Content:    "terraform state locking explained",
		Importance: 1.0,
	}), "embedding failure degrades, never fails the add")

	// The query embedding fails too, so the strategy errors and the
	// substring scan takes over.
	results, err := mem.SearchMemories(ctx, "terraform locking", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "m1", results[0].Entry.Key)
}

func TestIndexed_UpdateReindexes(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Strategy = StrategyKeywordTable
	cfg.EmbeddingDim = 8
	mem := newIndexedForTest(t, cfg, Options{})
	ctx := context.Background()

	require.NoError(t, mem.AddMemory(ctx, &domain.MemoryEntry{
		Key:        "m1",
		Content:    "redis caching strategies",
		Importance: 1.0,
	}))

	newContent := "postgres indexing strategies"
	require.NoError(t, mem.UpdateMemory(ctx, "m1", Update{Content: &newContent}))

	results, err := mem.SearchMemories(ctx, "postgres indexing", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)

	results, err = mem.SearchMemories(ctx, "redis caching", 10)
	require.NoError(t, err)
	assert.Empty(t, results, "stale chunks were dropped")
}

func TestIndexed_RemoveDropsIndex(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EmbeddingDim = 8
	mem := newIndexedForTest(t, cfg, Options{})
	ctx := context.Background()

	require.NoError(t, mem.AddMemory(ctx, &domain.MemoryEntry{Key: "m1", Content: "some content", Importance: 1.0}))
	require.NoError(t, mem.RemoveMemory(ctx, "m1"))

	metrics := mem.Metrics()
	assert.Equal(t, 0, metrics.CacheSize)
	assert.Equal(t, 0, metrics.NodeCount)
}

func TestIndexed_Clear(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EmbeddingDim = 8
	mem := newIndexedForTest(t, cfg, Options{})
	ctx := context.Background()

	require.NoError(t, mem.AddMemory(ctx, &domain.MemoryEntry{Key: "m1", Content: "clearable content", Importance: 1.0}))
	require.NoError(t, mem.Clear(ctx))

	results, err := mem.SearchMemories(ctx, "clearable content", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Equal(t, 0, mem.Metrics().CacheSize)
}
