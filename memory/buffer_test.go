package memory

import (
	"context"
	"testing"
	"time"

	"memorybank/domain"
	appErrors "memorybank/pkg/errors"
	"memorybank/repository/mocks"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBufferForTest(t *testing.T, cfg Config) (Memory, *mocks.MockStore) {
	t.Helper()
	store := mocks.NewMockStore()
	mem, err := New(BackendBuffer, cfg, Options{
		Owner: "tester",
		Name:  "buffer-test",
		Store: store,
	})
	require.NoError(t, err)
	return mem, store
}

func TestBuffer_AddGetRoundTrip(t *testing.T) {
	mem, _ := newBufferForTest(t, DefaultConfig())
	ctx := context.Background()

	require.NoError(t, mem.AddMemory(ctx, &domain.MemoryEntry{
		Key:        "k1",
		Content:    "the quarterly report",
		Metadata:   map[string]any{"title": "Q3 report"},
		Importance: 0.8,
	}))

	got, err := mem.GetMemory(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, "the quarterly report", got.Content)
	assert.Equal(t, map[string]any{"title": "Q3 report"}, got.Metadata)
	assert.Equal(t, 1, got.AccessCount)
	require.NotNil(t, got.LastAccessed)
}

func TestBuffer_ImportanceClamped(t *testing.T) {
	mem, _ := newBufferForTest(t, DefaultConfig())
	ctx := context.Background()

	require.NoError(t, mem.AddMemory(ctx, &domain.MemoryEntry{Key: "hot", Importance: 5.0}))
	require.NoError(t, mem.AddMemory(ctx, &domain.MemoryEntry{Key: "cold", Importance: -2.0}))

	hot, err := mem.GetMemory(ctx, "hot")
	require.NoError(t, err)
	assert.Equal(t, 1.0, hot.Importance)

	cold, err := mem.GetMemory(ctx, "cold")
	require.NoError(t, err)
	assert.Equal(t, 0.0, cold.Importance)
}

func TestBuffer_AccessBookkeeping(t *testing.T) {
	mem, _ := newBufferForTest(t, DefaultConfig())
	ctx := context.Background()

	require.NoError(t, mem.AddMemory(ctx, &domain.MemoryEntry{Key: "k1", Content: "c"}))

	first, err := mem.GetMemory(ctx, "k1")
	require.NoError(t, err)
	second, err := mem.GetMemory(ctx, "k1")
	require.NoError(t, err)

	assert.Equal(t, first.AccessCount+1, second.AccessCount)
	assert.False(t, second.LastAccessed.Before(*first.LastAccessed))
}

func TestBuffer_GetMissingIsNotFound(t *testing.T) {
	mem, _ := newBufferForTest(t, DefaultConfig())

	_, err := mem.GetMemory(context.Background(), "absent")
	assert.True(t, appErrors.IsNotFound(err))
}

func TestBuffer_UpdateMemory(t *testing.T) {
	mem, _ := newBufferForTest(t, DefaultConfig())
	ctx := context.Background()

	require.NoError(t, mem.AddMemory(ctx, &domain.MemoryEntry{Key: "k1", Content: "old", Importance: 0.5}))

	newContent := "new content"
	newImportance := 2.0
	require.NoError(t, mem.UpdateMemory(ctx, "k1", Update{
		Content:    &newContent,
		Importance: &newImportance,
	}))

	got, err := mem.GetMemory(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, "new content", got.Content)
	assert.Equal(t, 1.0, got.Importance, "importance clamped on update")

	t.Run("missing key is not found", func(t *testing.T) {
		err := mem.UpdateMemory(ctx, "absent", Update{Content: &newContent})
		assert.True(t, appErrors.IsNotFound(err))
	})
}

func TestBuffer_Prune(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxItems = 3
	mem, _ := newBufferForTest(t, cfg)
	ctx := context.Background()

	// Same recency for all, so the prune score orders by importance.
	require.NoError(t, mem.AddMemory(ctx, &domain.MemoryEntry{Key: "a", Importance: 0.9}))
	require.NoError(t, mem.AddMemory(ctx, &domain.MemoryEntry{Key: "b", Importance: 0.8}))
	require.NoError(t, mem.AddMemory(ctx, &domain.MemoryEntry{Key: "low", Importance: 0.1}))
	require.NoError(t, mem.AddMemory(ctx, &domain.MemoryEntry{Key: "c", Importance: 0.7}))

	assert.Equal(t, 3, mem.Metrics().CacheSize)

	_, err := mem.GetMemory(ctx, "low")
	assert.True(t, appErrors.IsNotFound(err), "lowest scored entry was evicted")

	for _, key := range []string{"a", "b", "c"} {
		_, err := mem.GetMemory(ctx, key)
		assert.NoError(t, err, "entry %s survived pruning", key)
	}
}

func TestBuffer_PruneDropsExpiredFirst(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxItems = 2
	mem, _ := newBufferForTest(t, cfg)
	ctx := context.Background()

	past := time.Now().Add(-time.Hour)
	require.NoError(t, mem.AddMemory(ctx, &domain.MemoryEntry{Key: "stale", Importance: 0.9, Expires: &past}))
	require.NoError(t, mem.AddMemory(ctx, &domain.MemoryEntry{Key: "a", Importance: 0.1}))
	require.NoError(t, mem.AddMemory(ctx, &domain.MemoryEntry{Key: "b", Importance: 0.2}))

	_, err := mem.GetMemory(ctx, "stale")
	assert.True(t, appErrors.IsNotFound(err))
	_, err = mem.GetMemory(ctx, "a")
	assert.NoError(t, err, "live low-importance entry survives when expired entries cover the surplus")
}

func TestBuffer_KeywordSearch(t *testing.T) {
	mem, _ := newBufferForTest(t, DefaultConfig())
	ctx := context.Background()

	require.NoError(t, mem.AddMemory(ctx, &domain.MemoryEntry{
		Key:        "match",
		Content:    "golang concurrency patterns with channels",
		Importance: 1.0,
	}))
	require.NoError(t, mem.AddMemory(ctx, &domain.MemoryEntry{
		Key:        "other",
		Content:    "gardening tips for spring",
		Importance: 1.0,
	}))

	results, err := mem.SearchMemories(ctx, "golang concurrency channels", 10)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "match", results[0].Entry.Key)

	for _, r := range results {
		assert.NotEqual(t, "other", r.Entry.Key)
	}
}

func TestBuffer_TitleMetadataBoost(t *testing.T) {
	mem, _ := newBufferForTest(t, DefaultConfig())
	ctx := context.Background()

	require.NoError(t, mem.AddMemory(ctx, &domain.MemoryEntry{
		Key:        "titled",
		Content:    "notes about the offsite planning meeting",
		Metadata:   map[string]any{"title": "offsite planning"},
		Importance: 1.0,
	}))
	require.NoError(t, mem.AddMemory(ctx, &domain.MemoryEntry{
		Key:        "untitled",
		Content:    "notes about the offsite planning meeting",
		Importance: 1.0,
	}))

	results, err := mem.SearchMemories(ctx, "offsite planning", 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "titled", results[0].Entry.Key)
	assert.Greater(t, results[0].Score, results[1].Score)
}

func TestBuffer_EmptyQueryRanksByLastAccessed(t *testing.T) {
	mem, _ := newBufferForTest(t, DefaultConfig())
	ctx := context.Background()

	for _, key := range []string{"first", "second", "third"} {
		require.NoError(t, mem.AddMemory(ctx, &domain.MemoryEntry{Key: key, Content: key, Importance: 1.0}))
	}

	// Access order, not insertion order, decides the ranking.
	_, err := mem.GetMemory(ctx, "second")
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	_, err = mem.GetMemory(ctx, "first")
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	_, err = mem.GetMemory(ctx, "third")
	require.NoError(t, err)

	results, err := mem.SearchMemories(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "third", results[0].Entry.Key)
	assert.Equal(t, "first", results[1].Entry.Key)
	assert.Equal(t, "second", results[2].Entry.Key)
}

func TestBuffer_Clear(t *testing.T) {
	mem, _ := newBufferForTest(t, DefaultConfig())
	ctx := context.Background()

	require.NoError(t, mem.AddMemory(ctx, &domain.MemoryEntry{Key: "k1", Content: "content", Importance: 1.0}))
	require.NoError(t, mem.Clear(ctx))

	results, err := mem.SearchMemories(ctx, "content", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Equal(t, 0, mem.Metrics().CacheSize)
}

func TestBuffer_TTLAppliesDefaultExpiry(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TTL = time.Hour
	mem, _ := newBufferForTest(t, cfg)
	ctx := context.Background()

	require.NoError(t, mem.AddMemory(ctx, &domain.MemoryEntry{Key: "k1"}))

	got, err := mem.GetMemory(ctx, "k1")
	require.NoError(t, err)
	require.NotNil(t, got.Expires)
	assert.WithinDuration(t, time.Now().Add(time.Hour), *got.Expires, time.Minute)
}

func TestBuffer_StoreFailurePropagates(t *testing.T) {
	mem, store := newBufferForTest(t, DefaultConfig())
	ctx := context.Background()

	store.SetError("SaveEntry", appErrors.NewInternal("write failed", nil))
	err := mem.AddMemory(ctx, &domain.MemoryEntry{Key: "k1"})
	assert.True(t, appErrors.IsInternal(err))
}

func TestBuffer_HydrationFailurePropagates(t *testing.T) {
	mem, store := newBufferForTest(t, DefaultConfig())

	store.SetError("FindSystem", appErrors.NewInternal("store down", nil))
	err := mem.AddMemory(context.Background(), &domain.MemoryEntry{Key: "k1"})
	assert.Error(t, err)
}

func TestBuffer_HydratesFromStore(t *testing.T) {
	store := mocks.NewMockStore()
	ctx := context.Background()

	first, err := New(BackendBuffer, DefaultConfig(), Options{Owner: "o", Name: "m", Store: store})
	require.NoError(t, err)
	require.NoError(t, first.AddMemory(ctx, &domain.MemoryEntry{Key: "persisted", Content: "survives restarts"}))

	second, err := New(BackendBuffer, DefaultConfig(), Options{Owner: "o", Name: "m", Store: store})
	require.NoError(t, err)

	got, err := second.GetMemory(ctx, "persisted")
	require.NoError(t, err)
	assert.Equal(t, "survives restarts", got.Content)
}
