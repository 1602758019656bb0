package provider

import (
	"context"
	"testing"

	appErrors "memorybank/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractionService_ExtractConcepts(t *testing.T) {
	ctx := context.Background()

	t.Run("parses fenced json responses", func(t *testing.T) {
		mock := NewMockProvider()
		mock.Respond("Extract 3-7 key concepts", "```json\n"+
			`[{"label":"Person","properties":{"name":"Ada"}},`+
			`{"label":"Concept","properties":{"name":"analytical engine"}},`+
			`{"label":"Place","properties":{"name":"London"}}]`+"\n```")

		svc := NewExtractionService(mock, nil)
		concepts, err := svc.ExtractConcepts(ctx, "some text")
		require.NoError(t, err)
		require.Len(t, concepts, 3)
		assert.Equal(t, "Ada", concepts[0].Name())
	})

	t.Run("drops concepts with empty labels", func(t *testing.T) {
		mock := NewMockProvider()
		mock.Respond("Extract 3-7 key concepts",
			`[{"label":"","properties":{"name":"ghost"}},{"label":"Person","properties":{"name":"Ada"}}]`)

		svc := NewExtractionService(mock, nil)
		concepts, err := svc.ExtractConcepts(ctx, "some text")
		require.NoError(t, err)
		require.Len(t, concepts, 1)
		assert.Equal(t, "Person", concepts[0].Label)
	})

	t.Run("caps at seven concepts", func(t *testing.T) {
		mock := NewMockProvider()
		mock.Respond("Extract 3-7 key concepts",
			`[{"label":"A"},{"label":"B"},{"label":"C"},{"label":"D"},`+
				`{"label":"E"},{"label":"F"},{"label":"G"},{"label":"H"},{"label":"I"}]`)

		svc := NewExtractionService(mock, nil)
		concepts, err := svc.ExtractConcepts(ctx, "some text")
		require.NoError(t, err)
		assert.Len(t, concepts, 7)
	})

	t.Run("malformed response is unavailable", func(t *testing.T) {
		mock := NewMockProvider()
		mock.Respond("Extract 3-7 key concepts", "not json at all")

		svc := NewExtractionService(mock, nil)
		_, err := svc.ExtractConcepts(ctx, "some text")
		assert.True(t, appErrors.IsUnavailable(err))
	})

	t.Run("unavailable provider yields empty result without error", func(t *testing.T) {
		mock := NewMockProvider()
		mock.SetAvailable(false)

		svc := NewExtractionService(mock, nil)
		concepts, err := svc.ExtractConcepts(ctx, "some text")
		assert.NoError(t, err)
		assert.Empty(t, concepts)
	})
}

func TestExtractionService_ExtractRelationships(t *testing.T) {
	ctx := context.Background()
	concepts := []Concept{
		{Label: "Person", Properties: map[string]any{"name": "Ada"}},
		{Label: "Concept", Properties: map[string]any{"name": "analytical engine"}},
	}

	t.Run("clamps weights into range", func(t *testing.T) {
		mock := NewMockProvider()
		mock.Respond("Propose relationships",
			`[{"source":"Person:Ada","target":"Concept:analytical engine","relationship":"worked_on","weight":1.7},`+
				`{"source":"Concept:analytical engine","target":"Person:Ada","relationship":"built_by","weight":-0.2}]`)

		svc := NewExtractionService(mock, nil)
		rels, err := svc.ExtractRelationships(ctx, concepts)
		require.NoError(t, err)
		require.Len(t, rels, 2)
		assert.Equal(t, 1.0, rels[0].Weight)
		assert.Equal(t, 0.0, rels[1].Weight)
	})

	t.Run("drops incomplete relationships", func(t *testing.T) {
		mock := NewMockProvider()
		mock.Respond("Propose relationships",
			`[{"source":"Person:Ada","target":"","relationship":"worked_on","weight":0.5}]`)

		svc := NewExtractionService(mock, nil)
		rels, err := svc.ExtractRelationships(ctx, concepts)
		require.NoError(t, err)
		assert.Empty(t, rels)
	})

	t.Run("fewer than two concepts short-circuits", func(t *testing.T) {
		svc := NewExtractionService(NewMockProvider(), nil)
		rels, err := svc.ExtractRelationships(ctx, concepts[:1])
		assert.NoError(t, err)
		assert.Empty(t, rels)
	})
}

func TestExtractionService_Summarize(t *testing.T) {
	ctx := context.Background()

	t.Run("returns provider summary", func(t *testing.T) {
		mock := NewMockProvider()
		mock.Respond("Summarize the following text", "A short summary.")

		svc := NewExtractionService(mock, nil)
		summary, err := svc.Summarize(ctx, "long text")
		require.NoError(t, err)
		assert.Equal(t, "A short summary.", summary)
	})

	t.Run("falls back to truncation when unavailable", func(t *testing.T) {
		mock := NewMockProvider()
		mock.SetAvailable(false)

		svc := NewExtractionService(mock, nil)
		long := make([]byte, 300)
		for i := range long {
			long[i] = 'x'
		}
		summary, err := svc.Summarize(ctx, string(long))
		require.NoError(t, err)
		assert.Len(t, summary, summaryFallbackLen+3)
	})
}

func TestStripMarkdownFences(t *testing.T) {
	assert.Equal(t, `{"a":1}`, stripMarkdownFences("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripMarkdownFences("```\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripMarkdownFences(`{"a":1}`))
}

func TestHashEmbedder(t *testing.T) {
	e := NewHashEmbedder(64)
	ctx := context.Background()

	t.Run("deterministic per text", func(t *testing.T) {
		a, err := e.Embed(ctx, "hello")
		require.NoError(t, err)
		b, err := e.Embed(ctx, "hello")
		require.NoError(t, err)
		assert.Equal(t, a, b)
	})

	t.Run("unit length", func(t *testing.T) {
		vec, err := e.Embed(ctx, "hello")
		require.NoError(t, err)
		var norm float64
		for _, v := range vec {
			norm += float64(v) * float64(v)
		}
		assert.InDelta(t, 1.0, norm, 1e-3)
	})

	t.Run("different texts differ", func(t *testing.T) {
		a, _ := e.Embed(ctx, "hello")
		b, _ := e.Embed(ctx, "world")
		assert.NotEqual(t, a, b)
	})
}
