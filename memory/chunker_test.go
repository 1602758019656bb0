package memory

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkText(t *testing.T) {
	t.Run("overlapping windows at fixed stride", func(t *testing.T) {
		content := strings.Repeat("abcde", 500) // 2500 characters
		chunks := chunkText(content, 1000, 200)

		require.Len(t, chunks, 3)
		assert.Equal(t, 0, chunks[0].Offset)
		assert.Equal(t, 800, chunks[1].Offset)
		assert.Equal(t, 1600, chunks[2].Offset)

		assert.Len(t, chunks[0].Text, 1000)
		assert.Len(t, chunks[1].Text, 1000)
		assert.Len(t, chunks[2].Text, 900)

		// Consecutive chunks share exactly 200 characters.
		assert.Equal(t, chunks[0].Text[800:], chunks[1].Text[:200])
		assert.Equal(t, chunks[1].Text[800:], chunks[2].Text[:200])
	})

	t.Run("short content is a single chunk", func(t *testing.T) {
		chunks := chunkText("short", 1000, 200)
		require.Len(t, chunks, 1)
		assert.Equal(t, "short", chunks[0].Text)
	})

	t.Run("trailing remainder is appended, never dropped", func(t *testing.T) {
		content := strings.Repeat("x", 1001)
		chunks := chunkText(content, 1000, 200)
		require.Len(t, chunks, 2)
		assert.Equal(t, 800, chunks[1].Offset)
		assert.Len(t, chunks[1].Text, 201)
	})

	t.Run("empty content yields no chunks", func(t *testing.T) {
		assert.Empty(t, chunkText("", 1000, 200))
	})

	t.Run("full coverage with no gaps", func(t *testing.T) {
		content := strings.Repeat("y", 3333)
		chunks := chunkText(content, 500, 100)

		var rebuilt strings.Builder
		prevEnd := 0
		for _, ch := range chunks {
			require.LessOrEqual(t, ch.Offset, prevEnd, "no gap between chunks")
			rebuilt.WriteString(ch.Text[prevEnd-ch.Offset:])
			prevEnd = ch.Offset + len(ch.Text)
		}
		assert.Equal(t, content, rebuilt.String())
	})
}
