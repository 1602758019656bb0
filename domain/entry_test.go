package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClampImportance(t *testing.T) {
	assert.Equal(t, 0.0, ClampImportance(-0.5))
	assert.Equal(t, 1.0, ClampImportance(3.0))
	assert.Equal(t, 0.42, ClampImportance(0.42))
}

func TestMemoryEntry_Touch(t *testing.T) {
	t.Run("increments access count by exactly one", func(t *testing.T) {
		e := &MemoryEntry{Key: "k"}
		e.Touch(time.Now())
		assert.Equal(t, 1, e.AccessCount)
		e.Touch(time.Now())
		assert.Equal(t, 2, e.AccessCount)
	})

	t.Run("last accessed is monotonic", func(t *testing.T) {
		e := &MemoryEntry{Key: "k"}
		later := time.Now()
		earlier := later.Add(-time.Hour)

		e.Touch(later)
		first := *e.LastAccessed

		e.Touch(earlier)
		require.NotNil(t, e.LastAccessed)
		assert.False(t, e.LastAccessed.Before(first))
	})
}

func TestMemoryEntry_Expired(t *testing.T) {
	now := time.Now()

	e := &MemoryEntry{Key: "k"}
	assert.False(t, e.Expired(now), "no expiry set")

	past := now.Add(-time.Minute)
	e.Expires = &past
	assert.True(t, e.Expired(now))

	future := now.Add(time.Minute)
	e.Expires = &future
	assert.False(t, e.Expired(now))
}

func TestMemoryEntry_Clone(t *testing.T) {
	now := time.Now()
	e := &MemoryEntry{
		Key:          "k",
		Content:      "content",
		Metadata:     map[string]any{"title": "t"},
		LastAccessed: &now,
	}

	cp := e.Clone()
	cp.Metadata["title"] = "changed"
	*cp.LastAccessed = now.Add(time.Hour)

	assert.Equal(t, "t", e.Metadata["title"])
	assert.True(t, e.LastAccessed.Equal(now))
}
