package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultTextAnalyzer_Terms(t *testing.T) {
	ta := NewDefaultTextAnalyzer()

	t.Run("lowercases and deduplicates in order", func(t *testing.T) {
		terms := ta.Terms("Go go GO routines, and the Routines")
		assert.Equal(t, []string{"go", "routines", "and", "the"}, terms)
	})

	t.Run("keeps stop words", func(t *testing.T) {
		terms := ta.Terms("the quick fox")
		assert.Contains(t, terms, "the")
	})

	t.Run("splits on punctuation", func(t *testing.T) {
		terms := ta.Terms("error-handling, retries/backoff")
		assert.Equal(t, []string{"error", "handling", "retries", "backoff"}, terms)
	})
}

func TestDefaultTextAnalyzer_ExtractKeywords(t *testing.T) {
	ta := NewDefaultTextAnalyzer()

	keywords := ta.ExtractKeywords("the deployment of the kubernetes cluster")
	assert.Equal(t, []string{"deployment", "kubernetes", "cluster"}, keywords)
}

func TestDefaultTextAnalyzer_TokenizeWords(t *testing.T) {
	ta := NewDefaultTextAnalyzer()

	words := ta.TokenizeWords("Alpha beta alpha")
	assert.True(t, words["alpha"])
	assert.True(t, words["beta"])
	assert.Len(t, words, 2)
}
