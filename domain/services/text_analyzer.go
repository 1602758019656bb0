// Package services holds the pure text and vector routines shared by the
// memory backends: tokenization, keyword extraction, cosine similarity.
package services

import (
	"strings"
	"unicode"
)

// TextAnalyzer provides text analysis capabilities for the memory domain.
type TextAnalyzer interface {
	// ExtractKeywords extracts meaningful keywords from text
	ExtractKeywords(text string) []string

	// Terms breaks text into lowercase query terms in order of appearance,
	// duplicates removed, stop words kept
	Terms(text string) []string

	// TokenizeWords breaks text into a set of unique lowercase words
	TokenizeWords(text string) map[string]bool
}

// DefaultTextAnalyzer provides a default implementation of TextAnalyzer.
type DefaultTextAnalyzer struct {
	stopWords map[string]bool
}

// NewDefaultTextAnalyzer creates a text analyzer with common English stop words.
func NewDefaultTextAnalyzer() *DefaultTextAnalyzer {
	return &DefaultTextAnalyzer{
		stopWords: getDefaultStopWords(),
	}
}

// ExtractKeywords extracts meaningful keywords from text.
func (ta *DefaultTextAnalyzer) ExtractKeywords(text string) []string {
	keywords := make([]string, 0)
	for _, word := range ta.Terms(text) {
		// Skip stop words and very short words
		if !ta.stopWords[word] && len(word) > 2 {
			keywords = append(keywords, word)
		}
	}
	return keywords
}

// Terms breaks text into lowercase terms in order of first appearance.
// Stop words stay in: keyword-overlap scoring divides by the full query
// term count.
func (ta *DefaultTextAnalyzer) Terms(text string) []string {
	seen := make(map[string]bool)
	terms := make([]string, 0)

	emit := func(word string) {
		if len(word) > 1 && !seen[word] {
			seen[word] = true
			terms = append(terms, word)
		}
	}

	text = strings.ToLower(text)
	var current strings.Builder
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			current.WriteRune(r)
		} else if current.Len() > 0 {
			emit(current.String())
			current.Reset()
		}
	}
	if current.Len() > 0 {
		emit(current.String())
	}

	return terms
}

// TokenizeWords breaks text into a set of unique lowercase words.
func (ta *DefaultTextAnalyzer) TokenizeWords(text string) map[string]bool {
	words := make(map[string]bool)
	for _, term := range ta.Terms(text) {
		words[term] = true
	}
	return words
}

// getDefaultStopWords returns a set of common English stop words.
func getDefaultStopWords() map[string]bool {
	stopWords := map[string]bool{
		"the": true, "be": true, "to": true, "of": true, "and": true,
		"a": true, "in": true, "that": true, "have": true, "i": true,
		"it": true, "for": true, "not": true, "on": true, "with": true,
		"he": true, "as": true, "you": true, "do": true, "at": true,
		"this": true, "but": true, "his": true, "by": true, "from": true,
		"they": true, "we": true, "say": true, "her": true, "she": true,
		"or": true, "an": true, "will": true, "my": true, "one": true,
		"all": true, "would": true, "there": true, "their": true, "what": true,
		"so": true, "up": true, "out": true, "if": true, "about": true,
		"who": true, "get": true, "which": true, "go": true, "me": true,
		"when": true, "make": true, "can": true, "like": true, "time": true,
		"no": true, "just": true, "him": true, "know": true, "take": true,
		"into": true, "your": true, "some": true, "could": true, "them": true,
		"see": true, "other": true, "than": true, "then": true, "now": true,
		"only": true, "its": true, "over": true, "also": true, "after": true,
		"use": true, "two": true, "how": true, "our": true, "well": true,
		"way": true, "even": true, "new": true, "because": true, "any": true,
		"these": true, "give": true, "most": true, "us": true,
		"is": true, "was": true, "are": true, "been": true, "has": true,
		"had": true, "were": true, "said": true, "did": true, "having": true,
		"may": true, "am": true, "should": true, "too": true, "very": true,
	}
	return stopWords
}
