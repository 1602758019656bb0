package services

import "math"

// CosineSimilarity returns dot(a,b) / (|a||b|) for two embedding vectors.
// Mismatched lengths or zero vectors score 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0.0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0.0
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// KeywordOverlap returns the fraction of query keywords present in the
// candidate set. An empty query scores 0.
func KeywordOverlap(queryKeywords []string, candidate map[string]bool) float64 {
	if len(queryKeywords) == 0 || len(candidate) == 0 {
		return 0.0
	}

	matched := 0
	for _, kw := range queryKeywords {
		if candidate[kw] {
			matched++
		}
	}

	return float64(matched) / float64(len(queryKeywords))
}
