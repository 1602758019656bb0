package domain

import "time"

// DefaultSmoothing is the blend factor for the exponentially weighted
// running averages below. Tunable policy, not an invariant.
const DefaultSmoothing = 0.2

// Metrics is the aggregate per-instance record every backend maintains.
// Latencies and hit rate are smoothed, not plain averages.
type Metrics struct {
	AvgRetrievalMS float64   `json:"avg_retrieval_ms"`
	AvgInsertionMS float64   `json:"avg_insertion_ms"`
	HitRate        float64   `json:"hit_rate"`
	CacheSize      int       `json:"cache_size"`
	NodeCount      int       `json:"node_count"`
	EdgeCount      int       `json:"edge_count"`
	LastUpdated    time.Time `json:"last_updated"`

	retrievalSeen bool
	insertionSeen bool
	lookupSeen    bool
}

// ewma blends a new sample into the running value. The first sample seeds
// the average directly.
func ewma(current, sample, alpha float64, seen bool) float64 {
	if !seen {
		return sample
	}
	return current*(1-alpha) + sample*alpha
}

// RecordRetrieval folds one search latency sample into the average.
func (m *Metrics) RecordRetrieval(d time.Duration) {
	m.AvgRetrievalMS = ewma(m.AvgRetrievalMS, float64(d.Milliseconds()), DefaultSmoothing, m.retrievalSeen)
	m.retrievalSeen = true
	m.LastUpdated = time.Now()
}

// RecordInsertion folds one insertion latency sample into the average.
func (m *Metrics) RecordInsertion(d time.Duration) {
	m.AvgInsertionMS = ewma(m.AvgInsertionMS, float64(d.Milliseconds()), DefaultSmoothing, m.insertionSeen)
	m.insertionSeen = true
	m.LastUpdated = time.Now()
}

// RecordLookup folds one hit/miss sample into the smoothed hit rate.
func (m *Metrics) RecordLookup(hit bool) {
	sample := 0.0
	if hit {
		sample = 1.0
	}
	m.HitRate = ewma(m.HitRate, sample, DefaultSmoothing, m.lookupSeen)
	m.lookupSeen = true
	m.LastUpdated = time.Now()
}

// Snapshot returns a copy safe to hand to callers.
func (m *Metrics) Snapshot() Metrics {
	cp := *m
	return cp
}
