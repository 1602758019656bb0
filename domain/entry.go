// Package domain holds the value types shared by every memory backend:
// entries, graph nodes and edges, index nodes, and per-instance metrics.
package domain

import "time"

// MemoryEntry is one stored unit of content with recency, importance and
// expiry bookkeeping. Key is unique within a memory instance.
type MemoryEntry struct {
	Key          string         `json:"key"`
	Content      string         `json:"content"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	Importance   float64        `json:"importance"`
	Timestamp    time.Time      `json:"timestamp"`
	LastAccessed *time.Time     `json:"last_accessed,omitempty"`
	AccessCount  int            `json:"access_count"`
	Expires      *time.Time     `json:"expires,omitempty"`
}

// ClampImportance forces a caller-assigned importance into [0, 1].
func ClampImportance(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Touch records a successful access: LastAccessed moves forward and
// AccessCount increases by exactly one.
func (e *MemoryEntry) Touch(now time.Time) {
	if e.LastAccessed != nil && now.Before(*e.LastAccessed) {
		now = *e.LastAccessed
	}
	t := now
	e.LastAccessed = &t
	e.AccessCount++
}

// Expired reports whether the entry's expiry has passed.
func (e *MemoryEntry) Expired(now time.Time) bool {
	return e.Expires != nil && now.After(*e.Expires)
}

// Clone returns a deep copy so cached entries never alias caller state.
func (e *MemoryEntry) Clone() *MemoryEntry {
	cp := *e
	if e.Metadata != nil {
		cp.Metadata = make(map[string]any, len(e.Metadata))
		for k, v := range e.Metadata {
			cp.Metadata[k] = v
		}
	}
	if e.LastAccessed != nil {
		t := *e.LastAccessed
		cp.LastAccessed = &t
	}
	if e.Expires != nil {
		t := *e.Expires
		cp.Expires = &t
	}
	return &cp
}
