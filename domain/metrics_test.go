package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMetrics_FirstSampleSeeds(t *testing.T) {
	var m Metrics
	m.RecordRetrieval(100 * time.Millisecond)
	assert.Equal(t, 100.0, m.AvgRetrievalMS, "first sample seeds the average directly")
}

func TestMetrics_Smoothing(t *testing.T) {
	var m Metrics
	m.RecordInsertion(100 * time.Millisecond)
	m.RecordInsertion(200 * time.Millisecond)
	// 100*(1-0.2) + 200*0.2
	assert.InDelta(t, 120.0, m.AvgInsertionMS, 1e-9)
}

func TestMetrics_HitRate(t *testing.T) {
	var m Metrics
	m.RecordLookup(true)
	assert.Equal(t, 1.0, m.HitRate)
	m.RecordLookup(false)
	assert.InDelta(t, 0.8, m.HitRate, 1e-9)
}

func TestGraphNode_MemoryKeys(t *testing.T) {
	n := &GraphNode{NodeID: "Entity:Acme", Label: "Entity"}

	n.AddMemoryKey("m1")
	n.AddMemoryKey("m1")
	n.AddMemoryKey("m2")
	assert.ElementsMatch(t, []string{"m1", "m2"}, n.MemoryKeys())
	assert.True(t, n.HasMemoryKey("m1"))

	assert.Equal(t, 1, n.RemoveMemoryKey("m1"))
	assert.Equal(t, 0, n.RemoveMemoryKey("m2"))
}

func TestGraphNode_MemoryKeysFromStorageShape(t *testing.T) {
	n := &GraphNode{Properties: map[string]any{
		PropertyMemoryKeys: []any{"m1", "m2"},
	}}
	assert.Equal(t, []string{"m1", "m2"}, n.MemoryKeys())
}
