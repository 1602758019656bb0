package domain

// PropertyMemoryKeys is the property slot listing which memory entries
// reference a graph node. A node with an empty set after a removal is
// deleted by the owning backend.
const PropertyMemoryKeys = "memoryKeys"

// GraphNode is an extracted concept in the knowledge graph. NodeID is the
// stable business key ("Label:Name"); ID is the storage key.
type GraphNode struct {
	ID         string         `json:"id"`
	NodeID     string         `json:"node_id"`
	Label      string         `json:"label"`
	Properties map[string]any `json:"properties,omitempty"`
	Embedding  []float32      `json:"embedding,omitempty"`
}

// Name returns the node's display name from its properties, if any.
func (n *GraphNode) Name() string {
	if n.Properties == nil {
		return ""
	}
	if s, ok := n.Properties["name"].(string); ok {
		return s
	}
	return ""
}

// MemoryKeys returns the set of memory entry keys referencing this node.
// Storage round-trips may deliver the set as []any, so both shapes are
// accepted.
func (n *GraphNode) MemoryKeys() []string {
	if n.Properties == nil {
		return nil
	}
	switch v := n.Properties[PropertyMemoryKeys].(type) {
	case []string:
		return v
	case []any:
		keys := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				keys = append(keys, s)
			}
		}
		return keys
	}
	return nil
}

// HasMemoryKey reports whether the node is referenced by the given entry.
func (n *GraphNode) HasMemoryKey(key string) bool {
	for _, k := range n.MemoryKeys() {
		if k == key {
			return true
		}
	}
	return false
}

// AddMemoryKey records a referencing memory entry. Idempotent.
func (n *GraphNode) AddMemoryKey(key string) {
	if n.HasMemoryKey(key) {
		return
	}
	if n.Properties == nil {
		n.Properties = make(map[string]any)
	}
	n.Properties[PropertyMemoryKeys] = append(n.MemoryKeys(), key)
}

// RemoveMemoryKey drops a referencing memory entry and returns how many
// references remain. Zero means the node has no owner left.
func (n *GraphNode) RemoveMemoryKey(key string) int {
	keys := n.MemoryKeys()
	remaining := make([]string, 0, len(keys))
	for _, k := range keys {
		if k != key {
			remaining = append(remaining, k)
		}
	}
	if n.Properties == nil {
		n.Properties = make(map[string]any)
	}
	n.Properties[PropertyMemoryKeys] = remaining
	return len(remaining)
}

// GraphEdge is a weighted directed relationship between two nodes.
// Cycles are permitted; no tree shape is enforced at this layer.
type GraphEdge struct {
	SourceID     string         `json:"source_id"`
	TargetID     string         `json:"target_id"`
	Relationship string         `json:"relationship"`
	Weight       float64        `json:"weight"`
	Properties   map[string]any `json:"properties,omitempty"`
}
