package domain

// Metadata slots used by IndexNode.
const (
	MetaMemoryKey = "memoryKey"
	MetaKeywords  = "keywords"
)

// IndexNode is one chunk of a memory entry's content, or the synthesized
// root summary under the tree strategy. Children is populated only on
// roots and lists the chunk node IDs in content order.
type IndexNode struct {
	ID        string         `json:"id"`
	Content   string         `json:"content"`
	Embedding []float32      `json:"embedding,omitempty"`
	Children  []string       `json:"children,omitempty"`
	Parent    string         `json:"parent,omitempty"`
	IsRoot    bool           `json:"is_root"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// MemoryKey returns the key of the entry this node was derived from.
func (n *IndexNode) MemoryKey() string {
	if n.Metadata == nil {
		return ""
	}
	if s, ok := n.Metadata[MetaMemoryKey].(string); ok {
		return s
	}
	return ""
}

// Keywords returns the extracted keyword set, tolerating the []any shape
// produced by storage round-trips.
func (n *IndexNode) Keywords() []string {
	if n.Metadata == nil {
		return nil
	}
	switch v := n.Metadata[MetaKeywords].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// SetKeywords stores the extracted keyword set.
func (n *IndexNode) SetKeywords(keywords []string) {
	if n.Metadata == nil {
		n.Metadata = make(map[string]any)
	}
	n.Metadata[MetaKeywords] = keywords
}
