// Package memdb implements the repository contracts with mutex-guarded
// in-process maps. It is the reference store for tests, local development
// and hosts that do not need durability across restarts.
package memdb

import (
	"context"
	"sync"

	"memorybank/domain"
	appErrors "memorybank/pkg/errors"
	"memorybank/repository"
)

// Store keeps every record in memory, scoped by system ID. All reads and
// writes copy, so callers never alias stored state.
type Store struct {
	mu      sync.RWMutex
	systems map[string]*repository.SystemRecord        // systemID -> record
	entries map[string]map[string]*domain.MemoryEntry  // systemID -> key -> entry
	nodes   map[string]map[string]*domain.GraphNode    // systemID -> nodeID -> node
	edges   map[string][]*domain.GraphEdge             // systemID -> edges
	index   map[string]map[string]*domain.IndexNode    // systemID -> id -> node
}

var _ repository.Store = (*Store)(nil)

// NewStore returns an empty in-process store.
func NewStore() *Store {
	return &Store{
		systems: make(map[string]*repository.SystemRecord),
		entries: make(map[string]map[string]*domain.MemoryEntry),
		nodes:   make(map[string]map[string]*domain.GraphNode),
		edges:   make(map[string][]*domain.GraphEdge),
		index:   make(map[string]map[string]*domain.IndexNode),
	}
}

// SaveSystem upserts a system record keyed by (owner, name).
func (s *Store) SaveSystem(ctx context.Context, rec *repository.SystemRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *rec
	s.systems[rec.ID] = &cp
	return nil
}

// FindSystem looks up a system record by owner and name.
func (s *Store) FindSystem(ctx context.Context, owner, name string) (*repository.SystemRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, rec := range s.systems {
		if rec.Owner == owner && rec.Name == name {
			cp := *rec
			return &cp, nil
		}
	}
	return nil, appErrors.NewNotFound("memory system not found")
}

// DeleteSystem removes a system record and all of its dependent records.
func (s *Store) DeleteSystem(ctx context.Context, systemID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.systems, systemID)
	delete(s.entries, systemID)
	delete(s.nodes, systemID)
	delete(s.edges, systemID)
	delete(s.index, systemID)
	return nil
}

// SaveEntry upserts a memory entry keyed by system + entry key.
func (s *Store) SaveEntry(ctx context.Context, systemID string, entry *domain.MemoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.entries[systemID] == nil {
		s.entries[systemID] = make(map[string]*domain.MemoryEntry)
	}
	s.entries[systemID][entry.Key] = entry.Clone()
	return nil
}

// FindEntry retrieves one entry, NotFound when absent.
func (s *Store) FindEntry(ctx context.Context, systemID, key string) (*domain.MemoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[systemID][key]
	if !ok {
		return nil, appErrors.NewNotFound("memory entry not found")
	}
	return entry.Clone(), nil
}

// FindEntries lists all entries for a system.
func (s *Store) FindEntries(ctx context.Context, systemID string) ([]*domain.MemoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.MemoryEntry, 0, len(s.entries[systemID]))
	for _, entry := range s.entries[systemID] {
		out = append(out, entry.Clone())
	}
	return out, nil
}

// DeleteEntry removes one entry. Deleting an absent entry is a no-op.
func (s *Store) DeleteEntry(ctx context.Context, systemID, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries[systemID], key)
	return nil
}

// DeleteEntries removes every entry for a system.
func (s *Store) DeleteEntries(ctx context.Context, systemID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, systemID)
	return nil
}

// SaveNode upserts a graph node keyed by system + node id.
func (s *Store) SaveNode(ctx context.Context, systemID string, node *domain.GraphNode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.nodes[systemID] == nil {
		s.nodes[systemID] = make(map[string]*domain.GraphNode)
	}
	s.nodes[systemID][node.NodeID] = cloneNode(node)
	return nil
}

// FindNodes lists all graph nodes for a system.
func (s *Store) FindNodes(ctx context.Context, systemID string) ([]*domain.GraphNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.GraphNode, 0, len(s.nodes[systemID]))
	for _, node := range s.nodes[systemID] {
		out = append(out, cloneNode(node))
	}
	return out, nil
}

// DeleteNode removes a node by its business key.
func (s *Store) DeleteNode(ctx context.Context, systemID, nodeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.nodes[systemID], nodeID)
	return nil
}

// DeleteNodes removes all nodes for a system.
func (s *Store) DeleteNodes(ctx context.Context, systemID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.nodes, systemID)
	return nil
}

// SaveEdge upserts an edge keyed by (source, target, relationship).
func (s *Store) SaveEdge(ctx context.Context, systemID string, edge *domain.GraphEdge) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *edge
	for i, existing := range s.edges[systemID] {
		if existing.SourceID == edge.SourceID && existing.TargetID == edge.TargetID &&
			existing.Relationship == edge.Relationship {
			s.edges[systemID][i] = &cp
			return nil
		}
	}
	s.edges[systemID] = append(s.edges[systemID], &cp)
	return nil
}

// FindEdges lists all edges for a system.
func (s *Store) FindEdges(ctx context.Context, systemID string) ([]*domain.GraphEdge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.GraphEdge, 0, len(s.edges[systemID]))
	for _, edge := range s.edges[systemID] {
		cp := *edge
		out = append(out, &cp)
	}
	return out, nil
}

// DeleteEdgesByNode removes every edge touching the given node.
func (s *Store) DeleteEdgesByNode(ctx context.Context, systemID, nodeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.edges[systemID][:0]
	for _, edge := range s.edges[systemID] {
		if edge.SourceID != nodeID && edge.TargetID != nodeID {
			kept = append(kept, edge)
		}
	}
	s.edges[systemID] = kept
	return nil
}

// DeleteEdges removes all edges for a system.
func (s *Store) DeleteEdges(ctx context.Context, systemID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.edges, systemID)
	return nil
}

// SaveIndexNode upserts an index node keyed by system + id.
func (s *Store) SaveIndexNode(ctx context.Context, systemID string, node *domain.IndexNode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.index[systemID] == nil {
		s.index[systemID] = make(map[string]*domain.IndexNode)
	}
	s.index[systemID][node.ID] = cloneIndexNode(node)
	return nil
}

// FindIndexNodes lists all index nodes for a system.
func (s *Store) FindIndexNodes(ctx context.Context, systemID string) ([]*domain.IndexNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.IndexNode, 0, len(s.index[systemID]))
	for _, node := range s.index[systemID] {
		out = append(out, cloneIndexNode(node))
	}
	return out, nil
}

// DeleteIndexNodesByMemory removes every index node derived from one entry.
func (s *Store) DeleteIndexNodesByMemory(ctx context.Context, systemID, memoryKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, node := range s.index[systemID] {
		if node.MemoryKey() == memoryKey {
			delete(s.index[systemID], id)
		}
	}
	return nil
}

// DeleteIndexNodes removes all index nodes for a system.
func (s *Store) DeleteIndexNodes(ctx context.Context, systemID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.index, systemID)
	return nil
}

func cloneNode(node *domain.GraphNode) *domain.GraphNode {
	cp := *node
	if node.Properties != nil {
		cp.Properties = make(map[string]any, len(node.Properties))
		for k, v := range node.Properties {
			cp.Properties[k] = v
		}
	}
	if node.Embedding != nil {
		cp.Embedding = append([]float32(nil), node.Embedding...)
	}
	return &cp
}

func cloneIndexNode(node *domain.IndexNode) *domain.IndexNode {
	cp := *node
	if node.Metadata != nil {
		cp.Metadata = make(map[string]any, len(node.Metadata))
		for k, v := range node.Metadata {
			cp.Metadata[k] = v
		}
	}
	if node.Embedding != nil {
		cp.Embedding = append([]float32(nil), node.Embedding...)
	}
	if node.Children != nil {
		cp.Children = append([]string(nil), node.Children...)
	}
	return &cp
}
