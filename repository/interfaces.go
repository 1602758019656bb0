// Package repository defines the durable-store contracts behind the memory
// backends. The backends own a private in-process cache; these interfaces
// are the write-through and hydration surface beneath it.
//
// All writes are idempotent upserts keyed by the business key, so a
// retried call after a transient failure converges to the same state.
// Implementations: memdb (in-process reference store) and ddb (DynamoDB
// single table). repository/mocks carries the test double.
package repository

import (
	"context"
	"time"

	"memorybank/domain"
)

// SystemRecord identifies one memory instance in the durable store: who
// owns it, what it is called, which backend it runs, and its last
// persisted metrics snapshot.
type SystemRecord struct {
	ID        string         `json:"id"`
	Owner     string         `json:"owner"`
	Name      string         `json:"name"`
	Backend   string         `json:"backend"`
	Config    map[string]any `json:"config,omitempty"`
	Metrics   domain.Metrics `json:"metrics"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// SystemRepository persists memory-system records, upserted by (owner, name).
type SystemRepository interface {
	SaveSystem(ctx context.Context, rec *SystemRecord) error
	FindSystem(ctx context.Context, owner, name string) (*SystemRecord, error)
	DeleteSystem(ctx context.Context, systemID string) error
}

// EntryRepository persists memory entries, keyed by system + entry key.
type EntryRepository interface {
	SaveEntry(ctx context.Context, systemID string, entry *domain.MemoryEntry) error
	FindEntry(ctx context.Context, systemID, key string) (*domain.MemoryEntry, error)
	FindEntries(ctx context.Context, systemID string) ([]*domain.MemoryEntry, error)
	DeleteEntry(ctx context.Context, systemID, key string) error
	DeleteEntries(ctx context.Context, systemID string) error
}

// NodeRepository persists knowledge-graph nodes, keyed by system + node id.
type NodeRepository interface {
	SaveNode(ctx context.Context, systemID string, node *domain.GraphNode) error
	FindNodes(ctx context.Context, systemID string) ([]*domain.GraphNode, error)
	DeleteNode(ctx context.Context, systemID, nodeID string) error
	DeleteNodes(ctx context.Context, systemID string) error
}

// EdgeRepository persists knowledge-graph edges.
type EdgeRepository interface {
	SaveEdge(ctx context.Context, systemID string, edge *domain.GraphEdge) error
	FindEdges(ctx context.Context, systemID string) ([]*domain.GraphEdge, error)
	DeleteEdgesByNode(ctx context.Context, systemID, nodeID string) error
	DeleteEdges(ctx context.Context, systemID string) error
}

// IndexRepository persists chunk index nodes for the indexed backend.
type IndexRepository interface {
	SaveIndexNode(ctx context.Context, systemID string, node *domain.IndexNode) error
	FindIndexNodes(ctx context.Context, systemID string) ([]*domain.IndexNode, error)
	DeleteIndexNodesByMemory(ctx context.Context, systemID, memoryKey string) error
	DeleteIndexNodes(ctx context.Context, systemID string) error
}

// Store is the full durable-store contract a memory instance hydrates
// from and writes through to.
type Store interface {
	SystemRepository
	EntryRepository
	NodeRepository
	EdgeRepository
	IndexRepository
}
