// Package mocks provides a test double for the repository contracts.
package mocks

import (
	"context"
	"sync"

	"memorybank/domain"
	"memorybank/repository"
	"memorybank/repository/memdb"
)

// MockStore wraps the in-process reference store and lets tests force
// per-method failures to exercise error paths in the backends.
type MockStore struct {
	*memdb.Store

	mu           sync.Mutex
	shouldFailOn map[string]error
}

var _ repository.Store = (*MockStore)(nil)

// NewMockStore creates an empty mock store.
func NewMockStore() *MockStore {
	return &MockStore{
		Store:        memdb.NewStore(),
		shouldFailOn: make(map[string]error),
	}
}

// SetError configures the mock to return an error for a specific method.
func (m *MockStore) SetError(method string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shouldFailOn[method] = err
}

// ClearErrors removes all configured errors.
func (m *MockStore) ClearErrors() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shouldFailOn = make(map[string]error)
}

func (m *MockStore) checkError(method string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.shouldFailOn[method]
}

func (m *MockStore) SaveSystem(ctx context.Context, rec *repository.SystemRecord) error {
	if err := m.checkError("SaveSystem"); err != nil {
		return err
	}
	return m.Store.SaveSystem(ctx, rec)
}

func (m *MockStore) FindSystem(ctx context.Context, owner, name string) (*repository.SystemRecord, error) {
	if err := m.checkError("FindSystem"); err != nil {
		return nil, err
	}
	return m.Store.FindSystem(ctx, owner, name)
}

func (m *MockStore) SaveEntry(ctx context.Context, systemID string, entry *domain.MemoryEntry) error {
	if err := m.checkError("SaveEntry"); err != nil {
		return err
	}
	return m.Store.SaveEntry(ctx, systemID, entry)
}

func (m *MockStore) FindEntry(ctx context.Context, systemID, key string) (*domain.MemoryEntry, error) {
	if err := m.checkError("FindEntry"); err != nil {
		return nil, err
	}
	return m.Store.FindEntry(ctx, systemID, key)
}

func (m *MockStore) FindEntries(ctx context.Context, systemID string) ([]*domain.MemoryEntry, error) {
	if err := m.checkError("FindEntries"); err != nil {
		return nil, err
	}
	return m.Store.FindEntries(ctx, systemID)
}

func (m *MockStore) DeleteEntry(ctx context.Context, systemID, key string) error {
	if err := m.checkError("DeleteEntry"); err != nil {
		return err
	}
	return m.Store.DeleteEntry(ctx, systemID, key)
}

func (m *MockStore) SaveNode(ctx context.Context, systemID string, node *domain.GraphNode) error {
	if err := m.checkError("SaveNode"); err != nil {
		return err
	}
	return m.Store.SaveNode(ctx, systemID, node)
}

func (m *MockStore) SaveEdge(ctx context.Context, systemID string, edge *domain.GraphEdge) error {
	if err := m.checkError("SaveEdge"); err != nil {
		return err
	}
	return m.Store.SaveEdge(ctx, systemID, edge)
}

func (m *MockStore) SaveIndexNode(ctx context.Context, systemID string, node *domain.IndexNode) error {
	if err := m.checkError("SaveIndexNode"); err != nil {
		return err
	}
	return m.Store.SaveIndexNode(ctx, systemID, node)
}
