package store

import (
	"context"
	"sync"

	"github.com/sixlowan/otafw"
)

// MemoryStore is a process-local Store, useful for tests and the
// simulator. It is not safe for use from more than one goroutine at a
// time beyond the mutex below — package engine itself is single
// threaded per spec.md §5, but MemoryStore may be shared across
// multiple simulated Engines in tests, hence the lock.
type MemoryStore struct {
	mu  sync.Mutex
	rec *Record
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// StoreNew implements Store.
func (m *MemoryStore) StoreNew(ctx context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.rec != nil && m.rec.SessionID != rec.SessionID {
		return ErrSessionExists
	}
	m.rec = &rec
	return nil
}

// Store implements Store.
func (m *MemoryStore) Store(ctx context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.rec = &rec
	return nil
}

// Load implements Store.
func (m *MemoryStore) Load(ctx context.Context) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.rec == nil {
		return Record{}, ErrNoSession
	}
	return *m.rec, nil
}

// Remove implements Store.
func (m *MemoryStore) Remove(ctx context.Context, id ota.SessionID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.rec != nil && m.rec.SessionID == id {
		m.rec = nil
	}
	return nil
}

// Ready implements Store.
func (m *MemoryStore) Ready(ctx context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.rec == nil, nil
}
