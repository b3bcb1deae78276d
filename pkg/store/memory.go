package store

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps values in process memory. It does not survive restarts
// and exists for tests and ephemeral sessions.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
	closed bool
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

// Get returns the value stored under key
func (m *MemoryStore) Get(ctx context.Context, key string) (string, bool, error) {
	start := time.Now()
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		observe(BackendMemory, "get", start, ErrClosed)
		return "", false, ErrClosed
	}
	value, ok := m.values[key]
	observe(BackendMemory, "get", start, nil)
	return value, ok, nil
}

// Set stores value under key
func (m *MemoryStore) Set(ctx context.Context, key, value string) error {
	start := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		observe(BackendMemory, "set", start, ErrClosed)
		return ErrClosed
	}
	m.values[key] = value
	observe(BackendMemory, "set", start, nil)
	return nil
}

// Delete removes the given keys
func (m *MemoryStore) Delete(ctx context.Context, keys ...string) error {
	start := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		observe(BackendMemory, "delete", start, ErrClosed)
		return ErrClosed
	}
	for _, key := range keys {
		delete(m.values, key)
	}
	observe(BackendMemory, "delete", start, nil)
	return nil
}

// Close marks the store closed
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
