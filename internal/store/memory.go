package store

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// Memory is a map-backed backend for tests and ephemeral runs.
// Values are copied on the way in and out.
type Memory struct {
	mu     sync.RWMutex
	data   map[string][]byte
	closed bool

	// FailCommit, when set, is returned by the next Commit instead of
	// applying the batch. Tests use it to exercise rollback paths.
	FailCommit error
}

var _ Backend = (*Memory)(nil)

// NewMemory returns an empty in-memory backend.
func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

// Get returns a copy of the value stored under key.
func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, false, ErrClosed
	}
	v, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte{}, v...), true, nil
}

// Set replaces the value stored under key.
func (m *Memory) Set(ctx context.Context, key string, value []byte) error {
	return m.Commit(ctx, Batch{{Key: key, Value: value}})
}

// Commit applies the whole batch under one lock.
func (m *Memory) Commit(_ context.Context, batch Batch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if err := m.FailCommit; err != nil {
		m.FailCommit = nil
		return err
	}
	for _, w := range batch {
		m.data[w.Key] = append([]byte{}, w.Value...)
	}
	return nil
}

// Keys lists keys with the given prefix in byte order.
func (m *Memory) Keys(_ context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	keys := []string{}
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Close marks the backend closed. Later calls return ErrClosed.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
