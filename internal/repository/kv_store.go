package repository

import (
	"context"
	"errors"
	"strings"
	"sync"
)

var ErrNotFound = errors.New("key not found")

// Entry is one key/value pair returned by a prefix listing.
type Entry struct {
	Key   string
	Value []byte
}

// KVStore is the key-value collaborator the record store is built on.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	// List returns every entry whose key starts with prefix.
	List(ctx context.Context, prefix string) ([]Entry, error)
	Delete(ctx context.Context, keys ...string) error
}

// MemoryStore is an in-process KVStore. List preserves insertion order.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string][]byte
	order  []string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string][]byte)}
}

func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.values[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (m *MemoryStore) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.values[key]; !exists {
		m.order = append(m.order, key)
	}
	m.values[key] = append([]byte(nil), value...)
	return nil
}

func (m *MemoryStore) List(_ context.Context, prefix string) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Entry
	for _, key := range m.order {
		if strings.HasPrefix(key, prefix) {
			out = append(out, Entry{Key: key, Value: append([]byte(nil), m.values[key]...)})
		}
	}
	return out, nil
}

func (m *MemoryStore) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	drop := make(map[string]bool, len(keys))
	for _, k := range keys {
		if _, ok := m.values[k]; ok {
			delete(m.values, k)
			drop[k] = true
		}
	}
	if len(drop) == 0 {
		return nil
	}

	kept := m.order[:0]
	for _, k := range m.order {
		if !drop[k] {
			kept = append(kept, k)
		}
	}
	m.order = kept
	return nil
}

// Len reports the number of stored keys.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.values)
}
