// Package snapshot persists the box state of a learning scope to a
// key-value store and restores it on the next session.
package snapshot

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/example/boxtrainer/pkg/models"
)

var (
	// ErrNotFound is returned when no usable snapshot exists for a key.
	ErrNotFound = errors.New("snapshot: not found")
	// ErrNotReady rejects writes before the adapter finished loading.
	ErrNotReady = errors.New("snapshot: adapter not ready")
)

// Store is the key-value backend. Get returns ErrNotFound for a missing key.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	// DeletePrefix removes every key starting with prefix and returns how
	// many were removed.
	DeletePrefix(ctx context.Context, prefix string) (int, error)
	Keys(ctx context.Context, prefix string) ([]string, error)
	Close() error
}

// Key returns the storage key of a scope: "<namespace>:<scopeID>".
func Key(namespace string, scope models.PairingContext) string {
	return namespace + ":" + scope.ScopeID()
}

// ClearNamespace deletes every snapshot stored under namespace.
func ClearNamespace(ctx context.Context, store Store, namespace string) (int, error) {
	return store.DeletePrefix(ctx, namespace+":")
}

// MemoryStore keeps snapshots in process memory.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (m *MemoryStore) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = append([]byte(nil), value...)
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *MemoryStore) DeletePrefix(_ context.Context, prefix string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			delete(m.data, k)
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) Keys(_ context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var keys []string
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *MemoryStore) Close() error {
	return nil
}
