package kv

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

type memoryStore struct {
	mu    sync.RWMutex
	byKey map[string]Record
	now   func() time.Time
}

// NewMemory returns a process-local Store. It backs tests and the
// single-session simulation mode.
func NewMemory() Store {
	return &memoryStore{
		byKey: make(map[string]Record),
		now:   time.Now,
	}
}

func (m *memoryStore) Get(ctx context.Context, key string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.byKey[key]
	if !ok {
		return Record{}, ErrNotFound
	}
	rec.Value = append([]byte(nil), rec.Value...)
	return rec, nil
}

func (m *memoryStore) Put(ctx context.Context, key string, value []byte, expectedVersion int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current := m.byKey[key]
	if expectedVersion > 0 && current.Version != expectedVersion {
		return current.Version, ErrConflict
	}
	next := Record{
		Key:       key,
		Value:     append([]byte(nil), value...),
		Version:   current.Version + 1,
		UpdatedAt: m.now().UTC().Format(time.RFC3339Nano),
	}
	m.byKey[key] = next
	return next.Version, nil
}

func (m *memoryStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byKey[key]; !ok {
		return ErrNotFound
	}
	delete(m.byKey, key)
	return nil
}

func (m *memoryStore) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]string, 0)
	for k := range m.byKey {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out, nil
}
