package signature

import (
	"context"
	"sync"
)

type memoryStore struct {
	mu      sync.RWMutex
	objects map[string]Image
}

func NewMemory() Store {
	return &memoryStore{objects: make(map[string]Image)}
}

func (m *memoryStore) Put(ctx context.Context, key string, img Image) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = Image{ContentType: img.ContentType, Data: append([]byte(nil), img.Data...)}
	return nil
}

func (m *memoryStore) Get(ctx context.Context, key string) (Image, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	img, ok := m.objects[key]
	if !ok {
		return Image{}, ErrNotFound
	}
	img.Data = append([]byte(nil), img.Data...)
	return img, nil
}
