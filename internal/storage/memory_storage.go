package storage

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryStorage keeps objects in process memory. It backs local runs without
// a bucket and tests.
type MemoryStorage struct {
	mu      sync.RWMutex
	objects map[string][]byte
	types   map[string]string
	baseURL string
}

func NewMemoryStorage(baseURL string) *MemoryStorage {
	return &MemoryStorage{
		objects: make(map[string][]byte),
		types:   make(map[string]string),
		baseURL: baseURL,
	}
}

func (m *MemoryStorage) Put(ctx context.Context, key, contentType string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = append([]byte(nil), data...)
	m.types[key] = contentType
	return nil
}

func (m *MemoryStorage) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, key)
	}
	return append([]byte(nil), data...), nil
}

func (m *MemoryStorage) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[key]; !ok {
		return fmt.Errorf("%w: %s", ErrObjectNotFound, key)
	}
	delete(m.objects, key)
	delete(m.types, key)
	return nil
}

func (m *MemoryStorage) PresignedGetURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	return fmt.Sprintf("%s?expires=%d", m.PublicURL(key), time.Now().Add(ttl).Unix()), nil
}

func (m *MemoryStorage) PublicURL(key string) string {
	return m.baseURL + "/" + key
}

// ContentType returns the stored content type of key.
func (m *MemoryStorage) ContentType(key string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.types[key]
}
