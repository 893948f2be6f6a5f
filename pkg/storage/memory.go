package storage

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
)

// MemoryStorage keeps blobs in process memory.
type MemoryStorage struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{blobs: make(map[string][]byte)}
}

func normalizeKey(key string) string {
	return strings.TrimPrefix(path.Clean("/"+key), "/")
}

func (s *MemoryStorage) Read(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.blobs[normalizeKey(key)]
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	return append([]byte(nil), data...), nil
}

func (s *MemoryStorage) Write(_ context.Context, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.blobs[normalizeKey(key)] = append([]byte(nil), data...)
	return nil
}

func (s *MemoryStorage) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := normalizeKey(key)
	if _, ok := s.blobs[k]; !ok {
		return fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	delete(s.blobs, k)
	return nil
}

func (s *MemoryStorage) List(_ context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	dir := normalizeKey(prefix)
	if dir == "" {
		dir = "."
	}
	var keys []string
	for k := range s.blobs {
		if path.Dir(k) == dir {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *MemoryStorage) Exists(_ context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.blobs[normalizeKey(key)]
	return ok, nil
}
