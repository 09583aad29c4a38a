package entrystore

import (
	"context"
	"slices"
	"sync"

	id "healthcommons/pkg/domain"
	"healthcommons/pkg/platform/sentinel"
)

// InMemoryStore keeps entries in process memory.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries map[id.Hash][]byte
	links   map[string][]id.Hash
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		entries: make(map[id.Hash][]byte),
		links:   make(map[string][]id.Hash),
	}
}

func (s *InMemoryStore) Put(_ context.Context, data []byte) (id.Hash, error) {
	hash := HashOf(data)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[hash]; !ok {
		s.entries[hash] = slices.Clone(data)
	}
	return hash, nil
}

func (s *InMemoryStore) Get(_ context.Context, hash id.Hash) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.entries[hash]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return slices.Clone(data), nil
}

func (s *InMemoryStore) Link(_ context.Context, anchor string, target id.Hash, linkType string) error {
	key := linkType + "/" + anchor
	s.mu.Lock()
	defer s.mu.Unlock()
	if !slices.Contains(s.links[key], target) {
		s.links[key] = append(s.links[key], target)
	}
	return nil
}

func (s *InMemoryStore) Links(_ context.Context, anchor string, linkType string) ([]id.Hash, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.links[linkType+"/"+anchor]), nil
}
