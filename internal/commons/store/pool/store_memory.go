// Package pool persists data pools.
package pool

import (
	"context"
	"sort"
	"strings"
	"sync"

	"healthcommons/internal/commons/models"
	id "healthcommons/pkg/domain"
	"healthcommons/pkg/platform/sentinel"
)

// InMemoryStore keeps pools in process memory. Names are unique
// case-insensitively, matching the Postgres index.
type InMemoryStore struct {
	mu     sync.RWMutex
	pools  map[id.PoolID]*models.Pool
	byName map[string]id.PoolID
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		pools:  make(map[id.PoolID]*models.Pool),
		byName: make(map[string]id.PoolID),
	}
}

func (s *InMemoryStore) Save(_ context.Context, p *models.Pool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	name := strings.ToLower(p.Name)
	if _, exists := s.byName[name]; exists {
		return sentinel.ErrConflict
	}
	if _, exists := s.pools[p.ID]; exists {
		return sentinel.ErrConflict
	}
	s.pools[p.ID] = p.Clone()
	s.byName[name] = p.ID
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, poolID id.PoolID) (*models.Pool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.pools[poolID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return p.Clone(), nil
}

// List returns pools newest first, optionally restricted to one status.
func (s *InMemoryStore) List(_ context.Context, status models.PoolStatus) ([]*models.Pool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Pool, 0, len(s.pools))
	for _, p := range s.pools {
		if status != "" && p.Status != status {
			continue
		}
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Name < out[j].Name
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// UpdateStatus moves the pool from one status to another. It fails with
// ErrConflict when the stored status is no longer from.
func (s *InMemoryStore) UpdateStatus(_ context.Context, p *models.Pool, from models.PoolStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.pools[p.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if existing.Status != from {
		return sentinel.ErrConflict
	}
	existing.Status = p.Status
	existing.UpdatedAt = p.UpdatedAt
	return nil
}
