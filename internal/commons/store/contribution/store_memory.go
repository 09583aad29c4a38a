// Package contribution persists pool contributions. Records are append-only;
// Discard exists only to undo a recording that failed part way.
package contribution

import (
	"context"
	"slices"
	"sync"

	"healthcommons/internal/commons/models"
	id "healthcommons/pkg/domain"
	"healthcommons/pkg/platform/sentinel"
)

type InMemoryStore struct {
	mu     sync.RWMutex
	byPool map[id.PoolID][]*models.Contribution
	ids    map[id.ContributionID]struct{}
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		byPool: make(map[id.PoolID][]*models.Contribution),
		ids:    make(map[id.ContributionID]struct{}),
	}
}

func (s *InMemoryStore) Append(_ context.Context, c *models.Contribution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.ids[c.ID]; exists {
		return sentinel.ErrConflict
	}
	cp := *c
	s.byPool[c.PoolID] = append(s.byPool[c.PoolID], &cp)
	s.ids[c.ID] = struct{}{}
	return nil
}

func (s *InMemoryStore) Discard(_ context.Context, contributionID id.ContributionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ids[contributionID]; !ok {
		return nil
	}
	delete(s.ids, contributionID)
	for poolID, list := range s.byPool {
		s.byPool[poolID] = slices.DeleteFunc(list, func(c *models.Contribution) bool {
			return c.ID == contributionID
		})
	}
	return nil
}

// ListByPool returns the pool's contributions in a category, oldest first.
func (s *InMemoryStore) ListByPool(_ context.Context, poolID id.PoolID, category id.DataCategory) ([]*models.Contribution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Contribution
	for _, c := range s.byPool[poolID] {
		if c.Category != category {
			continue
		}
		cp := *c
		out = append(out, &cp)
	}
	return out, nil
}

// CountContributors counts distinct contributors in a category.
func (s *InMemoryStore) CountContributors(_ context.Context, poolID id.PoolID, category id.DataCategory) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[id.AgentID]struct{})
	for _, c := range s.byPool[poolID] {
		if c.Category == category {
			seen[c.Contributor] = struct{}{}
		}
	}
	return len(seen), nil
}
