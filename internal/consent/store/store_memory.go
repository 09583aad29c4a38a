package store

import (
	"context"
	"sync"

	"healthcommons/internal/consent/models"
	id "healthcommons/pkg/domain"
	"healthcommons/pkg/platform/sentinel"
)

// InMemoryStore keeps every consent version in process memory.
type InMemoryStore struct {
	mu        sync.RWMutex
	byHash    map[id.Hash]*models.Consent
	byGrantor map[id.AgentID][]id.Hash
	byGrantee map[id.AgentID][]id.Hash
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		byHash:    make(map[id.Hash]*models.Consent),
		byGrantor: make(map[id.AgentID][]id.Hash),
		byGrantee: make(map[id.AgentID][]id.Hash),
	}
}

func (s *InMemoryStore) Save(_ context.Context, c *models.Consent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byHash[c.Hash]; exists {
		return sentinel.ErrConflict
	}
	s.byHash[c.Hash] = c.Clone()
	s.byGrantor[c.Grantor] = append(s.byGrantor[c.Grantor], c.Hash)
	if c.Grantee.Kind == models.GranteeAgent {
		s.byGrantee[c.Grantee.Agent] = append(s.byGrantee[c.Grantee.Agent], c.Hash)
	}
	return nil
}

// Update persists the mutable lifecycle fields of an existing version.
func (s *InMemoryStore) Update(_ context.Context, c *models.Consent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.byHash[c.Hash]
	if !ok {
		return sentinel.ErrNotFound
	}
	existing.IsActive = c.IsActive
	existing.RevokedAt = c.Clone().RevokedAt
	existing.RevocationReason = c.RevocationReason
	existing.SupersededBy = c.SupersededBy
	return nil
}

func (s *InMemoryStore) FindByHash(_ context.Context, hash id.Hash) (*models.Consent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.byHash[hash]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return c.Clone(), nil
}

func (s *InMemoryStore) ListByGrantor(_ context.Context, grantor id.AgentID) ([]*models.Consent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(s.byGrantor[grantor]), nil
}

func (s *InMemoryStore) ListByGranteeAgent(_ context.Context, grantee id.AgentID) ([]*models.Consent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(s.byGrantee[grantee]), nil
}

func (s *InMemoryStore) collect(hashes []id.Hash) []*models.Consent {
	out := make([]*models.Consent, 0, len(hashes))
	for _, h := range hashes {
		out = append(out, s.byHash[h])
	}
	out = cloneAll(out)
	sortHistory(out)
	return out
}
