// Package store persists access attempt logs. Logs are append-only.
package store

import (
	"context"
	"sort"
	"sync"

	"healthcommons/internal/authorization/models"
	id "healthcommons/pkg/domain"
)

// InMemoryStore keeps access logs per patient in arrival order.
type InMemoryStore struct {
	mu   sync.RWMutex
	logs map[id.AgentID][]*models.AccessLog
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{logs: make(map[id.AgentID][]*models.AccessLog)}
}

func (s *InMemoryStore) Append(_ context.Context, log *models.AccessLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *log
	s.logs[log.Patient] = append(s.logs[log.Patient], &cp)
	return nil
}

// ListByPatient returns matching logs newest first.
func (s *InMemoryStore) ListByPatient(_ context.Context, patient id.AgentID, filter models.LogFilter) ([]*models.AccessLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.AccessLog
	for _, l := range s.logs[patient] {
		if filter.Matches(l) {
			cp := *l
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].AccessedAt.After(out[j].AccessedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}
