package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	id "healthcommons/pkg/domain"
	audit "healthcommons/pkg/platform/audit"
)

type InMemoryStore struct {
	mu        sync.RWMutex
	events    map[id.AgentID][]audit.Event
	outbox    []audit.OutboxEntry
	published map[string]time.Time
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		events:    make(map[id.AgentID][]audit.Event),
		published: make(map[string]time.Time),
	}
}

func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = make(map[id.AgentID][]audit.Event)
	s.outbox = nil
	s.published = make(map[string]time.Time)
}

func (s *InMemoryStore) Append(_ context.Context, event audit.Event) error {
	entry, err := audit.NewOutboxEntry(event, time.Now())
	if err != nil {
		return fmt.Errorf("build outbox entry: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[event.AgentID] = append(s.events[event.AgentID], event)
	s.outbox = append(s.outbox, entry)
	return nil
}

func (s *InMemoryStore) ListByAgent(_ context.Context, agentID id.AgentID) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.events[agentID]), nil
}

// ListAll returns every event in append order per agent.
func (s *InMemoryStore) ListAll(_ context.Context) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var all []audit.Event
	for _, events := range s.events {
		all = append(all, events...)
	}
	return all, nil
}

func (s *InMemoryStore) ListPending(_ context.Context, limit int) ([]audit.OutboxEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var pending []audit.OutboxEntry
	for _, entry := range s.outbox {
		if _, done := s.published[entry.ID]; done {
			continue
		}
		pending = append(pending, entry)
		if limit > 0 && len(pending) == limit {
			break
		}
	}
	return pending, nil
}

func (s *InMemoryStore) MarkPublished(_ context.Context, ids []string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, entryID := range ids {
		s.published[entryID] = at
	}
	return nil
}
