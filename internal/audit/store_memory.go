package audit

import (
	"context"
	"sync"

	id "flock/pkg/domain"
	"flock/pkg/platform/tx"
)

type InMemoryStore struct {
	mu     sync.RWMutex
	events []Event
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Append(ctx context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	eventID := event.ID
	tx.RecordUndo(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i := len(s.events) - 1; i >= 0; i-- {
			if s.events[i].ID == eventID {
				s.events = append(s.events[:i], s.events[i+1:]...)
				return
			}
		}
	})
	return nil
}

func (s *InMemoryStore) ListByMember(_ context.Context, churchID id.ChurchID, memberID id.MemberID) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Event
	for _, e := range s.events {
		if e.ChurchID == churchID && e.MemberID == memberID {
			out = append(out, e)
		}
	}
	return out, nil
}
