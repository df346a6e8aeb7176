package mentorship

import (
	"context"
	"sort"
	"sync"
	"time"

	id "flock/pkg/domain"
	"flock/pkg/platform/tx"
)

type InMemoryStore struct {
	mu          sync.RWMutex
	assignments map[int64]*Assignment
	nextID      int64
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{assignments: make(map[int64]*Assignment)}
}

func (s *InMemoryStore) Save(ctx context.Context, a *Assignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ID == 0 {
		s.nextID++
		a.ID = s.nextID
	}
	s.recordUndo(ctx, a.ID)
	cp := *a
	s.assignments[a.ID] = &cp
	return nil
}

func (s *InMemoryStore) ListByMember(_ context.Context, churchID id.ChurchID, memberID id.MemberID) ([]*Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Assignment
	for _, a := range s.assignments {
		if a.ChurchID == churchID && a.Involves(memberID) {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *InMemoryStore) SuspendForMember(ctx context.Context, churchID id.ChurchID, memberID id.MemberID, exitID id.ExitID, at time.Time) (int, error) {
	return s.update(ctx, func(a *Assignment) bool {
		if a.ChurchID != churchID || a.Status != StatusActive || !a.Involves(memberID) {
			return false
		}
		a.Status = StatusSuspended
		a.SuspendedByExit = &exitID
		a.UpdatedAt = at
		return true
	})
}

func (s *InMemoryStore) ResumeForExit(ctx context.Context, churchID id.ChurchID, exitID id.ExitID, at time.Time) (int, error) {
	return s.update(ctx, func(a *Assignment) bool {
		if a.ChurchID != churchID || a.Status != StatusSuspended ||
			a.SuspendedByExit == nil || *a.SuspendedByExit != exitID {
			return false
		}
		a.Status = StatusActive
		a.SuspendedByExit = nil
		a.UpdatedAt = at
		return true
	})
}

func (s *InMemoryStore) update(ctx context.Context, apply func(*Assignment) bool) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for key, a := range s.assignments {
		next := *a
		if !apply(&next) {
			continue
		}
		s.recordUndo(ctx, key)
		s.assignments[key] = &next
		n++
	}
	return n, nil
}

// recordUndo must be called with s.mu held, before the write.
func (s *InMemoryStore) recordUndo(ctx context.Context, key int64) {
	prev, existed := s.assignments[key]
	tx.RecordUndo(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if existed {
			s.assignments[key] = prev
		} else {
			delete(s.assignments, key)
		}
	})
}
