package milestone

import (
	"context"
	"sort"
	"sync"
	"time"

	id "flock/pkg/domain"
	"flock/pkg/platform/tx"
)

type InMemoryStore struct {
	mu      sync.RWMutex
	records map[int64]*Record
	nextID  int64
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[int64]*Record)}
}

func (s *InMemoryStore) Save(ctx context.Context, r *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.ID == 0 {
		s.nextID++
		r.ID = s.nextID
	}
	s.recordUndo(ctx, r.ID)
	cp := *r
	s.records[r.ID] = &cp
	return nil
}

func (s *InMemoryStore) ListByMember(_ context.Context, churchID id.ChurchID, memberID id.MemberID) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Record
	for _, r := range s.records {
		if r.ChurchID == churchID && r.MemberID == memberID {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *InMemoryStore) PauseForMember(ctx context.Context, churchID id.ChurchID, memberID id.MemberID, exitID id.ExitID, at time.Time) (int, error) {
	return s.update(ctx, func(r *Record) bool {
		if r.ChurchID != churchID || r.MemberID != memberID || r.Status != StatusPending {
			return false
		}
		r.Status = StatusPaused
		r.PausedByExit = &exitID
		r.UpdatedAt = at
		return true
	})
}

func (s *InMemoryStore) ResumeForExit(ctx context.Context, churchID id.ChurchID, exitID id.ExitID, at time.Time) (int, error) {
	return s.update(ctx, func(r *Record) bool {
		if r.ChurchID != churchID || r.Status != StatusPaused ||
			r.PausedByExit == nil || *r.PausedByExit != exitID {
			return false
		}
		r.Status = StatusPending
		r.PausedByExit = nil
		r.UpdatedAt = at
		return true
	})
}

func (s *InMemoryStore) update(ctx context.Context, apply func(*Record) bool) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for key, r := range s.records {
		next := *r
		if !apply(&next) {
			continue
		}
		s.recordUndo(ctx, key)
		s.records[key] = &next
		n++
	}
	return n, nil
}

// recordUndo must be called with s.mu held, before the write.
func (s *InMemoryStore) recordUndo(ctx context.Context, key int64) {
	prev, existed := s.records[key]
	tx.RecordUndo(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if existed {
			s.records[key] = prev
		} else {
			delete(s.records, key)
		}
	})
}
