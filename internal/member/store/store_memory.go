package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"flock/internal/member/models"
	id "flock/pkg/domain"
	"flock/pkg/platform/sentinel"
	"flock/pkg/platform/tx"
)

// ErrNotFound is returned when a member does not exist within the church.
var ErrNotFound = sentinel.ErrNotFound

type memberKey struct {
	church id.ChurchID
	member id.MemberID
}

// InMemory keeps members in a map. Writes made inside a tx scope register
// undo steps so the scope can roll them back.
type InMemory struct {
	mu      sync.RWMutex
	members map[memberKey]*models.Member
}

func NewInMemory() *InMemory {
	return &InMemory{members: make(map[memberKey]*models.Member)}
}

// Save inserts or replaces a member.
func (s *InMemory) Save(ctx context.Context, m *models.Member) error {
	if m == nil {
		return fmt.Errorf("member is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := memberKey{m.ChurchID, m.ID}
	s.recordUndo(ctx, key)
	cp := *m
	s.members[key] = &cp
	return nil
}

func (s *InMemory) FindByID(_ context.Context, churchID id.ChurchID, memberID id.MemberID) (*models.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.members[memberKey{churchID, memberID}]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *m
	return &cp, nil
}

// FindForUpdate is FindByID; the in-memory tx runner already serializes scopes.
func (s *InMemory) FindForUpdate(ctx context.Context, churchID id.ChurchID, memberID id.MemberID) (*models.Member, error) {
	return s.FindByID(ctx, churchID, memberID)
}

func (s *InMemory) ListByIDs(_ context.Context, churchID id.ChurchID, memberIDs []id.MemberID) (map[id.MemberID]*models.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[id.MemberID]*models.Member, len(memberIDs))
	for _, memberID := range memberIDs {
		if m, ok := s.members[memberKey{churchID, memberID}]; ok {
			cp := *m
			out[memberID] = &cp
		}
	}
	return out, nil
}

func (s *InMemory) MarkExited(ctx context.Context, churchID id.ChurchID, memberID id.MemberID, status models.Status, at time.Time) error {
	return s.mutate(ctx, churchID, memberID, func(m *models.Member) error {
		return m.ApplyExit(status, at)
	})
}

func (s *InMemory) Restore(ctx context.Context, churchID id.ChurchID, memberID id.MemberID, at time.Time) error {
	return s.mutate(ctx, churchID, memberID, func(m *models.Member) error {
		m.ApplyRestore(at)
		return nil
	})
}

func (s *InMemory) mutate(ctx context.Context, churchID id.ChurchID, memberID id.MemberID, fn func(*models.Member) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := memberKey{churchID, memberID}
	current, ok := s.members[key]
	if !ok {
		return ErrNotFound
	}
	next := *current
	if err := fn(&next); err != nil {
		return err
	}
	s.recordUndo(ctx, key)
	s.members[key] = &next
	return nil
}

// recordUndo must be called with s.mu held, before the write.
func (s *InMemory) recordUndo(ctx context.Context, key memberKey) {
	prev, existed := s.members[key]
	tx.RecordUndo(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if existed {
			s.members[key] = prev
		} else {
			delete(s.members, key)
		}
	})
}
