package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"flock/internal/exit/models"
	id "flock/pkg/domain"
	"flock/pkg/platform/sentinel"
	"flock/pkg/platform/tx"
)

var (
	// ErrNotFound is returned when an exit record does not exist within the church.
	ErrNotFound = sentinel.ErrNotFound
	// ErrDuplicateActive is returned when a non-suggestion ACTIVE record already
	// exists for the member.
	ErrDuplicateActive = sentinel.ErrConflict
)

// InMemory stores exit records in a map and enforces the same
// one-active-exit-per-member rule as the Postgres partial unique index.
type InMemory struct {
	mu     sync.RWMutex
	exits  map[id.ExitID]*models.ExitRecord
	nextID id.ExitID
}

func NewInMemory() *InMemory {
	return &InMemory{exits: make(map[id.ExitID]*models.ExitRecord)}
}

func (s *InMemory) Create(ctx context.Context, rec *models.ExitRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec.IsActive() && !rec.IsSuggestion {
		for _, e := range s.exits {
			if e.ChurchID == rec.ChurchID && e.MemberID == rec.MemberID && e.IsActive() && !e.IsSuggestion {
				return ErrDuplicateActive
			}
		}
	}
	s.nextID++
	rec.ID = s.nextID
	cp := *rec
	s.exits[rec.ID] = &cp
	exitID := rec.ID
	tx.RecordUndo(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.exits, exitID)
	})
	return nil
}

func (s *InMemory) Update(ctx context.Context, rec *models.ExitRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.exits[rec.ID]
	if !ok || prev.ChurchID != rec.ChurchID {
		return ErrNotFound
	}
	cp := *rec
	s.exits[rec.ID] = &cp
	tx.RecordUndo(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.exits[prev.ID] = prev
	})
	return nil
}

func (s *InMemory) FindByID(_ context.Context, churchID id.ChurchID, exitID id.ExitID) (*models.ExitRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.exits[exitID]
	if !ok || e.ChurchID != churchID {
		return nil, ErrNotFound
	}
	cp := *e
	return &cp, nil
}

// FindForUpdate is FindByID; the in-memory tx runner already serializes scopes.
func (s *InMemory) FindForUpdate(ctx context.Context, churchID id.ChurchID, exitID id.ExitID) (*models.ExitRecord, error) {
	return s.FindByID(ctx, churchID, exitID)
}

func (s *InMemory) HasActive(_ context.Context, churchID id.ChurchID, memberID id.MemberID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.exits {
		if e.ChurchID == churchID && e.MemberID == memberID && e.IsActive() {
			return true, nil
		}
	}
	return false, nil
}

func (s *InMemory) List(_ context.Context, churchID id.ChurchID, filter models.ListFilter) ([]*models.ExitRecord, int, error) {
	filter.Normalize()
	matched := s.collect(func(e *models.ExitRecord) bool {
		return e.ChurchID == churchID && filter.Matches(e)
	})
	// newest first
	sort.Slice(matched, func(i, j int) bool { return newer(matched[i], matched[j]) })

	total := len(matched)
	start := min(filter.Offset(), total)
	end := min(start+filter.Limit, total)
	return matched[start:end], total, nil
}

func (s *InMemory) ListByMember(_ context.Context, churchID id.ChurchID, memberID id.MemberID) ([]*models.ExitRecord, error) {
	out := s.collect(func(e *models.ExitRecord) bool {
		return e.ChurchID == churchID && e.MemberID == memberID
	})
	sort.Slice(out, func(i, j int) bool { return newer(out[j], out[i]) })
	return out, nil
}

// ListActive returns ACTIVE records, church-wide when memberID is nil. Per
// member the non-suggestion record sorts first, then newest first.
func (s *InMemory) ListActive(_ context.Context, churchID id.ChurchID, memberID id.MemberID) ([]*models.ExitRecord, error) {
	out := s.collect(func(e *models.ExitRecord) bool {
		return e.ChurchID == churchID && e.IsActive() && (memberID.IsNil() || e.MemberID == memberID)
	})
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.MemberID != b.MemberID {
			return a.MemberID < b.MemberID
		}
		if a.IsSuggestion != b.IsSuggestion {
			return !a.IsSuggestion
		}
		return newer(a, b)
	})
	return out, nil
}

func (s *InMemory) ListLatestPerMember(_ context.Context, churchID id.ChurchID) ([]*models.ExitRecord, error) {
	all := s.collect(func(e *models.ExitRecord) bool { return e.ChurchID == churchID })
	latest := make(map[id.MemberID]*models.ExitRecord)
	for _, e := range all {
		if cur, ok := latest[e.MemberID]; !ok || newer(e, cur) {
			latest[e.MemberID] = e
		}
	}
	out := make([]*models.ExitRecord, 0, len(latest))
	for _, e := range latest {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *InMemory) Statistics(_ context.Context, churchID id.ChurchID, since time.Time) (*models.Statistics, error) {
	stats := &models.Statistics{
		ByStatus:   make(map[models.Status]int),
		ByExitType: make(map[models.ExitType]int),
	}
	for _, e := range s.collect(func(e *models.ExitRecord) bool { return e.ChurchID == churchID }) {
		stats.Total++
		stats.ByStatus[e.Status]++
		stats.ByExitType[e.ExitType]++
		if e.IsSuggestion {
			stats.Suggestions++
		}
		if !e.ExitDate.Before(since) {
			stats.LastThirty++
		}
	}
	return stats, nil
}

func (s *InMemory) collect(keep func(*models.ExitRecord) bool) []*models.ExitRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.ExitRecord
	for _, e := range s.exits {
		if keep(e) {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out
}

// newer orders by creation time, breaking ties by id.
func newer(a, b *models.ExitRecord) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}
