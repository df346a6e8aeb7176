package store

import (
	"context"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"flock/internal/notification/models"
	id "flock/pkg/domain"
	"flock/pkg/platform/sentinel"
)

// Error Contract:
// All store methods follow this error pattern:
//   - Return ErrNotFound when the requested entity does not exist
//   - Return nil for successful operations
//   - Return wrapped errors for infrastructure failures
var ErrNotFound = sentinel.ErrNotFound

// InMemory keeps notifications in a map guarded by a single lock.
type InMemory struct {
	mu     sync.RWMutex
	rows   map[id.NotificationID]*models.Notification
	nextID id.NotificationID
}

func NewInMemory() *InMemory {
	return &InMemory{rows: make(map[id.NotificationID]*models.Notification)}
}

func (s *InMemory) Create(_ context.Context, n *models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	n.ID = s.nextID
	s.rows[n.ID] = clone(n)
	return nil
}

func (s *InMemory) FindByID(_ context.Context, churchID id.ChurchID, notificationID id.NotificationID) (*models.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.rows[notificationID]
	if !ok || n.ChurchID != churchID {
		return nil, ErrNotFound
	}
	return clone(n), nil
}

// List returns the caller's visible notifications, newest first.
func (s *InMemory) List(_ context.Context, churchID id.ChurchID, userID id.UserID, filter models.ListFilter) ([]*models.Notification, int, error) {
	s.mu.RLock()
	var matched []*models.Notification
	for _, n := range s.rows {
		if n.ChurchID == churchID && n.VisibleTo(userID) && filter.Matches(n) {
			matched = append(matched, clone(n))
		}
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})
	total := len(matched)
	start := min(filter.Offset(), total)
	end := min(start+filter.Limit, total)
	return matched[start:end], total, nil
}

func (s *InMemory) MarkRead(_ context.Context, churchID id.ChurchID, notificationID id.NotificationID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.rows[notificationID]
	if !ok || n.ChurchID != churchID {
		return ErrNotFound
	}
	n.MarkRead(at)
	return nil
}

// MarkAllRead marks every unread notification visible to the user and
// returns their ids in ascending order.
func (s *InMemory) MarkAllRead(_ context.Context, churchID id.ChurchID, userID id.UserID, at time.Time) ([]id.NotificationID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := []id.NotificationID{}
	for _, n := range s.rows {
		if n.ChurchID == churchID && n.VisibleTo(userID) && n.MarkRead(at) {
			ids = append(ids, n.ID)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

func (s *InMemory) Delete(_ context.Context, churchID id.ChurchID, notificationID id.NotificationID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.rows[notificationID]
	if !ok || n.ChurchID != churchID {
		return ErrNotFound
	}
	delete(s.rows, notificationID)
	return nil
}

func clone(n *models.Notification) *models.Notification {
	c := *n
	c.Metadata = maps.Clone(n.Metadata)
	return &c
}

type prefKey struct {
	church id.ChurchID
	user   id.UserID
}

// InMemoryPreferences stores per-user channel preferences.
type InMemoryPreferences struct {
	mu    sync.RWMutex
	prefs map[prefKey]*models.Preference
}

func NewInMemoryPreferences() *InMemoryPreferences {
	return &InMemoryPreferences{prefs: make(map[prefKey]*models.Preference)}
}

func (s *InMemoryPreferences) Get(_ context.Context, churchID id.ChurchID, userID id.UserID) (*models.Preference, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.prefs[prefKey{churchID, userID}]
	if !ok {
		return nil, ErrNotFound
	}
	c := *p
	c.Channels = maps.Clone(p.Channels)
	return &c, nil
}

func (s *InMemoryPreferences) Save(_ context.Context, p *models.Preference) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *p
	c.Channels = maps.Clone(p.Channels)
	s.prefs[prefKey{p.ChurchID, p.UserID}] = &c
	return nil
}
