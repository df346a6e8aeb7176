package service

//go:generate mockgen -source=ports.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"time"

	"flock/internal/notification/models"
	"flock/internal/platform/taskqueue"
	id "flock/pkg/domain"
)

// Store persists notifications. Lookups are scoped by church.
type Store interface {
	Create(ctx context.Context, n *models.Notification) error
	FindByID(ctx context.Context, churchID id.ChurchID, notificationID id.NotificationID) (*models.Notification, error)
	List(ctx context.Context, churchID id.ChurchID, userID id.UserID, filter models.ListFilter) ([]*models.Notification, int, error)
	MarkRead(ctx context.Context, churchID id.ChurchID, notificationID id.NotificationID, at time.Time) error
	MarkAllRead(ctx context.Context, churchID id.ChurchID, userID id.UserID, at time.Time) ([]id.NotificationID, error)
	Delete(ctx context.Context, churchID id.ChurchID, notificationID id.NotificationID) error
}

// PreferenceStore persists channel preferences; Get returns ErrNotFound
// when the user never saved one.
type PreferenceStore interface {
	Get(ctx context.Context, churchID id.ChurchID, userID id.UserID) (*models.Preference, error)
	Save(ctx context.Context, p *models.Preference) error
}

// RateLimiter enforces notification quotas. A zero userID skips the user
// check. Exceeded quotas return RateLimitUser or RateLimitChurch.
type RateLimiter interface {
	CheckNotification(ctx context.Context, churchID id.ChurchID, userID id.UserID) error
}

// Emitter delivers real-time events; delivery is fire-and-forget.
type Emitter interface {
	Emit(room string, event string, payload any)
}

// Relay hands notifications for external channels to their sink.
type Relay interface {
	Publish(ctx context.Context, n *models.Notification) error
}

// TaskQueue runs relay publishes off the request path. Enqueue reports false
// when the task was dropped.
type TaskQueue interface {
	Enqueue(t taskqueue.Task) bool
}
