package service

//go:generate mockgen -source=ports.go -destination=mocks/mocks.go -package=mocks

import (
	"context"

	"flock/internal/audit"
	"flock/internal/exit/models"
	notification "flock/internal/notification/models"
	"flock/internal/platform/taskqueue"
)

// Hook lets a dependent domain react to lifecycle transitions. Hooks must be
// idempotent; a failing hook is logged and never aborts the transition.
type Hook interface {
	Name() string
	OnExit(ctx context.Context, ev models.LifecycleEvent) error
	OnReinstate(ctx context.Context, ev models.LifecycleEvent) error
}

type TaskQueue interface {
	Enqueue(t taskqueue.Task) bool
}

type Notifier interface {
	Create(ctx context.Context, req *notification.CreateRequest, opts notification.CreateOptions) (*notification.Notification, error)
}

type Emitter interface {
	EmitMany(rooms []string, event string, payload any)
}

type AuditPublisher interface {
	Emit(ctx context.Context, base audit.Event) error
}
