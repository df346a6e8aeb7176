package milestone

import (
	"context"
	"log/slog"
	"time"

	exit "flock/internal/exit/models"
	id "flock/pkg/domain"
	"flock/pkg/requestcontext"
)

type Store interface {
	PauseForMember(ctx context.Context, churchID id.ChurchID, memberID id.MemberID, exitID id.ExitID, at time.Time) (int, error)
	ResumeForExit(ctx context.Context, churchID id.ChurchID, exitID id.ExitID, at time.Time) (int, error)
}

// Hook pauses pending milestones on exit and resumes them on reinstatement.
type Hook struct {
	store  Store
	logger *slog.Logger
}

func NewHook(store Store, logger *slog.Logger) *Hook {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hook{store: store, logger: logger}
}

func (h *Hook) Name() string {
	return "milestone"
}

func (h *Hook) OnExit(ctx context.Context, ev exit.LifecycleEvent) error {
	n, err := h.store.PauseForMember(ctx, ev.ChurchID, ev.MemberID, ev.ExitID, requestcontext.Now(ctx))
	if err != nil {
		return err
	}
	h.logger.DebugContext(ctx, "milestones paused",
		"member_id", ev.MemberID.String(), "exit_id", ev.ExitID.String(), "count", n)
	return nil
}

func (h *Hook) OnReinstate(ctx context.Context, ev exit.LifecycleEvent) error {
	n, err := h.store.ResumeForExit(ctx, ev.ChurchID, ev.ExitID, requestcontext.Now(ctx))
	if err != nil {
		return err
	}
	h.logger.DebugContext(ctx, "milestones resumed",
		"member_id", ev.MemberID.String(), "exit_id", ev.ExitID.String(), "count", n)
	return nil
}
