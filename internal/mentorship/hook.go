package mentorship

import (
	"context"
	"log/slog"
	"time"

	exit "flock/internal/exit/models"
	id "flock/pkg/domain"
	"flock/pkg/requestcontext"
)

type Store interface {
	SuspendForMember(ctx context.Context, churchID id.ChurchID, memberID id.MemberID, exitID id.ExitID, at time.Time) (int, error)
	ResumeForExit(ctx context.Context, churchID id.ChurchID, exitID id.ExitID, at time.Time) (int, error)
}

// Hook suspends a member's assignments on exit and resumes the ones that
// exit suspended on reinstatement. Both directions are idempotent.
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
	return "mentorship"
}

func (h *Hook) OnExit(ctx context.Context, ev exit.LifecycleEvent) error {
	n, err := h.store.SuspendForMember(ctx, ev.ChurchID, ev.MemberID, ev.ExitID, requestcontext.Now(ctx))
	if err != nil {
		return err
	}
	h.logger.DebugContext(ctx, "mentorship assignments suspended",
		"member_id", ev.MemberID.String(), "exit_id", ev.ExitID.String(), "count", n)
	return nil
}

func (h *Hook) OnReinstate(ctx context.Context, ev exit.LifecycleEvent) error {
	n, err := h.store.ResumeForExit(ctx, ev.ChurchID, ev.ExitID, requestcontext.Now(ctx))
	if err != nil {
		return err
	}
	h.logger.DebugContext(ctx, "mentorship assignments resumed",
		"member_id", ev.MemberID.String(), "exit_id", ev.ExitID.String(), "count", n)
	return nil
}
