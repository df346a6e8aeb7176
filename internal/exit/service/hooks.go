package service

import (
	"context"
	"fmt"

	"flock/internal/exit/models"
	"flock/pkg/platform/tx"
)

type hookPhase string

const (
	phaseExit      hookPhase = "exit"
	phaseReinstate hookPhase = "reinstate"
)

// runHooks calls every hook in order. Each call runs in its own savepoint so
// a failing hook rolls back only its own writes; failures and panics are
// logged and swallowed.
func (s *Service) runHooks(ctx context.Context, phase hookPhase, ev models.LifecycleEvent) {
	for _, h := range s.hooks {
		err := tx.Savepoint(ctx, func(ctx context.Context) (err error) {
			defer func() {
				if p := recover(); p != nil {
					err = fmt.Errorf("hook panicked: %v", p)
				}
			}()
			if phase == phaseExit {
				return h.OnExit(ctx, ev)
			}
			return h.OnReinstate(ctx, ev)
		})
		if err != nil {
			s.logger.WarnContext(ctx, "dependent-domain hook failed",
				"hook", h.Name(),
				"phase", string(phase),
				"church_id", ev.ChurchID.String(),
				"member_id", ev.MemberID.String(),
				"exit_id", ev.ExitID.String(),
				"error", err)
			if s.metrics != nil {
				s.metrics.IncrementHookFailure(h.Name(), string(phase))
			}
		}
	}
}
