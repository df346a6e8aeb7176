package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"flock/internal/audit"
	"flock/internal/exit/models"
	member "flock/internal/member/models"
	id "flock/pkg/domain"
	dErrors "flock/pkg/domain-errors"
	"flock/pkg/platform/dedupe"
	"flock/pkg/platform/sentinel"
	"flock/pkg/requestcontext"
)

// transition is one committed record change plus the member it touched.
type transition struct {
	exit   *models.ExitRecord
	member *member.Member
}

// ReinstateMember closes an ACTIVE exit as REINSTATED and restores the member
// to active. Missing and already closed records are reported as not found.
func (s *Service) ReinstateMember(ctx context.Context, churchID id.ChurchID, exitID id.ExitID, reinstatedBy id.UserID) (*models.ExitRecord, error) {
	ctx, span := s.startSpan(ctx, "exit.reinstate", churchID, attribute.Int64("exit_id", int64(exitID)))
	defer span.End()

	now := requestcontext.Now(ctx)
	var t transition
	err := s.runner.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		t, err = s.reinstateInScope(ctx, churchID, exitID, reinstatedBy, now)
		return err
	})
	if err != nil {
		return nil, s.fail(span, "reinstate", err)
	}

	s.logAudit(ctx, string(audit.ActionMemberReinstated),
		"church_id", churchID.String(),
		"exit_id", exitID.String(),
		"member_id", t.exit.MemberID.String(),
		"user_id", reinstatedBy.String())
	s.succeed("reinstate")
	s.enqueueLifecycle(ctx, models.EventMemberReinstated, t.exit, t.member)
	return t.exit, nil
}

// SoftDeleteExit closes an ACTIVE exit as DELETED and restores the member.
func (s *Service) SoftDeleteExit(ctx context.Context, churchID id.ChurchID, exitID id.ExitID, deletedBy id.UserID) (*models.ExitRecord, error) {
	ctx, span := s.startSpan(ctx, "exit.delete", churchID, attribute.Int64("exit_id", int64(exitID)))
	defer span.End()

	now := requestcontext.Now(ctx)
	var t transition
	err := s.runner.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		t, err = s.deleteInScope(ctx, churchID, exitID, deletedBy, now)
		return err
	})
	if err != nil {
		return nil, s.fail(span, "delete", err)
	}

	s.logAudit(ctx, string(audit.ActionExitDeleted),
		"church_id", churchID.String(),
		"exit_id", exitID.String(),
		"member_id", t.exit.MemberID.String(),
		"user_id", deletedBy.String())
	s.succeed("delete")
	s.enqueueLifecycle(ctx, models.EventMemberReinstated, t.exit, t.member)
	return t.exit, nil
}

// BulkReinstateExits reinstates every id in one scope. Any item failing its
// core transition aborts the whole batch; hook failures do not.
func (s *Service) BulkReinstateExits(ctx context.Context, churchID id.ChurchID, exitIDs []id.ExitID, reinstatedBy id.UserID) (*models.BulkResult, error) {
	return s.bulk(ctx, "bulk_reinstate", churchID, exitIDs, reinstatedBy, s.reinstateInScope)
}

// BulkDeleteExits soft-deletes every id in one scope, all or nothing.
func (s *Service) BulkDeleteExits(ctx context.Context, churchID id.ChurchID, exitIDs []id.ExitID, deletedBy id.UserID) (*models.BulkResult, error) {
	return s.bulk(ctx, "bulk_delete", churchID, exitIDs, deletedBy, s.deleteInScope)
}

type transitionFunc func(ctx context.Context, churchID id.ChurchID, exitID id.ExitID, actor id.UserID, now time.Time) (transition, error)

func (s *Service) bulk(ctx context.Context, operation string, churchID id.ChurchID, exitIDs []id.ExitID, actor id.UserID, apply transitionFunc) (*models.BulkResult, error) {
	ctx, span := s.startSpan(ctx, "exit."+operation, churchID, attribute.Int("items", len(exitIDs)))
	defer span.End()

	ids, err := normalizeBulkIDs(exitIDs)
	if err != nil {
		return nil, s.fail(span, operation, err)
	}

	now := requestcontext.Now(ctx)
	var done []transition
	err = s.runner.RunInTx(ctx, func(ctx context.Context) error {
		done = done[:0]
		for _, exitID := range ids {
			t, err := apply(ctx, churchID, exitID, actor, now)
			if err != nil {
				return dErrors.Wrap(err, dErrors.CodeOf(err), fmt.Sprintf("%s aborted at exit %d", operation, exitID))
			}
			done = append(done, t)
		}
		return nil
	})
	if err != nil {
		return nil, s.fail(span, operation, err)
	}

	result := &models.BulkResult{Processed: len(done), Exits: make([]*models.ExitRecord, 0, len(done))}
	for _, t := range done {
		result.Exits = append(result.Exits, t.exit)
		s.enqueueLifecycle(ctx, models.EventMemberReinstated, t.exit, t.member)
	}
	s.logAudit(ctx, operation,
		"church_id", churchID.String(),
		"count", len(done),
		"user_id", actor.String())
	s.succeed(operation)
	return result, nil
}

func normalizeBulkIDs(exitIDs []id.ExitID) ([]id.ExitID, error) {
	if len(exitIDs) == 0 {
		return nil, dErrors.New(dErrors.CodeInvalidPayload, "ids are required")
	}
	if len(exitIDs) > models.MaxBulkItems {
		return nil, dErrors.New(dErrors.CodeInvalidPayload, fmt.Sprintf("at most %d ids per request", models.MaxBulkItems))
	}
	for _, exitID := range exitIDs {
		if exitID.IsNil() {
			return nil, dErrors.New(dErrors.CodeInvalidPayload, "ids must be positive")
		}
	}
	return dedupe.Values(exitIDs), nil
}

func (s *Service) reinstateInScope(ctx context.Context, churchID id.ChurchID, exitID id.ExitID, actor id.UserID, now time.Time) (transition, error) {
	rec, err := s.loadForUpdate(ctx, churchID, exitID)
	if err != nil {
		return transition{}, err
	}
	if !rec.IsActive() {
		return transition{}, dErrors.New(dErrors.CodeNotFound, "no active exit record with this id")
	}
	if err := rec.Reinstate(actor, now); err != nil {
		return transition{}, err
	}
	return s.closeInScope(ctx, rec, actor, now, audit.ActionMemberReinstated)
}

func (s *Service) deleteInScope(ctx context.Context, churchID id.ChurchID, exitID id.ExitID, actor id.UserID, now time.Time) (transition, error) {
	rec, err := s.loadForUpdate(ctx, churchID, exitID)
	if err != nil {
		return transition{}, err
	}
	if err := rec.SoftDelete(actor, now); err != nil {
		return transition{}, err
	}
	return s.closeInScope(ctx, rec, actor, now, audit.ActionExitDeleted)
}

// closeInScope persists a record that just left ACTIVE and settles its
// member. With no ACTIVE record left the member is restored; otherwise it
// takes the classification of the record that still governs it.
func (s *Service) closeInScope(ctx context.Context, rec *models.ExitRecord, actor id.UserID, now time.Time, action audit.Action) (transition, error) {
	if err := s.exits.Update(ctx, rec); err != nil {
		return transition{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update exit record")
	}
	governing, err := s.governingExit(ctx, rec.ChurchID, rec.MemberID)
	if err != nil {
		return transition{}, err
	}
	var m *member.Member
	if governing == nil {
		if m, err = s.restoreMember(ctx, rec.ChurchID, rec.MemberID, now); err != nil {
			return transition{}, err
		}
		s.runHooks(ctx, phaseReinstate, models.NewLifecycleEvent(rec, actor))
	} else {
		if m, err = s.classifyMember(ctx, governing, now, dErrors.CodeExitReinstateFailed); err != nil {
			return transition{}, err
		}
	}
	if err := s.emitAudit(ctx, audit.Event{
		ChurchID: rec.ChurchID,
		ActorID:  actor,
		Action:   action,
		ExitID:   rec.ID,
		MemberID: rec.MemberID,
	}); err != nil {
		return transition{}, err
	}
	return transition{exit: rec, member: m}, nil
}

// governingExit returns the ACTIVE record that decides the member's
// classification: the non-suggestion record when there is one, else the
// newest suggestion. It returns nil when nothing is ACTIVE.
func (s *Service) governingExit(ctx context.Context, churchID id.ChurchID, memberID id.MemberID) (*models.ExitRecord, error) {
	active, err := s.exits.ListActive(ctx, churchID, memberID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list active exits")
	}
	if len(active) == 0 {
		return nil, nil
	}
	return active[0], nil
}

func (s *Service) classifyMember(ctx context.Context, rec *models.ExitRecord, now time.Time, code dErrors.Code) (*member.Member, error) {
	if err := s.members.MarkExited(ctx, rec.ChurchID, rec.MemberID, rec.ExitType.MemberStatus(), now); err != nil {
		return nil, dErrors.Wrap(err, code, "failed to update member status")
	}
	return s.reloadMember(ctx, rec.ChurchID, rec.MemberID, code)
}

func (s *Service) restoreMember(ctx context.Context, churchID id.ChurchID, memberID id.MemberID, now time.Time) (*member.Member, error) {
	if err := s.members.Restore(ctx, churchID, memberID, now); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeExitReinstateFailed, "failed to restore member status")
	}
	return s.reloadMember(ctx, churchID, memberID, dErrors.CodeExitReinstateFailed)
}

func (s *Service) reloadMember(ctx context.Context, churchID id.ChurchID, memberID id.MemberID, code dErrors.Code) (*member.Member, error) {
	m, err := s.members.FindByID(ctx, churchID, memberID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(err, code, "member disappeared during status change")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to reload member")
	}
	return m, nil
}
