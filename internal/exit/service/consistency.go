package service

import (
	"context"
	"errors"

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

// drift describes how an exit record disagrees with its member's status.
type drift int

const (
	noDrift drift = iota
	// activeMismatch: the record is ACTIVE but the member is not in the
	// classification of its exit type, nor in that of the record governing it.
	activeMismatch
	// closedButInactive: the record is closed, the member still carries its
	// classification and no ACTIVE record explains it.
	closedButInactive
)

// FindInconsistentExits inspects every ACTIVE exit record plus the most
// recent closed record of each member and returns those that disagree with
// the member's status.
func (s *Service) FindInconsistentExits(ctx context.Context, churchID id.ChurchID) ([]*models.ExitRecord, error) {
	ctx, span := s.startSpan(ctx, "exit.scan", churchID)
	defer span.End()

	candidates, err := s.scanCandidates(ctx, churchID)
	if err != nil {
		return nil, s.fail(span, "scan", err)
	}
	memberIDs := make([]id.MemberID, 0, len(candidates))
	for _, rec := range candidates {
		memberIDs = append(memberIDs, rec.MemberID)
	}
	members, err := s.members.ListByIDs(ctx, churchID, dedupe.Values(memberIDs))
	if err != nil {
		return nil, s.fail(span, "scan", dErrors.Wrap(err, dErrors.CodeInternal, "failed to load members"))
	}

	out := []*models.ExitRecord{}
	for _, rec := range candidates {
		m, ok := members[rec.MemberID]
		if !ok {
			s.logger.WarnContext(ctx, "exit record references missing member",
				"church_id", churchID.String(),
				"exit_id", rec.ID.String(),
				"member_id", rec.MemberID.String())
			continue
		}
		d, err := s.inspect(ctx, rec, m)
		if err != nil {
			return nil, s.fail(span, "scan", err)
		}
		if d != noDrift {
			out = append(out, rec)
		}
	}
	span.SetAttributes(attribute.Int("candidates", len(candidates)), attribute.Int("inconsistent", len(out)))
	return out, nil
}

// scanCandidates lists every ACTIVE record followed by the newest record of
// each member when that record is closed.
func (s *Service) scanCandidates(ctx context.Context, churchID id.ChurchID) ([]*models.ExitRecord, error) {
	active, err := s.exits.ListActive(ctx, churchID, 0)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list active exit records")
	}
	latest, err := s.exits.ListLatestPerMember(ctx, churchID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list exit records")
	}
	out := active
	for _, rec := range latest {
		if !rec.IsActive() {
			out = append(out, rec)
		}
	}
	return out, nil
}

// FixInconsistentExit repairs one record treating the member status as
// ground truth. An ACTIVE record whose member disagrees is closed as
// REINSTATED and the member is left as found. A closed record whose member
// still carries its classification, with no ACTIVE record left, has the
// member restored. Calling it on a consistent record is a no-op reporting
// Fixed=false.
func (s *Service) FixInconsistentExit(ctx context.Context, churchID id.ChurchID, exitID id.ExitID, updatedBy id.UserID) (*models.FixResult, error) {
	ctx, span := s.startSpan(ctx, "exit.fix", churchID, attribute.Int64("exit_id", int64(exitID)))
	defer span.End()

	now := requestcontext.Now(ctx)
	var (
		rec   *models.ExitRecord
		fixed bool
	)
	err := s.runner.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		fixed = false
		rec, err = s.loadForUpdate(ctx, churchID, exitID)
		if err != nil {
			return err
		}
		m, err := s.members.FindForUpdate(ctx, churchID, rec.MemberID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeNotFound, "member not found")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load member")
		}

		d, err := s.inspect(ctx, rec, m)
		if err != nil {
			return err
		}
		switch d {
		case noDrift:
			return nil
		case activeMismatch:
			if err := rec.Reinstate(updatedBy, now); err != nil {
				return err
			}
			if err := s.exits.Update(ctx, rec); err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update exit record")
			}
		case closedButInactive:
			if m, err = s.restoreMember(ctx, churchID, rec.MemberID, now); err != nil {
				return err
			}
		}
		fixed = true
		return s.finishRepair(ctx, rec, m, updatedBy)
	})
	if err != nil {
		return nil, s.fail(span, "fix", err)
	}

	if fixed {
		s.logAudit(ctx, string(audit.ActionExitRepaired),
			"church_id", churchID.String(),
			"exit_id", exitID.String(),
			"member_id", rec.MemberID.String(),
			"user_id", updatedBy.String())
		if s.metrics != nil {
			s.metrics.AddInconsistenciesFixed(1)
		}
	}
	s.succeed("fix")
	return &models.FixResult{Exit: rec, Fixed: fixed}, nil
}

// finishRepair resumes dependent domains for a member the repair left active
// and records the repair.
func (s *Service) finishRepair(ctx context.Context, rec *models.ExitRecord, m *member.Member, actor id.UserID) error {
	if m.Status.IsActive() {
		s.runHooks(ctx, phaseReinstate, models.NewLifecycleEvent(rec, actor))
	}
	return s.emitAudit(ctx, audit.Event{
		ChurchID: rec.ChurchID,
		ActorID:  actor,
		Action:   audit.ActionExitRepaired,
		ExitID:   rec.ID,
		MemberID: rec.MemberID,
		Detail:   string(rec.Status),
	})
}

// FixAllInconsistentExits scans the church and repairs every hit, each in its
// own scope. Failures are logged and skipped; the count of repaired records
// is returned.
func (s *Service) FixAllInconsistentExits(ctx context.Context, churchID id.ChurchID, updatedBy id.UserID) (int, error) {
	found, err := s.FindInconsistentExits(ctx, churchID)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, rec := range found {
		res, err := s.FixInconsistentExit(ctx, churchID, rec.ID, updatedBy)
		if err != nil {
			s.logger.WarnContext(ctx, "failed to repair exit record",
				"church_id", churchID.String(),
				"exit_id", rec.ID.String(),
				"error", err)
			continue
		}
		if res.Fixed {
			count++
		}
	}
	s.logAudit(ctx, "exits_reconciled",
		"church_id", churchID.String(),
		"found", len(found),
		"fixed", count)
	return count, nil
}

func (s *Service) inspect(ctx context.Context, rec *models.ExitRecord, m *member.Member) (drift, error) {
	if rec.IsActive() {
		if m.Status == rec.ExitType.MemberStatus() {
			return noDrift, nil
		}
		if !rec.IsSuggestion {
			return activeMismatch, nil
		}
		governing, err := s.governingExit(ctx, rec.ChurchID, rec.MemberID)
		if err != nil {
			return noDrift, err
		}
		if governing != nil && governing.ID != rec.ID && m.Status == governing.ExitType.MemberStatus() {
			return noDrift, nil
		}
		return activeMismatch, nil
	}
	if m.Status != rec.ExitType.MemberStatus() {
		return noDrift, nil
	}
	active, err := s.exits.HasActive(ctx, rec.ChurchID, rec.MemberID)
	if err != nil {
		return noDrift, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check active exits")
	}
	if active {
		return noDrift, nil
	}
	return closedButInactive, nil
}
