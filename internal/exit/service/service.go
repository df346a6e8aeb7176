// Package service implements the member lifecycle transition engine.
//
// Every mutating operation runs in one transactional scope spanning the exit
// record write, the member status write and the dependent-domain hooks.
// Hooks are best-effort and isolated by savepoints. Notifications are
// enqueued only after the scope commits.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"flock/internal/audit"
	"flock/internal/exit/models"
	member "flock/internal/member/models"
	"flock/internal/platform/metrics"
	id "flock/pkg/domain"
	dErrors "flock/pkg/domain-errors"
	"flock/pkg/platform/sentinel"
	"flock/pkg/platform/tx"
	"flock/pkg/requestcontext"
)

const statisticsWindow = 30 * 24 * time.Hour

type ExitStore interface {
	Create(ctx context.Context, rec *models.ExitRecord) error
	Update(ctx context.Context, rec *models.ExitRecord) error
	FindByID(ctx context.Context, churchID id.ChurchID, exitID id.ExitID) (*models.ExitRecord, error)
	FindForUpdate(ctx context.Context, churchID id.ChurchID, exitID id.ExitID) (*models.ExitRecord, error)
	HasActive(ctx context.Context, churchID id.ChurchID, memberID id.MemberID) (bool, error)
	ListActive(ctx context.Context, churchID id.ChurchID, memberID id.MemberID) ([]*models.ExitRecord, error)
	List(ctx context.Context, churchID id.ChurchID, filter models.ListFilter) ([]*models.ExitRecord, int, error)
	ListByMember(ctx context.Context, churchID id.ChurchID, memberID id.MemberID) ([]*models.ExitRecord, error)
	ListLatestPerMember(ctx context.Context, churchID id.ChurchID) ([]*models.ExitRecord, error)
	Statistics(ctx context.Context, churchID id.ChurchID, since time.Time) (*models.Statistics, error)
}

type MemberStore interface {
	FindByID(ctx context.Context, churchID id.ChurchID, memberID id.MemberID) (*member.Member, error)
	FindForUpdate(ctx context.Context, churchID id.ChurchID, memberID id.MemberID) (*member.Member, error)
	ListByIDs(ctx context.Context, churchID id.ChurchID, memberIDs []id.MemberID) (map[id.MemberID]*member.Member, error)
	MarkExited(ctx context.Context, churchID id.ChurchID, memberID id.MemberID, status member.Status, at time.Time) error
	Restore(ctx context.Context, churchID id.ChurchID, memberID id.MemberID, at time.Time) error
}

// Service is the transition engine.
type Service struct {
	exits          ExitStore
	members        MemberStore
	runner         tx.Runner
	hooks          []Hook
	tasks          TaskQueue
	notifier       Notifier
	emitter        Emitter
	auditPublisher AuditPublisher
	logger         *slog.Logger
	metrics        *metrics.Metrics
	tracer         trace.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithHooks appends dependent-domain hooks. They run in the order given.
func WithHooks(hooks ...Hook) Option {
	return func(s *Service) {
		s.hooks = append(s.hooks, hooks...)
	}
}

func WithTaskQueue(q TaskQueue) Option {
	return func(s *Service) {
		s.tasks = q
	}
}

func WithNotifier(n Notifier) Option {
	return func(s *Service) {
		s.notifier = n
	}
}

func WithEmitter(e Emitter) Option {
	return func(s *Service) {
		s.emitter = e
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

// New constructs the engine. runner must cover both stores.
func New(exits ExitStore, members MemberStore, runner tx.Runner, opts ...Option) *Service {
	s := &Service{
		exits:   exits,
		members: members,
		runner:  runner,
		logger:  slog.Default(),
		tracer:  otel.Tracer("flock/exit"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateExit records an exit and moves the member to the matching inactive
// classification. A non-suggestion exit is refused while the member already
// has an ACTIVE exit record. A suggestion created while a non-suggestion exit
// is ACTIVE leaves the member's classification alone.
func (s *Service) CreateExit(ctx context.Context, req *models.CreateExitRequest) (*models.ExitRecord, error) {
	ctx, span := s.startSpan(ctx, "exit.create", req.ChurchID,
		attribute.Int64("member_id", int64(req.MemberID)))
	defer span.End()

	req.Normalize()
	now := requestcontext.Now(ctx)
	rec, err := models.NewExitRecord(req, now)
	if err != nil {
		return nil, s.fail(span, "create", err)
	}

	var m *member.Member
	err = s.runner.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		m, err = s.members.FindForUpdate(ctx, req.ChurchID, req.MemberID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeNotFound, "member not found")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load member")
		}

		if !req.IsSuggestion {
			active, err := s.exits.HasActive(ctx, req.ChurchID, req.MemberID)
			if err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to check existing exits")
			}
			if active {
				return dErrors.New(dErrors.CodeDuplicateActiveExit, "member already has an active exit record")
			}
		}

		if err := s.exits.Create(ctx, rec); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return dErrors.New(dErrors.CodeDuplicateActiveExit, "member already has an active exit record")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to create exit record")
		}

		// a suggestion never overrides the classification of a non-suggestion exit
		governing, err := s.governingExit(ctx, rec.ChurchID, rec.MemberID)
		if err != nil {
			return err
		}
		if governing == nil || governing.ID == rec.ID {
			if err := s.members.MarkExited(ctx, rec.ChurchID, rec.MemberID, rec.ExitType.MemberStatus(), now); err != nil {
				return dErrors.Wrap(err, dErrors.CodeExitStatusUpdateFailed, "failed to update member status")
			}
			m.Status = rec.ExitType.MemberStatus()
			s.runHooks(ctx, phaseExit, models.NewLifecycleEvent(rec, req.CreatedBy))
		}

		return s.emitAudit(ctx, audit.Event{
			ChurchID: rec.ChurchID,
			ActorID:  req.CreatedBy,
			Action:   audit.ActionExitCreated,
			ExitID:   rec.ID,
			MemberID: rec.MemberID,
			Detail:   string(rec.ExitType),
		})
	})
	if err != nil {
		return nil, s.fail(span, "create", err)
	}

	s.logAudit(ctx, string(audit.ActionExitCreated),
		"church_id", rec.ChurchID.String(),
		"exit_id", rec.ID.String(),
		"member_id", rec.MemberID.String(),
		"exit_type", string(rec.ExitType),
		"user_id", req.CreatedBy.String())
	s.succeed("create")
	s.enqueueLifecycle(ctx, models.EventMemberExited, rec, m)
	return rec, nil
}

// UpdateExit edits an exit record. Changing the exit type of an ACTIVE record
// re-classifies the member in the same scope when that record governs it.
func (s *Service) UpdateExit(ctx context.Context, req *models.UpdateExitRequest) (*models.ExitRecord, error) {
	ctx, span := s.startSpan(ctx, "exit.update", req.ChurchID,
		attribute.Int64("exit_id", int64(req.ExitID)))
	defer span.End()

	if err := req.Validate(); err != nil {
		return nil, s.fail(span, "update", err)
	}
	now := requestcontext.Now(ctx)

	var rec *models.ExitRecord
	err := s.runner.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		rec, err = s.loadForUpdate(ctx, req.ChurchID, req.ExitID)
		if err != nil {
			return err
		}
		typeChanged, err := rec.ApplyUpdate(req, now)
		if err != nil {
			return err
		}
		if err := s.exits.Update(ctx, rec); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update exit record")
		}
		if typeChanged && rec.IsActive() {
			governing, err := s.governingExit(ctx, rec.ChurchID, rec.MemberID)
			if err != nil {
				return err
			}
			if governing != nil && governing.ID == rec.ID {
				if err := s.members.MarkExited(ctx, rec.ChurchID, rec.MemberID, rec.ExitType.MemberStatus(), now); err != nil {
					return dErrors.Wrap(err, dErrors.CodeExitStatusUpdateFailed, "failed to update member status")
				}
			}
		}
		return s.emitAudit(ctx, audit.Event{
			ChurchID: rec.ChurchID,
			ActorID:  req.UpdatedBy,
			Action:   audit.ActionExitUpdated,
			ExitID:   rec.ID,
			MemberID: rec.MemberID,
			Detail:   string(rec.ExitType),
		})
	})
	if err != nil {
		return nil, s.fail(span, "update", err)
	}

	s.logAudit(ctx, string(audit.ActionExitUpdated),
		"church_id", rec.ChurchID.String(),
		"exit_id", rec.ID.String(),
		"user_id", req.UpdatedBy.String())
	s.succeed("update")
	return rec, nil
}

func (s *Service) GetExit(ctx context.Context, churchID id.ChurchID, exitID id.ExitID) (*models.ExitRecord, error) {
	rec, err := s.exits.FindByID(ctx, churchID, exitID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "exit record not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load exit record")
	}
	return rec, nil
}

func (s *Service) ListExits(ctx context.Context, churchID id.ChurchID, filter models.ListFilter) (*models.ListResult, error) {
	filter.Normalize()
	exits, total, err := s.exits.List(ctx, churchID, filter)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list exit records")
	}
	if exits == nil {
		exits = []*models.ExitRecord{}
	}
	return &models.ListResult{Exits: exits, Total: total, Page: filter.Page, Limit: filter.Limit}, nil
}

// Statistics returns per-status and per-type totals plus exits dated within
// the last 30 days.
func (s *Service) Statistics(ctx context.Context, churchID id.ChurchID) (*models.Statistics, error) {
	now := requestcontext.Now(ctx)
	stats, err := s.exits.Statistics(ctx, churchID, now.Add(-statisticsWindow))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to compute exit statistics")
	}
	stats.GeneratedAt = now
	return stats, nil
}

func (s *Service) loadForUpdate(ctx context.Context, churchID id.ChurchID, exitID id.ExitID) (*models.ExitRecord, error) {
	rec, err := s.exits.FindForUpdate(ctx, churchID, exitID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "exit record not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load exit record")
	}
	return rec, nil
}

func (s *Service) emitAudit(ctx context.Context, event audit.Event) error {
	if s.auditPublisher == nil {
		return nil
	}
	if err := s.auditPublisher.Emit(ctx, event); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record audit event")
	}
	return nil
}

func (s *Service) logAudit(ctx context.Context, event string, attributes ...any) {
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		attributes = append(attributes, "request_id", requestID)
	}
	args := append(attributes, "event", event, "log_type", "audit")
	if s.logger != nil {
		s.logger.InfoContext(ctx, event, args...)
	}
}

func (s *Service) startSpan(ctx context.Context, name string, churchID id.ChurchID, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.Int64("church_id", int64(churchID)))
	return s.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// fail records err on the span and the transition metric and returns it.
func (s *Service) fail(span trace.Span, operation string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
	if s.metrics != nil {
		s.metrics.IncrementExitTransition(operation, string(dErrors.CodeOf(err)))
	}
	return err
}

func (s *Service) succeed(operation string) {
	if s.metrics != nil {
		s.metrics.IncrementExitTransition(operation, "ok")
	}
}
