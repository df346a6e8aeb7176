// Package service implements the notification dispatcher: quota checks,
// persistence, real-time fan-out and relay to external channel sinks.
package service

import (
	"context"
	"errors"
	"log/slog"

	"flock/internal/notification/models"
	"flock/internal/platform/metrics"
	"flock/internal/platform/taskqueue"
	"flock/internal/realtime"
	id "flock/pkg/domain"
	dErrors "flock/pkg/domain-errors"
	"flock/pkg/platform/sentinel"
	"flock/pkg/requestcontext"
)

type Service struct {
	store   Store
	prefs   PreferenceStore
	limiter RateLimiter
	emitter Emitter
	relay   Relay
	tasks   TaskQueue
	logger  *slog.Logger
	metrics *metrics.Metrics
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

func WithRateLimiter(limiter RateLimiter) Option {
	return func(s *Service) {
		s.limiter = limiter
	}
}

func WithEmitter(emitter Emitter) Option {
	return func(s *Service) {
		s.emitter = emitter
	}
}

func WithRelay(relay Relay) Option {
	return func(s *Service) {
		s.relay = relay
	}
}

// WithTaskQueue moves relay publishes onto q. Without a queue they run inline.
func WithTaskQueue(q TaskQueue) Option {
	return func(s *Service) {
		s.tasks = q
	}
}

func New(store Store, prefs PreferenceStore, opts ...Option) *Service {
	s := &Service{
		store:  store,
		prefs:  prefs,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create persists a notification and delivers it. Unless opts.Force is set
// the user quota (when a user is targeted) and then the church quota are
// charged first. Delivery failures never fail the call.
func (s *Service) Create(ctx context.Context, req *models.CreateRequest, opts models.CreateOptions) (*models.Notification, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if !opts.Force {
		if err := s.checkQuota(ctx, req); err != nil {
			return nil, err
		}
	}

	n := models.NewNotification(req, requestcontext.Now(ctx))
	if err := s.store.Create(ctx, n); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create notification")
	}
	if s.metrics != nil {
		s.metrics.IncrementNotificationsCreated(string(n.Channel))
	}

	s.deliver(ctx, n)
	return n, nil
}

func (s *Service) checkQuota(ctx context.Context, req *models.CreateRequest) error {
	if s.limiter == nil {
		return nil
	}
	var userID id.UserID
	if req.UserID != nil {
		userID = *req.UserID
	}
	err := s.limiter.CheckNotification(ctx, req.ChurchID, userID)
	if err == nil {
		return nil
	}
	if dErrors.HasCode(err, dErrors.CodeRateLimitUser) || dErrors.HasCode(err, dErrors.CodeRateLimitChurch) {
		s.logger.WarnContext(ctx, "notification rate limited",
			"church_id", req.ChurchID.String(),
			"user_id", userID.String(),
			"error", err,
		)
		return err
	}
	// Quota store outages fail open.
	s.logger.ErrorContext(ctx, "notification quota check failed",
		"church_id", req.ChurchID.String(),
		"error", err,
	)
	return nil
}

// deliver fans the notification out to its single target room and hands
// external channels to the relay.
func (s *Service) deliver(ctx context.Context, n *models.Notification) {
	if s.emitter != nil {
		s.emitter.Emit(targetRoom(n), models.EventNotification, n)
		s.observeDelivery("realtime", nil)
	}
	if !n.Channel.IsExternal() || s.relay == nil {
		return
	}
	if s.tasks == nil {
		s.publish(ctx, n)
		return
	}
	relayed := *n
	ok := s.tasks.Enqueue(taskqueue.Task{
		Name: "notification.relay",
		Run: func(ctx context.Context) error {
			s.publish(ctx, &relayed)
			return nil
		},
	})
	if !ok {
		s.observeDelivery("relay", errRelayDropped)
		s.logger.WarnContext(ctx, "notification relay dropped",
			"church_id", n.ChurchID.String(),
			"notification_id", n.ID.String(),
			"channel", string(n.Channel),
		)
	}
}

var errRelayDropped = errors.New("relay task dropped")

func (s *Service) publish(ctx context.Context, n *models.Notification) {
	err := s.relay.Publish(ctx, n)
	s.observeDelivery("relay", err)
	if err != nil {
		s.logger.WarnContext(ctx, "notification relay failed",
			"church_id", n.ChurchID.String(),
			"notification_id", n.ID.String(),
			"channel", string(n.Channel),
			"error", err,
		)
	}
}

func targetRoom(n *models.Notification) string {
	switch n.Target() {
	case models.TargetUser:
		return realtime.UserRoom(*n.UserID)
	case models.TargetMember:
		return realtime.MemberRoom(*n.MemberID)
	default:
		return realtime.ChurchRoom(n.ChurchID)
	}
}

// List returns the caller's visible notifications restricted to the channels
// their preference enables. With no channel enabled the store is not queried.
func (s *Service) List(ctx context.Context, churchID id.ChurchID, userID id.UserID, filter models.ListFilter) (*models.ListResult, error) {
	pref, err := s.GetPreference(ctx, churchID, userID)
	if err != nil {
		return nil, err
	}
	filter.Channels = pref.AllowedChannels()
	if len(filter.Channels) == 0 {
		return &models.ListResult{Total: 0, Notifications: []*models.Notification{}}, nil
	}

	filter.Normalize()
	rows, total, err := s.store.List(ctx, churchID, userID, filter)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list notifications")
	}
	if rows == nil {
		rows = []*models.Notification{}
	}
	return &models.ListResult{Total: total, Notifications: rows}, nil
}

// Get returns one notification if the caller may see it.
func (s *Service) Get(ctx context.Context, churchID id.ChurchID, userID id.UserID, notificationID id.NotificationID) (*models.Notification, error) {
	n, err := s.store.FindByID(ctx, churchID, notificationID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "notification not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load notification")
	}
	if !n.VisibleTo(userID) {
		return nil, dErrors.New(dErrors.CodeNotFound, "notification not found")
	}
	return n, nil
}

// MarkRead marks one notification read and tells the caller's other sessions.
func (s *Service) MarkRead(ctx context.Context, churchID id.ChurchID, userID id.UserID, notificationID id.NotificationID) (*models.Notification, error) {
	n, err := s.Get(ctx, churchID, userID, notificationID)
	if err != nil {
		return nil, err
	}
	if n.MarkRead(requestcontext.Now(ctx)) {
		if err := s.store.MarkRead(ctx, churchID, notificationID, *n.ReadAt); err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return nil, dErrors.New(dErrors.CodeNotFound, "notification not found")
			}
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to mark notification read")
		}
	}
	if s.emitter != nil {
		s.emitter.Emit(realtime.UserRoom(userID), models.EventNotificationRead, models.ReadEvent{ID: n.ID})
	}
	return n, nil
}

// MarkAllRead marks every unread notification the caller can see and returns
// the ids it changed.
func (s *Service) MarkAllRead(ctx context.Context, churchID id.ChurchID, userID id.UserID) ([]id.NotificationID, error) {
	ids, err := s.store.MarkAllRead(ctx, churchID, userID, requestcontext.Now(ctx))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to mark notifications read")
	}
	if ids == nil {
		ids = []id.NotificationID{}
	}
	if s.emitter != nil {
		s.emitter.Emit(realtime.UserRoom(userID), models.EventNotificationsAllRead, models.AllReadEvent{IDs: ids})
	}
	return ids, nil
}

func (s *Service) Delete(ctx context.Context, churchID id.ChurchID, userID id.UserID, notificationID id.NotificationID) error {
	if _, err := s.Get(ctx, churchID, userID, notificationID); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, churchID, notificationID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "notification not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete notification")
	}
	return nil
}

// GetPreference returns the saved preference or the default one.
func (s *Service) GetPreference(ctx context.Context, churchID id.ChurchID, userID id.UserID) (*models.Preference, error) {
	pref, err := s.prefs.Get(ctx, churchID, userID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return models.DefaultPreference(churchID, userID), nil
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load notification preference")
	}
	return pref, nil
}

// UpdatePreference overlays channel toggles on the current preference.
func (s *Service) UpdatePreference(ctx context.Context, churchID id.ChurchID, userID id.UserID, channels map[models.Channel]bool) (*models.Preference, error) {
	if len(channels) == 0 {
		return nil, dErrors.New(dErrors.CodeInvalidPayload, "channels are required")
	}
	pref, err := s.GetPreference(ctx, churchID, userID)
	if err != nil {
		return nil, err
	}
	if err := pref.Merge(channels, requestcontext.Now(ctx)); err != nil {
		return nil, err
	}
	if err := s.prefs.Save(ctx, pref); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save notification preference")
	}
	return pref, nil
}

func (s *Service) observeDelivery(sink string, err error) {
	if s.metrics == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	s.metrics.IncrementNotificationDelivery(sink, result)
}
