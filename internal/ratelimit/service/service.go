// Package service enforces notification quotas over sliding-window buckets.
package service

import (
	"context"
	"errors"
	"log/slog"

	"flock/internal/ratelimit/metrics"
	"flock/internal/ratelimit/models"
	"flock/internal/ratelimit/ports"
	id "flock/pkg/domain"
	dErrors "flock/pkg/domain-errors"
	"flock/pkg/requestcontext"
)

type BucketStore = ports.BucketStore

type Limiter struct {
	buckets BucketStore
	limits  models.NotificationLimits
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Limiter)

func WithLogger(logger *slog.Logger) Option {
	return func(l *Limiter) {
		l.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Limiter) {
		l.metrics = m
	}
}

// WithLimits overrides the defaults; non-positive fields keep the default.
func WithLimits(limits models.NotificationLimits) Option {
	return func(l *Limiter) {
		if limits.User.RequestsPerWindow > 0 && limits.User.Window > 0 {
			l.limits.User = limits.User
		}
		if limits.Church.RequestsPerWindow > 0 && limits.Church.Window > 0 {
			l.limits.Church = limits.Church
		}
	}
}

func New(buckets BucketStore, opts ...Option) (*Limiter, error) {
	if buckets == nil {
		return nil, errors.New("buckets store is required")
	}
	l := &Limiter{
		buckets: buckets,
		limits:  models.DefaultNotificationLimits(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Limits returns the effective quotas.
func (l *Limiter) Limits() models.NotificationLimits {
	return l.limits
}

// CheckNotification consumes one token from the user bucket (when userID is
// set) and then one from the church bucket.
func (l *Limiter) CheckNotification(ctx context.Context, churchID id.ChurchID, userID id.UserID) error {
	if !userID.IsNil() {
		key := models.NotificationUserKey(churchID, userID)
		if err := l.check(ctx, key, "user", l.limits.User, dErrors.CodeRateLimitUser,
			"user notification rate limit exceeded"); err != nil {
			return err
		}
	}
	key := models.NotificationChurchKey(churchID)
	return l.check(ctx, key, "church", l.limits.Church, dErrors.CodeRateLimitChurch,
		"church notification rate limit exceeded")
}

func (l *Limiter) check(ctx context.Context, key, bucket string, limit models.Limit, code dErrors.Code, msg string) error {
	result, err := l.buckets.Allow(ctx, key, limit.RequestsPerWindow, limit.Window)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to check rate limit")
	}
	if l.metrics != nil {
		l.metrics.RecordCheck(bucket, result.Allowed)
	}
	if result.Allowed {
		return nil
	}
	l.logAudit(ctx, bucket+"_notification_rate_limit_exceeded",
		"key", key,
		"limit", limit.RequestsPerWindow,
		"window_seconds", int(limit.Window.Seconds()),
		"retry_after", result.RetryAfter,
	)
	return dErrors.New(code, msg)
}

func (l *Limiter) logAudit(ctx context.Context, event string, attributes ...any) {
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		attributes = append(attributes, "request_id", requestID)
	}
	args := append(attributes, "event", event, "log_type", "audit")
	if l.logger != nil {
		l.logger.WarnContext(ctx, event, args...)
	}
}
