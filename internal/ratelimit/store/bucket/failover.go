package bucket

import (
	"context"
	"log/slog"
	"time"

	"flock/internal/ratelimit/metrics"
	"flock/internal/ratelimit/models"
	"flock/internal/ratelimit/ports"
	"flock/pkg/platform/circuit"
)

// FailoverBucketStore routes checks to a primary store and answers from an
// in-memory fallback while the primary is failing. The circuit opens after
// consecutive primary errors and closes once the primary recovers.
type FailoverBucketStore struct {
	primary  ports.BucketStore
	fallback ports.BucketStore
	breaker  *circuit.Breaker
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

type FailoverOption func(*FailoverBucketStore)

func WithFailoverLogger(logger *slog.Logger) FailoverOption {
	return func(s *FailoverBucketStore) {
		s.logger = logger
	}
}

func WithFailoverMetrics(m *metrics.Metrics) FailoverOption {
	return func(s *FailoverBucketStore) {
		s.metrics = m
	}
}

func WithBreaker(b *circuit.Breaker) FailoverOption {
	return func(s *FailoverBucketStore) {
		if b != nil {
			s.breaker = b
		}
	}
}

func NewFailover(primary, fallback ports.BucketStore, opts ...FailoverOption) *FailoverBucketStore {
	s := &FailoverBucketStore{
		primary:  primary,
		fallback: fallback,
		breaker:  circuit.New("ratelimit-buckets"),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Degraded reports whether checks are currently served by the fallback.
func (s *FailoverBucketStore) Degraded() bool {
	return s.breaker.IsOpen()
}

func (s *FailoverBucketStore) Allow(ctx context.Context, key string, limit int, window time.Duration) (*models.RateLimitResult, error) {
	return s.AllowN(ctx, key, 1, limit, window)
}

func (s *FailoverBucketStore) AllowN(ctx context.Context, key string, cost, limit int, window time.Duration) (*models.RateLimitResult, error) {
	result, err := s.primary.AllowN(ctx, key, cost, limit, window)
	if err != nil {
		_, change := s.breaker.RecordFailure()
		s.onChange(ctx, change)
		if s.metrics != nil {
			s.metrics.IncrementStoreFailures()
		}
		s.logger.WarnContext(ctx, "rate limit store unavailable, using fallback",
			"key", key,
			"error", err,
		)
		return s.fallback.AllowN(ctx, key, cost, limit, window)
	}

	usePrimary, change := s.breaker.RecordSuccess()
	s.onChange(ctx, change)
	if !usePrimary {
		return s.fallback.AllowN(ctx, key, cost, limit, window)
	}
	return result, nil
}

func (s *FailoverBucketStore) Reset(ctx context.Context, key string) error {
	_ = s.fallback.Reset(ctx, key)
	return s.primary.Reset(ctx, key)
}

func (s *FailoverBucketStore) GetCurrentCount(ctx context.Context, key string) (int, error) {
	if s.breaker.IsOpen() {
		return s.fallback.GetCurrentCount(ctx, key)
	}
	return s.primary.GetCurrentCount(ctx, key)
}

func (s *FailoverBucketStore) onChange(ctx context.Context, change circuit.StateChange) {
	switch {
	case change.Opened:
		s.logger.ErrorContext(ctx, "rate limit circuit opened", "breaker", s.breaker.Name())
		if s.metrics != nil {
			s.metrics.SetDegraded(true)
		}
	case change.Closed:
		s.logger.InfoContext(ctx, "rate limit circuit closed", "breaker", s.breaker.Name())
		if s.metrics != nil {
			s.metrics.SetDegraded(false)
		}
	}
}
