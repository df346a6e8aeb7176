package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"flock/internal/ratelimit/models"
	"flock/internal/ratelimit/ports/mocks"
	"flock/internal/ratelimit/store/bucket"
	id "flock/pkg/domain"
	dErrors "flock/pkg/domain-errors"
)

type LimiterSuite struct {
	suite.Suite
	buckets *bucket.InMemoryBucketStore
	limiter *Limiter
	ctx     context.Context
}

func TestLimiterSuite(t *testing.T) {
	suite.Run(t, new(LimiterSuite))
}

func (s *LimiterSuite) SetupTest() {
	s.buckets = bucket.New()
	limiter, err := New(s.buckets,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithLimits(models.NotificationLimits{
			User:   models.Limit{RequestsPerWindow: 2, Window: time.Minute},
			Church: models.Limit{RequestsPerWindow: 3, Window: time.Minute},
		}),
	)
	s.Require().NoError(err)
	s.limiter = limiter
	s.ctx = context.Background()
}

func (s *LimiterSuite) TestNewRequiresStore() {
	_, err := New(nil)
	s.Error(err)
}

func (s *LimiterSuite) TestDefaults() {
	limiter, err := New(s.buckets, WithLimits(models.NotificationLimits{}))
	s.Require().NoError(err)
	s.Equal(models.DefaultNotificationLimits(), limiter.Limits())
}

func (s *LimiterSuite) TestUserQuota() {
	s.Require().NoError(s.limiter.CheckNotification(s.ctx, 7, 3))
	s.Require().NoError(s.limiter.CheckNotification(s.ctx, 7, 3))

	err := s.limiter.CheckNotification(s.ctx, 7, 3)
	s.True(dErrors.HasCode(err, dErrors.CodeRateLimitUser))

	s.Run("other users keep their own bucket", func() {
		s.NoError(s.limiter.CheckNotification(s.ctx, 7, 4))
	})
}

func (s *LimiterSuite) TestChurchQuota() {
	for user := range 3 {
		s.Require().NoError(s.limiter.CheckNotification(s.ctx, 7, id.UserID(user+1)))
	}

	err := s.limiter.CheckNotification(s.ctx, 7, 99)
	s.True(dErrors.HasCode(err, dErrors.CodeRateLimitChurch))

	s.Run("user token was consumed before the church check", func() {
		count, err := s.buckets.GetCurrentCount(s.ctx, models.NotificationUserKey(7, 99))
		s.Require().NoError(err)
		s.Equal(1, count)
	})

	s.Run("other churches are unaffected", func() {
		s.NoError(s.limiter.CheckNotification(s.ctx, 8, 1))
	})
}

func (s *LimiterSuite) TestChurchBroadcastSkipsUserBucket() {
	s.Require().NoError(s.limiter.CheckNotification(s.ctx, 7, 0))

	count, err := s.buckets.GetCurrentCount(s.ctx, models.NotificationUserKey(7, 0))
	s.Require().NoError(err)
	s.Zero(count)

	count, err = s.buckets.GetCurrentCount(s.ctx, models.NotificationChurchKey(7))
	s.Require().NoError(err)
	s.Equal(1, count)
}

func (s *LimiterSuite) TestStoreErrorIsInternal() {
	ctrl := gomock.NewController(s.T())
	store := mocks.NewMockBucketStore(ctrl)
	store.EXPECT().
		Allow(gomock.Any(), "notify:church:7", 300, time.Minute).
		Return(nil, errors.New("redis down"))

	limiter, err := New(store)
	s.Require().NoError(err)

	err = limiter.CheckNotification(s.ctx, 7, 0)
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
}
