//go:build integration

package bucket_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"flock/internal/ratelimit/store/bucket"
	"flock/pkg/testutil/containers"
)

type RedisBucketStoreSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *bucket.RedisBucketStore
	now   atomic.Int64
}

func TestRedisBucketStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisBucketStoreSuite))
}

func (s *RedisBucketStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.redis = mgr.GetRedis(s.T())
	s.store = bucket.NewRedis(s.redis.Client.Client, bucket.WithRedisClock(func() time.Time {
		return time.UnixMilli(s.now.Load())
	}))
}

func (s *RedisBucketStoreSuite) SetupTest() {
	s.now.Store(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC).UnixMilli())
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisBucketStoreSuite) TestSlidingWindow() {
	ctx := context.Background()
	key := "notify:user:7:3"

	for i := range 3 {
		result, err := s.store.Allow(ctx, key, 3, time.Minute)
		s.Require().NoError(err)
		s.True(result.Allowed)
		s.Equal(2-i, result.Remaining)
	}

	denied, err := s.store.Allow(ctx, key, 3, time.Minute)
	s.Require().NoError(err)
	s.False(denied.Allowed)
	s.Equal(60, denied.RetryAfter)

	s.now.Add((time.Minute + time.Second).Milliseconds())
	result, err := s.store.Allow(ctx, key, 3, time.Minute)
	s.Require().NoError(err)
	s.True(result.Allowed)
}

func (s *RedisBucketStoreSuite) TestAllowNDeniedConsumesNothing() {
	ctx := context.Background()
	key := "notify:church:7"

	_, err := s.store.AllowN(ctx, key, 4, 5, time.Minute)
	s.Require().NoError(err)

	result, err := s.store.AllowN(ctx, key, 2, 5, time.Minute)
	s.Require().NoError(err)
	s.False(result.Allowed)

	count, err := s.store.GetCurrentCount(ctx, key)
	s.Require().NoError(err)
	s.Equal(4, count)

	s.Require().NoError(s.store.Reset(ctx, key))
	count, err = s.store.GetCurrentCount(ctx, key)
	s.Require().NoError(err)
	s.Zero(count)
}

// TestConcurrentChecks verifies the script is atomic across clients.
func (s *RedisBucketStoreSuite) TestConcurrentChecks() {
	ctx := context.Background()
	var wg sync.WaitGroup
	var allowed atomic.Int32

	for range 50 {
		wg.Go(func() {
			result, err := s.store.Allow(ctx, "notify:church:9", 20, time.Minute)
			s.NoError(err)
			if err == nil && result.Allowed {
				allowed.Add(1)
			}
		})
	}
	wg.Wait()
	s.Equal(int32(20), allowed.Load())
}

func (s *RedisBucketStoreSuite) TestClientHealth() {
	s.NoError(s.redis.Client.Health(context.Background()))
}
