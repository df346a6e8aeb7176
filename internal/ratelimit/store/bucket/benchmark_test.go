package bucket

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"flock/internal/ratelimit/models"
	id "flock/pkg/domain"
)

func BenchmarkAllowN(b *testing.B) {
	store := New()
	ctx := context.Background()

	for b.Loop() {
		_, _ = store.AllowN(ctx, "notify:church:1", 1, 1000, time.Minute)
	}
}

func BenchmarkAllowN_Parallel(b *testing.B) {
	store := New()
	ctx := context.Background()

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_, _ = store.AllowN(ctx, "notify:church:1", 1, 1000, time.Minute)
		}
	})
}

// BenchmarkAllowN_ManyUsers spreads load over per-user buckets.
func BenchmarkAllowN_ManyUsers(b *testing.B) {
	store := New()
	ctx := context.Background()
	var counter atomic.Int64

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			n := counter.Add(1)
			key := models.NotificationUserKey(id.ChurchID(n%50+1), id.UserID(n))
			_, _ = store.AllowN(ctx, key, 1, 30, time.Minute)
		}
	})
}

func BenchmarkShardDistribution(b *testing.B) {
	store := New()
	ctx := context.Background()

	for i := range 10000 {
		_, _ = store.AllowN(ctx, models.NotificationUserKey(1, id.UserID(i+1)), 1, 30, time.Minute)
	}

	total, perShard := store.Stats()
	var lo, hi int
	for i, count := range perShard {
		if i == 0 || count < lo {
			lo = count
		}
		if count > hi {
			hi = count
		}
	}
	b.Logf("buckets=%d min=%d max=%d", total, lo, hi)
}
