package bucket

import (
	"container/list"
	"context"
	"hash/fnv"
	"math"
	"sync"
	"time"

	"flock/internal/ratelimit/models"
)

const (
	defaultShardCount         = 32
	defaultMaxBucketsPerShard = 10_000
)

// InMemoryBucketStore implements BucketStore with sharded sliding windows.
// Each shard evicts its least recently used bucket once it holds
// maxPerShard keys. Counters are local to the process.
type InMemoryBucketStore struct {
	shards      []*shard
	maxPerShard int
	now         func() time.Time
}

type shard struct {
	mu      sync.Mutex
	buckets map[string]*list.Element
	lru     *list.List
}

type bucketEntry struct {
	key    string
	window *slidingWindow
}

// slidingWindow tracks request timestamps, oldest first.
type slidingWindow struct {
	timestamps []time.Time
	window     time.Duration
}

type Option func(*InMemoryBucketStore)

// WithMaxBucketsPerShard bounds memory; values <= 0 are ignored.
func WithMaxBucketsPerShard(n int) Option {
	return func(s *InMemoryBucketStore) {
		if n > 0 {
			s.maxPerShard = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *InMemoryBucketStore) {
		if now != nil {
			s.now = now
		}
	}
}

func New(opts ...Option) *InMemoryBucketStore {
	s := &InMemoryBucketStore{
		maxPerShard: defaultMaxBucketsPerShard,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.shards = make([]*shard, defaultShardCount)
	for i := range s.shards {
		s.shards[i] = &shard{buckets: make(map[string]*list.Element), lru: list.New()}
	}
	return s
}

// Allow checks if a request is allowed and increments the counter.
func (s *InMemoryBucketStore) Allow(ctx context.Context, key string, limit int, window time.Duration) (*models.RateLimitResult, error) {
	return s.AllowN(ctx, key, 1, limit, window)
}

// AllowN consumes cost tokens when they all fit in the window; otherwise
// nothing is consumed.
func (s *InMemoryBucketStore) AllowN(_ context.Context, key string, cost int, limit int, window time.Duration) (*models.RateLimitResult, error) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	now := s.now()
	sw := s.getOrCreate(sh, key, window)
	sw.cleanup(now)
	count := len(sw.timestamps)

	if count+cost <= limit {
		for range cost {
			sw.timestamps = append(sw.timestamps, now)
		}
		return &models.RateLimitResult{
			Allowed:   true,
			Limit:     limit,
			Remaining: limit - len(sw.timestamps),
			ResetAt:   sw.timestamps[0].Add(window),
		}, nil
	}

	resetAt := now.Add(window)
	if count > 0 {
		resetAt = sw.timestamps[0].Add(window)
	}
	return &models.RateLimitResult{
		Allowed:    false,
		Limit:      limit,
		Remaining:  0,
		ResetAt:    resetAt,
		RetryAfter: retryAfterSeconds(now, resetAt),
	}, nil
}

// Reset clears the rate limit counter for a key.
func (s *InMemoryBucketStore) Reset(_ context.Context, key string) error {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if el, ok := sh.buckets[key]; ok {
		sh.lru.Remove(el)
		delete(sh.buckets, key)
	}
	return nil
}

// GetCurrentCount returns the current request count for a key.
func (s *InMemoryBucketStore) GetCurrentCount(_ context.Context, key string) (int, error) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	el, ok := sh.buckets[key]
	if !ok {
		return 0, nil
	}
	sw := el.Value.(*bucketEntry).window
	sw.cleanup(s.now())
	return len(sw.timestamps), nil
}

// Stats reports the number of live buckets in total and per shard.
func (s *InMemoryBucketStore) Stats() (total int, perShard []int) {
	perShard = make([]int, len(s.shards))
	for i, sh := range s.shards {
		sh.mu.Lock()
		perShard[i] = len(sh.buckets)
		sh.mu.Unlock()
		total += perShard[i]
	}
	return total, perShard
}

func (s *InMemoryBucketStore) shardFor(key string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return s.shards[h.Sum32()%uint32(len(s.shards))]
}

// getOrCreate must be called with sh.mu held.
func (s *InMemoryBucketStore) getOrCreate(sh *shard, key string, window time.Duration) *slidingWindow {
	if el, ok := sh.buckets[key]; ok {
		sh.lru.MoveToFront(el)
		sw := el.Value.(*bucketEntry).window
		sw.window = window
		return sw
	}
	for sh.lru.Len() >= s.maxPerShard {
		oldest := sh.lru.Back()
		sh.lru.Remove(oldest)
		delete(sh.buckets, oldest.Value.(*bucketEntry).key)
	}
	sw := &slidingWindow{window: window}
	sh.buckets[key] = sh.lru.PushFront(&bucketEntry{key: key, window: sw})
	return sw
}

// cleanup drops timestamps that fell out of the window.
func (sw *slidingWindow) cleanup(now time.Time) {
	cutoff := now.Add(-sw.window)
	i := 0
	for ; i < len(sw.timestamps); i++ {
		if sw.timestamps[i].After(cutoff) {
			break
		}
	}
	sw.timestamps = sw.timestamps[i:]
}

func retryAfterSeconds(now, resetAt time.Time) int {
	secs := int(math.Ceil(resetAt.Sub(now).Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}
