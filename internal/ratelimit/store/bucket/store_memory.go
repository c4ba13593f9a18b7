package bucket

import (
	"context"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"mfrid/internal/ratelimit/models"
)

type entry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// InMemoryBucketStore keeps one token bucket per key. Card reads happen on a
// single workstation, so a process-local store is sufficient.
type InMemoryBucketStore struct {
	mu      sync.Mutex
	buckets map[string]*entry
	limit   rate.Limit
	burst   int
	now     func() time.Time
}

// NewInMemoryBucketStore creates a store that refills perSecond tokens per
// second up to burst.
func NewInMemoryBucketStore(perSecond float64, burst int) *InMemoryBucketStore {
	if burst < 1 {
		burst = 1
	}
	return &InMemoryBucketStore{
		buckets: make(map[string]*entry),
		limit:   rate.Limit(perSecond),
		burst:   burst,
		now:     time.Now,
	}
}

// Allow takes one token from key's bucket.
func (s *InMemoryBucketStore) Allow(_ context.Context, key string) (*models.RateLimitResult, error) {
	now := s.now()

	s.mu.Lock()
	e, ok := s.buckets[key]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(s.limit, s.burst)}
		s.buckets[key] = e
	}
	e.lastAccess = now
	s.mu.Unlock()

	res := &models.RateLimitResult{Limit: s.burst}
	r := e.limiter.ReserveN(now, 1)
	if !r.OK() {
		res.RetryAfter = s.retryAfter(0)
		return res, nil
	}
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		res.RetryAfter = s.retryAfter(delay)
		return res, nil
	}

	res.Allowed = true
	res.Remaining = int(math.Max(0, math.Floor(e.limiter.TokensAt(now))))
	return res, nil
}

func (s *InMemoryBucketStore) retryAfter(delay time.Duration) int {
	if delay <= 0 {
		if s.limit <= 0 {
			return 60
		}
		delay = time.Duration(float64(time.Second) / float64(s.limit))
	}
	secs := int(math.Ceil(delay.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return secs
}

// Len reports how many buckets are tracked.
func (s *InMemoryBucketStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buckets)
}

// Sweep drops buckets idle for longer than ttl.
func (s *InMemoryBucketStore) Sweep(ttl time.Duration) int {
	cutoff := s.now().Add(-ttl)
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for key, e := range s.buckets {
		if e.lastAccess.Before(cutoff) {
			delete(s.buckets, key)
			removed++
		}
	}
	return removed
}

// RunSweeper sweeps every interval until ctx is done.
func (s *InMemoryBucketStore) RunSweeper(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.Sweep(2 * interval)
		}
	}
}
