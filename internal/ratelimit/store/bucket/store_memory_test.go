package bucket

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

const (
	testBurst = 3
	testRate  = 1.0
)

type InMemoryBucketStoreSuite struct {
	suite.Suite
	store *InMemoryBucketStore
	clock time.Time
	ctx   context.Context
}

func TestInMemoryBucketStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryBucketStoreSuite))
}

func (s *InMemoryBucketStoreSuite) SetupTest() {
	s.clock = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s.store = NewInMemoryBucketStore(testRate, testBurst)
	s.store.now = func() time.Time { return s.clock }
	s.ctx = context.Background()
}

func (s *InMemoryBucketStoreSuite) TestAllow() {
	s.Run("first request allowed", func() {
		result, err := s.store.Allow(s.ctx, "ip:first")
		s.Require().NoError(err)
		s.True(result.Allowed)
		s.Equal(testBurst, result.Limit)
		s.Equal(testBurst-1, result.Remaining)
	})

	s.Run("burst exhausted then denied with retry hint", func() {
		for range testBurst {
			result, err := s.store.Allow(s.ctx, "ip:burst")
			s.Require().NoError(err)
			s.True(result.Allowed)
		}
		result, err := s.store.Allow(s.ctx, "ip:burst")
		s.Require().NoError(err)
		s.False(result.Allowed)
		s.Equal(0, result.Remaining)
		s.Equal(1, result.RetryAfter)
	})

	s.Run("keys are independent", func() {
		for range testBurst + 1 {
			_, err := s.store.Allow(s.ctx, "ip:noisy")
			s.Require().NoError(err)
		}
		result, err := s.store.Allow(s.ctx, "ip:quiet")
		s.Require().NoError(err)
		s.True(result.Allowed)
	})
}

func (s *InMemoryBucketStoreSuite) TestRefill() {
	for range testBurst {
		_, err := s.store.Allow(s.ctx, "ip:refill")
		s.Require().NoError(err)
	}
	denied, err := s.store.Allow(s.ctx, "ip:refill")
	s.Require().NoError(err)
	s.False(denied.Allowed)

	s.clock = s.clock.Add(time.Second)

	allowed, err := s.store.Allow(s.ctx, "ip:refill")
	s.Require().NoError(err)
	s.True(allowed.Allowed)
}

func (s *InMemoryBucketStoreSuite) TestSweep() {
	_, err := s.store.Allow(s.ctx, "ip:old")
	s.Require().NoError(err)
	s.clock = s.clock.Add(10 * time.Minute)
	_, err = s.store.Allow(s.ctx, "ip:new")
	s.Require().NoError(err)

	removed := s.store.Sweep(5 * time.Minute)

	s.Equal(1, removed)
	s.Equal(1, s.store.Len())
}

func (s *InMemoryBucketStoreSuite) TestConcurrentAllowNeverExceedsBurst() {
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := s.store.Allow(s.ctx, "ip:concurrent")
			require.NoError(s.T(), err)
			if result.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	s.Equal(testBurst, allowed)
}

func TestRunSweeperStopsOnCancel(t *testing.T) {
	store := NewInMemoryBucketStore(1, 1)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- store.RunSweeper(ctx, time.Millisecond) }()

	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
