package publisher

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	audit "mfrid/pkg/platform/audit"
	"mfrid/pkg/platform/audit/store/memory"
)

type countingDrops struct{ n atomic.Int64 }

func (c *countingDrops) IncrementAuditDropped() { c.n.Add(1) }

// blockingStore holds every Append until release is closed.
type blockingStore struct {
	*memory.InMemoryStore
	release chan struct{}
}

func (s *blockingStore) Append(ctx context.Context, e audit.Event) error {
	<-s.release
	return s.InMemoryStore.Append(ctx, e)
}

func TestPublisher_SyncMode(t *testing.T) {
	store := memory.NewInMemoryStore(0)
	pub := NewPublisher(store)
	defer pub.Close()

	err := pub.Emit(context.Background(), audit.Event{Action: audit.EventIdentityResolved, Decision: "success"})
	require.NoError(t, err)

	events, err := pub.List(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, audit.EventIdentityResolved, events[0].Action)
	assert.Equal(t, audit.CategoryCompliance, events[0].Category)
	assert.NotEmpty(t, events[0].ID)
}

func TestPublisher_AsyncMode(t *testing.T) {
	store := memory.NewInMemoryStore(0)
	pub := NewPublisher(store, WithAsyncBuffer(10))
	defer pub.Close()

	err := pub.Emit(context.Background(), audit.Event{Action: audit.EventResolutionFailed, Decision: "card_absent"})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		events, _ := pub.List(context.Background(), 10)
		return len(events) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestPublisher_AsyncDrainsOnClose(t *testing.T) {
	store := memory.NewInMemoryStore(0)
	pub := NewPublisher(store, WithAsyncBuffer(100))

	for range 10 {
		require.NoError(t, pub.Emit(context.Background(), audit.Event{Action: audit.EventIdentityResolved}))
	}

	pub.Close()

	events, err := store.ListRecent(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, events, 10, "all events should be drained on close")
}

func TestPublisher_BufferFull_DropsEvent(t *testing.T) {
	store := &blockingStore{InMemoryStore: memory.NewInMemoryStore(0), release: make(chan struct{})}
	drops := &countingDrops{}
	pub := NewPublisher(store, WithAsyncBuffer(1), WithDropCounter(drops))

	var (
		wg     sync.WaitGroup
		failed atomic.Int64
	)
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := pub.Emit(context.Background(), audit.Event{Action: audit.EventIdentityResolved}); errors.Is(err, ErrBufferFull) {
				failed.Add(1)
			}
		}()
	}
	wg.Wait()

	// One event is held by the worker and one sits in the queue.
	assert.GreaterOrEqual(t, failed.Load(), int64(8))
	assert.Equal(t, failed.Load(), drops.n.Load())

	close(store.release)
	pub.Close()
}

func TestPublisher_SetsTimestamp(t *testing.T) {
	store := memory.NewInMemoryStore(0)
	pub := NewPublisher(store)

	before := time.Now()
	require.NoError(t, pub.Emit(context.Background(), audit.Event{Action: audit.EventIdentityResolved}))
	after := time.Now()

	events, err := pub.List(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.False(t, events[0].Timestamp.Before(before.UTC().Add(-time.Millisecond)))
	assert.False(t, events[0].Timestamp.After(after.UTC().Add(time.Millisecond)))
}

func TestPublisher_PreservesExistingFields(t *testing.T) {
	store := memory.NewInMemoryStore(0)
	pub := NewPublisher(store)

	customTime := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, pub.Emit(context.Background(), audit.Event{
		ID:        "evt-1",
		Action:    audit.EventRateLimitExceeded,
		Category:  audit.CategoryOperations,
		Timestamp: customTime,
	}))

	events, err := pub.List(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "evt-1", events[0].ID)
	assert.Equal(t, customTime, events[0].Timestamp)
	assert.Equal(t, audit.CategoryOperations, events[0].Category)
}

func TestPublisher_CancelledContextStillQueues(t *testing.T) {
	store := memory.NewInMemoryStore(0)
	pub := NewPublisher(store, WithAsyncBuffer(1))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, pub.Emit(ctx, audit.Event{Action: audit.EventIdentityResolved}))
	pub.Close()

	events, err := store.ListRecent(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, audit.EventIdentityResolved, events[0].Action)
}

func TestPublisher_EmitAfterCloseWritesThrough(t *testing.T) {
	store := memory.NewInMemoryStore(0)
	pub := NewPublisher(store, WithAsyncBuffer(1))
	pub.Close()
	pub.Close()

	require.NoError(t, pub.Emit(context.Background(), audit.Event{Action: audit.EventIdentityResolved}))

	events, err := store.ListRecent(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}
