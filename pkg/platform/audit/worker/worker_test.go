package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	audit "mfrid/pkg/platform/audit"
	"mfrid/pkg/platform/audit/store/memory"
)

type failingStore struct{ calls int }

func (s *failingStore) Append(context.Context, audit.Event) error {
	s.calls++
	return errors.New("sink down")
}

func (s *failingStore) ListRecent(context.Context, int) ([]audit.Event, error) { return nil, nil }

func TestWorkerDrainsUntilClosed(t *testing.T) {
	store := memory.NewInMemoryStore(0)
	inbox := make(chan audit.Event, 3)
	inbox <- audit.Event{ID: "1"}
	inbox <- audit.Event{ID: "2"}
	close(inbox)

	err := NewWorker(store, inbox, nil).Run(context.Background())
	require.NoError(t, err)

	events, _ := store.ListRecent(context.Background(), 0)
	require.Len(t, events, 2)
	assert.Equal(t, "1", events[0].ID)
}

func TestWorkerContinuesAfterStoreFailure(t *testing.T) {
	store := &failingStore{}
	inbox := make(chan audit.Event, 2)
	inbox <- audit.Event{ID: "1"}
	inbox <- audit.Event{ID: "2"}
	close(inbox)

	require.NoError(t, NewWorker(store, inbox, nil).Run(context.Background()))
	assert.Equal(t, 2, store.calls)
}

func TestWorkerStopsOnContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := NewWorker(memory.NewInMemoryStore(0), make(chan audit.Event), nil).Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
