package circuit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBreakerStartsClosed(t *testing.T) {
	b := New("directory")
	assert.False(t, b.IsOpen())
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, "directory", b.Name())
	assert.True(t, b.Allow())
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	b := New("directory", WithFailureThreshold(3))

	for i := 0; i < 2; i++ {
		skip, change := b.RecordFailure()
		assert.False(t, skip)
		assert.False(t, change.Opened)
	}

	skip, change := b.RecordFailure()
	assert.True(t, skip)
	assert.True(t, change.Opened)
	assert.True(t, b.IsOpen())
	assert.Equal(t, "open", b.State().String())

	skip, change = b.RecordFailure()
	assert.True(t, skip)
	assert.False(t, change.Opened, "already open")
}

func TestBreakerSuccessClearsFailureRun(t *testing.T) {
	b := New("directory", WithFailureThreshold(3))

	b.RecordFailure()
	b.RecordFailure()
	ok, _ := b.RecordSuccess()
	assert.True(t, ok)

	b.RecordFailure()
	b.RecordFailure()
	assert.False(t, b.IsOpen())
	b.RecordFailure()
	assert.True(t, b.IsOpen())
}

func TestBreakerClosesAfterSuccessThreshold(t *testing.T) {
	b := New("directory", WithFailureThreshold(1), WithSuccessThreshold(2))
	b.RecordFailure()

	ok, change := b.RecordSuccess()
	assert.False(t, ok)
	assert.False(t, change.Closed)

	// a failure in between restarts the success run
	b.RecordFailure()
	b.RecordSuccess()
	assert.True(t, b.IsOpen())

	ok, change = b.RecordSuccess()
	assert.True(t, ok)
	assert.True(t, change.Closed)
	assert.False(t, b.IsOpen())
}

func TestBreakerAllowsOneTrialPerCooldown(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	b := New("directory",
		WithFailureThreshold(1),
		WithCooldown(10*time.Second),
		WithClock(func() time.Time { return now }),
	)
	b.RecordFailure()

	assert.False(t, b.Allow())

	now = now.Add(10 * time.Second)
	assert.True(t, b.Allow())
	assert.False(t, b.Allow(), "second caller waits for the next window")

	now = now.Add(10 * time.Second)
	assert.True(t, b.Allow())
}

func TestBreakerReset(t *testing.T) {
	b := New("directory", WithFailureThreshold(1))
	b.RecordFailure()
	assert.True(t, b.IsOpen())

	b.Reset()
	assert.False(t, b.IsOpen())
	assert.True(t, b.Allow())
}
