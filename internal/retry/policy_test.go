package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func noSleep(recorded *[]time.Duration) func(context.Context, time.Duration) error {
	return func(_ context.Context, d time.Duration) error {
		*recorded = append(*recorded, d)
		return nil
	}
}

func TestPolicy_Backoff(t *testing.T) {
	t.Parallel()

	p := Policy{BaseDelay: 2 * time.Second, MaxDelay: 10 * time.Second}
	assert.Equal(t, 2*time.Second, p.Backoff(0))
	assert.Equal(t, 4*time.Second, p.Backoff(1))
	assert.Equal(t, 8*time.Second, p.Backoff(2))
	assert.Equal(t, 10*time.Second, p.Backoff(3))
	assert.Equal(t, 10*time.Second, p.Backoff(30))
}

func TestPolicy_RetriesUntilSuccess(t *testing.T) {
	t.Parallel()

	var waits []time.Duration
	p := Policy{MaxRetries: 3, BaseDelay: time.Second}.WithSleep(noSleep(&waits))

	calls := 0
	attempts, err := p.Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errBoom
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, waits)
}

func TestPolicy_ExhaustsRetries(t *testing.T) {
	t.Parallel()

	var waits []time.Duration
	p := Policy{MaxRetries: 3, BaseDelay: time.Millisecond}.WithSleep(noSleep(&waits))

	attempts, err := p.Do(context.Background(), func(context.Context) error { return errBoom })

	require.ErrorIs(t, err, errBoom)
	assert.Equal(t, 4, attempts)
	assert.Len(t, waits, 3)
}

func TestPolicy_StopsOnNonRetryable(t *testing.T) {
	t.Parallel()

	permanent := errors.New("permanent")
	var waits []time.Duration
	p := Policy{
		MaxRetries: 5,
		BaseDelay:  time.Millisecond,
		Retryable:  func(err error) bool { return !errors.Is(err, permanent) },
	}.WithSleep(noSleep(&waits))

	attempts, err := p.Do(context.Background(), func(context.Context) error { return permanent })

	require.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, attempts)
	assert.Empty(t, waits)
}

func TestPolicy_StopsWhenContextDone(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	p := Policy{MaxRetries: 5, BaseDelay: time.Hour}

	calls := 0
	attempts, err := p.Do(ctx, func(context.Context) error {
		calls++
		cancel()
		return errBoom
	})

	require.ErrorIs(t, err, errBoom)
	assert.Equal(t, 1, attempts)
	assert.Equal(t, 1, calls)
}
