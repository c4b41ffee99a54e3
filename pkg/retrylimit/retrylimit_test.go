package retrylimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type statusErr int

func (s statusErr) Error() string   { return "remote error" }
func (s statusErr) StatusCode() int { return int(s) }

func TestAdaptiveLimiterAdjustment(t *testing.T) {
	lim := NewAdaptiveLimiter(10, 1, 50, 1, 0.5)
	assert.Equal(t, 10.0, lim.CurrentLimit())

	lim.RateLimited()
	assert.Equal(t, 5.0, lim.CurrentLimit())

	// Successes right after an error do not raise the limit.
	lim.Success()
	assert.Equal(t, 5.0, lim.CurrentLimit())
}

func TestAdaptiveLimiterBounds(t *testing.T) {
	lim := NewAdaptiveLimiter(2, 1, 4, 10, 0.1)

	lim.RateLimited()
	assert.Equal(t, 1.0, lim.CurrentLimit(), "limit never drops below the floor")

	lim.lastError = lim.lastError.Add(-time.Minute)
	lim.Success()
	assert.Equal(t, 4.0, lim.CurrentLimit(), "limit never exceeds the ceiling")
}

func TestWithRetryMax(t *testing.T) {
	t.Run("succeeds after transient failures", func(t *testing.T) {
		calls := 0
		err := WithRetryMax(context.Background(), func() error {
			calls++
			if calls < 3 {
				return errors.New("transient")
			}
			return nil
		}, nil, 5)
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		calls := 0
		err := WithRetryMax(context.Background(), func() error {
			calls++
			return errors.New("permanent")
		}, nil, 2)
		require.Error(t, err)
		assert.Equal(t, 2, calls)
	})

	t.Run("fatal errors stop immediately", func(t *testing.T) {
		calls := 0
		boom := errors.New("boom")
		err := WithRetryMax(context.Background(), func() error {
			calls++
			return &FatalError{Err: boom}
		}, nil, 5)
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 1, calls)
	})

	t.Run("pushback collapses the limit", func(t *testing.T) {
		lim := NewAdaptiveLimiter(10, 1, 50, 1, 0.5)
		_ = WithRetryMax(context.Background(), func() error {
			return statusErr(429)
		}, lim, 2)
		assert.Equal(t, 2.5, lim.CurrentLimit())
	})
}

func TestIsPushback(t *testing.T) {
	assert.True(t, isPushback(statusErr(429)))
	assert.True(t, isPushback(statusErr(503)))
	assert.False(t, isPushback(statusErr(404)))
	assert.False(t, isPushback(errors.New("plain")))
}
