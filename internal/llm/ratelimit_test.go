package llm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiter(t *testing.T) {
	t.Run("burst then refill", func(t *testing.T) {
		rl := newRateLimiter(60)
		clock := time.Unix(0, 0)
		rl.now = func() time.Time { return clock }
		rl.last = clock

		for i := 0; i < 60; i++ {
			assert.Zero(t, rl.reserve(), "request %d should pass", i)
		}
		assert.Equal(t, time.Second, rl.reserve())

		clock = clock.Add(time.Second)
		assert.Zero(t, rl.reserve())
	})

	t.Run("never exceeds capacity", func(t *testing.T) {
		rl := newRateLimiter(2)
		clock := time.Unix(0, 0)
		rl.now = func() time.Time { return clock }
		rl.last = clock

		clock = clock.Add(time.Hour)
		assert.Zero(t, rl.reserve())
		assert.Zero(t, rl.reserve())
		assert.Positive(t, rl.reserve())
	})

	t.Run("context cancellation", func(t *testing.T) {
		rl := newRateLimiter(1)
		require.NoError(t, rl.wait(context.Background()))

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		err := rl.wait(ctx)
		require.Error(t, err)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("default rate", func(t *testing.T) {
		rl := newRateLimiter(0)
		assert.InDelta(t, 60.0, rl.capacity, 0.001)
	})
}
