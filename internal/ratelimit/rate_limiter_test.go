package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilLimiterNeverBlocks(t *testing.T) {
	rl := NewRateLimiter(0, 5)
	require.Nil(t, rl)

	assert.True(t, rl.Allow())
	assert.NoError(t, rl.Wait(context.Background()))
}

func TestBurstThenThrottle(t *testing.T) {
	rl := NewRateLimiter(60, 2)

	assert.True(t, rl.Allow())
	assert.True(t, rl.Allow())
	assert.False(t, rl.Allow())
}

func TestWaitHonoursContext(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	require.True(t, rl.Allow())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	assert.Error(t, rl.Wait(ctx))
}
