package rate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGate_SpacesCalls(t *testing.T) {
	g := NewGate(40 * time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, g.Wait(ctx))
	}
	// primera inmediata, luego dos intervalos
	require.GreaterOrEqual(t, time.Since(start), 75*time.Millisecond)
	require.Equal(t, 40*time.Millisecond, g.Interval())
}

func TestGate_Disabled(t *testing.T) {
	g := NewGate(0)
	start := time.Now()
	for i := 0; i < 100; i++ {
		require.NoError(t, g.Wait(context.Background()))
	}
	require.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestGate_HonoursContext(t *testing.T) {
	g := NewGate(time.Hour)
	require.NoError(t, g.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := g.Wait(ctx)
	require.ErrorIs(t, err, ErrGateDeadline)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	canceled, cancel2 := context.WithCancel(context.Background())
	cancel2()
	require.ErrorIs(t, g.Wait(canceled), context.Canceled)
}

func TestMemoryLimiter_AllowsBurstThenBlocks(t *testing.T) {
	l := NewMemoryLimiter(3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		res, err := l.Allow(ctx, "1.2.3.4|/api/video")
		require.NoError(t, err)
		require.True(t, res.Allowed, "hit %d", i)
	}
	res, err := l.Allow(ctx, "1.2.3.4|/api/video")
	require.NoError(t, err)
	require.False(t, res.Allowed)
	require.Greater(t, res.RetryAfter, time.Duration(0))

	// otra key tiene su propio bucket
	res, err = l.Allow(ctx, "5.6.7.8|/api/video")
	require.NoError(t, err)
	require.True(t, res.Allowed)
}
