package execution

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLatencyDelayWithinWindow(t *testing.T) {
	l := NewLatencySimulator(10, 30, rand.New(rand.NewSource(5)))

	start := time.Now()
	require.NoError(t, l.Delay(context.Background()))
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, 10*time.Millisecond)
	// Generous upper bound for scheduler jitter.
	assert.Less(t, elapsed, 500*time.Millisecond)
}

func TestLatencyDelayHonoursCancellation(t *testing.T) {
	l := NewLatencySimulator(5_000, 5_000, rand.New(rand.NewSource(5)))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	err := l.Delay(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second, "cancellation must interrupt the sleep")
}

func TestLatencyDefaults(t *testing.T) {
	l := NewLatencySimulator(0, 0, nil)
	assert.Equal(t, 50, l.MinMs)
	assert.Equal(t, 200, l.MaxMs)
}
