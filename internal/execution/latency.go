package execution

import (
	"context"
	"math/rand"
	"time"
)

// LatencySimulator mimics network and processing delay on simulated fills.
// The delay is a cooperative sleep: while one fill waits, the engine's other
// activities keep running, so a slow strategy cannot monopolise the loop.
type LatencySimulator struct {
	MinMs int
	MaxMs int
	rng   *rand.Rand
}

// NewLatencySimulator creates a LatencySimulator with a uniform delay window
// (defaults 50–200 ms). rng may be nil for a time-seeded source.
func NewLatencySimulator(minMs, maxMs int, rng *rand.Rand) *LatencySimulator {
	if minMs <= 0 {
		minMs = 50
	}
	if maxMs < minMs {
		maxMs = 200
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}
	return &LatencySimulator{MinMs: minMs, MaxMs: maxMs, rng: rng}
}

// Delay sleeps for a uniformly random duration inside the window, returning
// early with the context's error on cancellation.
func (l *LatencySimulator) Delay(ctx context.Context) error {
	ms := l.MinMs
	if l.MaxMs > l.MinMs {
		ms += l.rng.Intn(l.MaxMs - l.MinMs + 1)
	}

	timer := time.NewTimer(time.Duration(ms) * time.Millisecond)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
