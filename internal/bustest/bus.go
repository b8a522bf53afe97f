// Package bustest provides an in-memory domain.SignalBus for tests: topic
// fan-out over Go channels, with published payloads recorded per topic.
package bustest

import (
	"context"
	"strconv"
	"sync"

	"github.com/jacattac314/Titan-Finance/internal/domain"
)

// Bus is a process-local bus with the same fan-out semantics as the Redis
// implementation: every subscriber to a topic receives every message.
type Bus struct {
	mu          sync.Mutex
	subscribers map[string][]chan []byte
	published   map[string][][]byte
	streams     map[string][][]byte
}

// New creates an empty Bus.
func New() *Bus {
	return &Bus{
		subscribers: make(map[string][]chan []byte),
		published:   make(map[string][][]byte),
		streams:     make(map[string][][]byte),
	}
}

// Publish records the payload and fans it out to current subscribers.
func (b *Bus) Publish(_ context.Context, topic string, payload []byte) error {
	cp := make([]byte, len(payload))
	copy(cp, payload)

	b.mu.Lock()
	b.published[topic] = append(b.published[topic], cp)
	subs := make([]chan []byte, len(b.subscribers[topic]))
	copy(subs, b.subscribers[topic])
	b.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- cp:
		default:
			// Slow test subscriber; drop rather than deadlock.
		}
	}
	return nil
}

// Subscribe returns a buffered channel fed by future publishes. The channel
// closes when the context is cancelled.
func (b *Bus) Subscribe(ctx context.Context, topic string) (<-chan []byte, error) {
	ch := make(chan []byte, 256)

	b.mu.Lock()
	b.subscribers[topic] = append(b.subscribers[topic], ch)
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		subs := b.subscribers[topic]
		for i, c := range subs {
			if c == ch {
				b.subscribers[topic] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		b.mu.Unlock()
		close(ch)
	}()

	return ch, nil
}

// StreamAppend records the payload on the named stream.
func (b *Bus) StreamAppend(_ context.Context, stream string, payload []byte) error {
	cp := make([]byte, len(payload))
	copy(cp, payload)

	b.mu.Lock()
	b.streams[stream] = append(b.streams[stream], cp)
	b.mu.Unlock()
	return nil
}

// StreamRead returns all recorded stream entries (lastID/count are ignored;
// tests read everything).
func (b *Bus) StreamRead(_ context.Context, stream string, _ string, _ int) ([]domain.StreamMessage, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]domain.StreamMessage, 0, len(b.streams[stream]))
	for i, payload := range b.streams[stream] {
		out = append(out, domain.StreamMessage{ID: strconv.Itoa(i), Payload: payload})
	}
	return out, nil
}

// Published returns everything published on the topic, in order.
func (b *Bus) Published(topic string) [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([][]byte, len(b.published[topic]))
	copy(out, b.published[topic])
	return out
}

// Compile-time interface check.
var _ domain.SignalBus = (*Bus)(nil)
