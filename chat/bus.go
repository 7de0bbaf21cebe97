package chat

import (
	"context"
	"sync"

	"github.com/onnwee/chatter/telemetry"
)

// Bus is the unbounded multi-producer, single-consumer queue every adapter
// pushes into. Push never blocks and never drops, so a slow platform cannot
// hold up another one. Messages from one producer come out in push order.
type Bus struct {
	mu     sync.Mutex
	queue  []Message
	notify chan struct{}
}

func NewBus() *Bus {
	return &Bus{notify: make(chan struct{}, 1)}
}

// Push appends m and wakes a waiting Take.
func (b *Bus) Push(m Message) {
	b.mu.Lock()
	b.queue = append(b.queue, m)
	n := len(b.queue)
	b.mu.Unlock()
	telemetry.SetBusDepth(n)

	select {
	case b.notify <- struct{}{}:
	default:
	}
}

// TryTake removes the oldest message without waiting.
func (b *Bus) TryTake() (Message, bool) {
	b.mu.Lock()
	if len(b.queue) == 0 {
		b.mu.Unlock()
		return Message{}, false
	}
	m := b.queue[0]
	b.queue[0] = Message{}
	b.queue = b.queue[1:]
	if len(b.queue) == 0 {
		b.queue = nil
	}
	n := len(b.queue)
	b.mu.Unlock()
	telemetry.SetBusDepth(n)
	return m, true
}

// Take blocks until a message is available or ctx is done.
func (b *Bus) Take(ctx context.Context) (Message, error) {
	for {
		if m, ok := b.TryTake(); ok {
			return m, nil
		}
		select {
		case <-ctx.Done():
			return Message{}, ctx.Err()
		case <-b.notify:
		}
	}
}

// Len returns the number of queued messages.
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}
