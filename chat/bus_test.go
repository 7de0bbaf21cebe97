package chat

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusPreservesPerProducerOrder(t *testing.T) {
	bus := NewBus()
	producers := []Platform{PlatformYouTube, PlatformTwitch, PlatformKick, PlatformRelay}
	const perProducer = 500

	var wg sync.WaitGroup
	for _, p := range producers {
		wg.Add(1)
		go func(p Platform) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				bus.Push(Message{Author: string(p), Body: fmt.Sprint(i), Platform: p})
			}
		}(p)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	next := map[Platform]int{}
	for n := 0; n < perProducer*len(producers); n++ {
		m, err := bus.Take(ctx)
		require.NoError(t, err)
		require.Equal(t, fmt.Sprint(next[m.Platform]), m.Body, "out of order for %s", m.Platform)
		next[m.Platform]++
	}
	wg.Wait()

	for _, p := range producers {
		assert.Equal(t, perProducer, next[p])
	}
	assert.Equal(t, 0, bus.Len())
}

func TestBusTakeBlocksUntilPush(t *testing.T) {
	bus := NewBus()
	got := make(chan Message, 1)
	go func() {
		m, err := bus.Take(context.Background())
		if err == nil {
			got <- m
		}
	}()

	select {
	case <-got:
		t.Fatal("Take returned before any push")
	case <-time.After(20 * time.Millisecond):
	}

	bus.Push(Message{Author: "alice", Body: "hi", Platform: PlatformRelay})
	select {
	case m := <-got:
		assert.Equal(t, "alice", m.Author)
	case <-time.After(time.Second):
		t.Fatal("Take did not wake up")
	}
}

func TestBusTakeHonoursContext(t *testing.T) {
	bus := NewBus()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := bus.Take(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	_, ok := bus.TryTake()
	assert.False(t, ok)
}

func TestConsumeRendersUntilCancelled(t *testing.T) {
	bus := NewBus()
	ctx, cancel := context.WithCancel(context.Background())

	var mu sync.Mutex
	var lines []string
	done := make(chan struct{})
	go func() {
		Consume(ctx, bus, RendererFunc(func(m Message) {
			mu.Lock()
			lines = append(lines, m.String())
			mu.Unlock()
		}))
		close(done)
	}()

	bus.Push(Message{Author: "alice", Body: "hi", Platform: PlatformYouTube})
	bus.Push(Message{Author: "bob", Body: "yo", Platform: PlatformTwitch})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(lines) == 2
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done

	// accepted, never delivered
	bus.Push(Message{Author: "late", Body: "x", Platform: PlatformKick})
	assert.Equal(t, 1, bus.Len())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"[YT] <alice> hi", "[TW] <bob> yo"}, lines)
}
