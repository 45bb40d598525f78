package event_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/oxy-hq/oxy/internal/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSourceChildAppendsPath(t *testing.T) {
	bus := event.New(8)
	root := bus.Root()
	child := root.Child("workflow").Child("task-a")

	assert.Empty(t, root.Path())
	assert.Equal(t, []string{"workflow", "task-a"}, child.Path())
}

func TestChildDoesNotMutateParent(t *testing.T) {
	bus := event.New(8)
	root := bus.Root().Child("a")
	_ = root.Child("b")
	_ = root.Child("c")

	assert.Equal(t, []string{"a"}, root.Path())
}

func TestPublishDeliversToAllSubscribers(t *testing.T) {
	bus := event.New(8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var gotA, gotB []string

	bus.Subscribe(ctx, event.SubscriberFunc(func(_ context.Context, ev event.Event) {
		mu.Lock()
		defer mu.Unlock()
		if ev.Variant == event.VariantStarted {
			gotA = append(gotA, ev.Started.Name)
		}
	}))
	bus.Subscribe(ctx, event.SubscriberFunc(func(_ context.Context, ev event.Event) {
		mu.Lock()
		defer mu.Unlock()
		if ev.Variant == event.VariantStarted {
			gotB = append(gotB, ev.Started.Name)
		}
	}))

	src := bus.Root().Child("workflow")
	src.WriteStarted("daily-report", nil)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(gotA) == 1 && len(gotB) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	bus := event.New(8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	count := 0
	unsubscribe := bus.Subscribe(ctx, event.SubscriberFunc(func(_ context.Context, _ event.Event) {
		mu.Lock()
		defer mu.Unlock()
		count++
	}))

	src := bus.Root()
	src.WriteUsage(event.Usage{InputTokens: 1})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return count == 1
	}, time.Second, 5*time.Millisecond)

	unsubscribe()
	src.WriteUsage(event.Usage{InputTokens: 2})
	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, count)
}

func TestPublishDropsOldestWhenQueueFull(t *testing.T) {
	bus := event.New(1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	block := make(chan struct{})
	var mu sync.Mutex
	var received []int

	bus.Subscribe(ctx, event.SubscriberFunc(func(_ context.Context, ev event.Event) {
		<-block
		mu.Lock()
		defer mu.Unlock()
		received = append(received, int(ev.Chunk.Delta[0]))
	}))

	src := bus.Root()
	for i := 0; i < 5; i++ {
		src.WriteChunk(event.Chunk{Delta: string(rune('0' + i))})
	}
	close(block)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) >= 1 && received[len(received)-1] == int('4')
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.LessOrEqual(t, len(received), 2, "with a queue depth of 1, only the in-flight event and the newest one survive")
}
