package eventbus

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/swctl/internal/core"
)

func TestBus_OrderPerKey(t *testing.T) {
	bus := NewInMemoryEventBus(4, 128)

	var mu sync.Mutex
	got := map[string][]int{}
	require.NoError(t, bus.Subscribe("t", func(e *Event) error {
		mu.Lock()
		got[e.Key] = append(got[e.Key], e.Payload.(int))
		mu.Unlock()
		return nil
	}))

	for i := 0; i < 20; i++ {
		for _, k := range []string{"sw0", "sw1", "sw2"} {
			require.NoError(t, bus.Publish(&Event{Topic: "t", Key: k, Payload: i}))
		}
	}
	require.NoError(t, bus.Close())

	for _, k := range []string{"sw0", "sw1", "sw2"} {
		require.Len(t, got[k], 20, k)
		for i, v := range got[k] {
			assert.Equal(t, i, v)
		}
	}
	stats := bus.GetStats()
	assert.Equal(t, int64(60), stats.PublishedCount)
	assert.Equal(t, int64(60), stats.ProcessedCount)
	assert.Equal(t, 4, stats.PartitionCount)
}

func TestBus_MultipleHandlersAndFailures(t *testing.T) {
	bus := NewInMemoryEventBus(1, 8)
	var calls []string
	require.NoError(t, bus.Subscribe("t", func(*Event) error {
		calls = append(calls, "a")
		return errors.New("boom")
	}))
	require.NoError(t, bus.Subscribe("t", func(*Event) error {
		calls = append(calls, "b")
		return nil
	}))

	require.NoError(t, bus.Publish(&Event{Topic: "t"}))
	require.NoError(t, bus.Publish(&Event{Topic: "unrouted"}))
	require.NoError(t, bus.Close())

	assert.Equal(t, []string{"a", "b"}, calls)
	assert.Equal(t, int64(1), bus.GetStats().FailedCount)
}

func TestBus_Closed(t *testing.T) {
	bus := NewInMemoryEventBus(2, 8)
	require.NoError(t, bus.Close())
	require.NoError(t, bus.Close())

	assert.Error(t, bus.Publish(&Event{Topic: "t"}))
	assert.Error(t, bus.Subscribe("t", func(*Event) error { return nil }))
}

func TestBus_QueueFull(t *testing.T) {
	bus := NewInMemoryEventBus(1, 1)
	release := make(chan struct{})
	require.NoError(t, bus.Subscribe("t", func(*Event) error {
		<-release
		return nil
	}))

	// first event is taken by the consumer, second fills the queue
	require.NoError(t, bus.Publish(&Event{Topic: "t"}))
	require.Eventually(t, func() bool { return bus.GetStats().QueuedCount[0] == 0 }, time.Second, time.Millisecond)
	require.NoError(t, bus.Publish(&Event{Topic: "t"}))

	err := bus.Publish(&Event{Topic: "t"})
	assert.ErrorContains(t, err, "queue is full")

	close(release)
	require.NoError(t, bus.Close())
}

func TestLinkBus(t *testing.T) {
	bus := NewInMemoryEventBus(2, 8)
	links := NewLinkBus(bus)

	var (
		mu  sync.Mutex
		got []LinkEvent
	)
	require.NoError(t, links.SubscribeLink(func(ev LinkEvent) error {
		mu.Lock()
		got = append(got, ev)
		mu.Unlock()
		return nil
	}))

	for p := core.PortID(1); p <= 3; p++ {
		require.NoError(t, links.PublishLink(LinkEvent{Interface: fmt.Sprintf("sw0p%d", p), Port: p, State: core.LinkUp}))
	}
	require.NoError(t, bus.Close())

	require.Len(t, got, 3)
	for _, ev := range got {
		assert.True(t, ev.Up)
	}
}
