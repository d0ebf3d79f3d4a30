// Package eventbus is an in-process publish/subscribe bus partitioned by
// key on a consistent hash ring.
package eventbus

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/serialx/hashring"

	"firestige.xyz/swctl/internal/log"
)

type EventBus interface {
	Publish(event *Event) error
	Subscribe(topic string, handler Handler) error
	Close() error
	GetStats() *Stats
}

type Stats struct {
	PublishedCount int64 `json:"published"`
	ProcessedCount int64 `json:"processed"`
	FailedCount    int64 `json:"failed"`
	PartitionCount int   `json:"partitions"`
	QueuedCount    []int `json:"queued"`
}

// InMemoryEventBus delivers events on one goroutine per partition.
type InMemoryEventBus struct {
	partitions     []*partition
	partitionNodes []string
	hashRing       *hashring.HashRing
	wg             sync.WaitGroup

	mu          sync.RWMutex
	subscribers map[string][]Handler
	closed      int32

	publishedCount int64
	processedCount int64
	failedCount    int64
}

func NewInMemoryEventBus(partitionCount, queueSize int) *InMemoryEventBus {
	if partitionCount <= 0 {
		partitionCount = 1
	}
	if queueSize <= 0 {
		queueSize = 64
	}
	bus := &InMemoryEventBus{
		subscribers:    make(map[string][]Handler),
		partitions:     make([]*partition, partitionCount),
		partitionNodes: make([]string, partitionCount),
	}

	for i := 0; i < partitionCount; i++ {
		bus.partitionNodes[i] = "partition-" + strconv.Itoa(i)
	}
	bus.hashRing = hashring.New(bus.partitionNodes)

	for i := 0; i < partitionCount; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		bus.partitions[i] = &partition{
			id:     i,
			queue:  make(chan *Event, queueSize),
			ctx:    ctx,
			cancel: cancel,
		}
		bus.wg.Add(1)
		go bus.runPartition(bus.partitions[i])
	}

	return bus
}

// Publish enqueues event without blocking. A full partition queue is an
// error; the event is dropped.
func (b *InMemoryEventBus) Publish(event *Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if atomic.LoadInt32(&b.closed) == 1 {
		return fmt.Errorf("event bus is closed")
	}

	id := b.getPartitionID(event.Key)
	select {
	case b.partitions[id].queue <- event:
		atomic.AddInt64(&b.publishedCount, 1)
		return nil
	default:
		return fmt.Errorf("partition %d queue is full", id)
	}
}

// Subscribe adds handler for topic. Several handlers may share a topic;
// they run in subscription order.
func (b *InMemoryEventBus) Subscribe(topic string, handler Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if atomic.LoadInt32(&b.closed) == 1 {
		return fmt.Errorf("event bus is closed")
	}
	b.subscribers[topic] = append(b.subscribers[topic], handler)

	log.GetLogger().Debugf("subscribed to topic %s", topic)
	return nil
}

// Close stops accepting events, drains the queued ones and waits for the
// partition goroutines to exit.
func (b *InMemoryEventBus) Close() error {
	b.mu.Lock()
	if !atomic.CompareAndSwapInt32(&b.closed, 0, 1) {
		b.mu.Unlock()
		return nil
	}
	for _, p := range b.partitions {
		close(p.queue)
	}
	b.mu.Unlock()

	b.wg.Wait()
	for _, p := range b.partitions {
		p.cancel()
	}
	log.GetLogger().Debug("event bus closed")
	return nil
}

func (b *InMemoryEventBus) GetStats() *Stats {
	stats := &Stats{
		PublishedCount: atomic.LoadInt64(&b.publishedCount),
		ProcessedCount: atomic.LoadInt64(&b.processedCount),
		FailedCount:    atomic.LoadInt64(&b.failedCount),
		PartitionCount: len(b.partitions),
		QueuedCount:    make([]int, len(b.partitions)),
	}
	for i, p := range b.partitions {
		stats.QueuedCount[i] = len(p.queue)
	}
	return stats
}

func (b *InMemoryEventBus) getPartitionID(key string) int {
	node, ok := b.hashRing.GetNode(key)
	if !ok {
		return 0
	}
	for i, n := range b.partitionNodes {
		if n == node {
			return i
		}
	}
	return 0
}

func (b *InMemoryEventBus) dispatch(event *Event) {
	b.mu.RLock()
	handlers := b.subscribers[event.Topic]
	b.mu.RUnlock()

	for _, h := range handlers {
		if err := h(event); err != nil {
			atomic.AddInt64(&b.failedCount, 1)
			log.GetLogger().WithError(err).Warnf("handler for topic %s failed", event.Topic)
			continue
		}
	}
	atomic.AddInt64(&b.processedCount, 1)
}

func (b *InMemoryEventBus) runPartition(p *partition) {
	defer b.wg.Done()
	for {
		select {
		case <-p.ctx.Done():
			return
		case event, ok := <-p.queue:
			if !ok {
				return
			}
			b.dispatch(event)
		}
	}
}
