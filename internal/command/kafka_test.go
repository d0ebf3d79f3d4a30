package command

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/swctl/internal/config"
	"firestige.xyz/swctl/internal/core"
)

// fakeReader serves queued messages, then blocks until ctx is done.
type fakeReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	committed []int64
	closed    bool
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.queue) > 0 {
		m := r.queue[0]
		r.queue = r.queue[1:]
		r.mu.Unlock()
		return m, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error {
	r.closed = true
	return nil
}

func message(t *testing.T, offset int64, kc KafkaCommand) kafka.Message {
	t.Helper()
	b, err := json.Marshal(kc)
	require.NoError(t, err)
	return kafka.Message{Offset: offset, Value: b}
}

func TestNewKafkaCommandConsumer_Validation(t *testing.T) {
	h := NewCommandHandler(&mockSwitch{}, "test")
	for name, cfg := range map[string]config.CommandKafkaConfig{
		"missing brokers":  {Topic: "t", GroupID: "g"},
		"missing topic":    {Brokers: []string{"k:9092"}, GroupID: "g"},
		"missing group_id": {Brokers: []string{"k:9092"}, Topic: "t"},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := NewKafkaCommandConsumer(cfg, "edge-01", h)
			assert.Error(t, err)
		})
	}

	c, err := NewKafkaCommandConsumer(config.CommandKafkaConfig{
		Brokers: []string{"k:9092"}, Topic: "t", GroupID: "g", AutoOffsetReset: "earliest",
	}, "edge-01", h)
	require.NoError(t, err)
	assert.NoError(t, c.Stop())
	assert.NoError(t, c.Stop())
}

func TestKafkaCommandConsumer_Dispatch(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	entry := core.FdbEntry{MAC: testMAC, DestPorts: core.MaskOf(1)}
	payload := json.RawMessage(`{"mac": "01:00:5e:00:00:fb", "ports": "1"}`)

	sw := &mockSwitch{}
	sw.On("AddStaticEntry", entry).Return(nil).Twice()
	h := NewCommandHandler(sw, "test")
	h.SetShutdownFunc(func() { t.Error("remote shutdown must be refused") })

	r := &fakeReader{queue: []kafka.Message{
		message(t, 1, KafkaCommand{Target: "edge-01", Command: MethodFdbAdd, Timestamp: now, Payload: payload}),
		message(t, 2, KafkaCommand{Target: "edge-02", Command: MethodFdbAdd, Timestamp: now, Payload: payload}),
		message(t, 3, KafkaCommand{Target: "*", Command: MethodFdbAdd, Payload: payload}),
		message(t, 4, KafkaCommand{Target: "edge-01", Command: MethodFdbAdd, Timestamp: now.Add(-time.Hour), Payload: payload}),
		message(t, 5, KafkaCommand{Target: "edge-01", Command: MethodDaemonShutdown, Timestamp: now}),
		{Offset: 6, Value: []byte("not json")},
	}}
	c := newConsumerWithReader(config.CommandKafkaConfig{Topic: "t", GroupID: "g"}, "edge-01", h, r)
	c.now = func() time.Time { return now }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx) }()

	require.Eventually(t, func() bool {
		r.mu.Lock()
		defer r.mu.Unlock()
		return len(r.committed) == 6
	}, 2*time.Second, 10*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	assert.Equal(t, []int64{1, 2, 3, 4, 5, 6}, r.committed)
	sw.AssertExpectations(t)

	require.NoError(t, c.Stop())
	assert.True(t, r.closed)
}
