package command

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"firestige.xyz/swctl/internal/config"
	"firestige.xyz/swctl/internal/log"
)

// KafkaCommand is the wire format for commands received via Kafka.
//
// Example JSON:
//
//	{
//	  "version":    "v1",
//	  "target":     "edge-01",
//	  "command":    "fdb_add",
//	  "timestamp":  "2024-01-15T10:30:00Z",
//	  "request_id": "req-abc-123",
//	  "payload":    {"mac": "01:00:5e:00:00:fb", "ports": "1,2"}
//	}
type KafkaCommand struct {
	Version   string          `json:"version"`
	Target    string          `json:"target"` // node hostname or "*" for broadcast
	Command   string          `json:"command"`
	Timestamp time.Time       `json:"timestamp"`
	RequestID string          `json:"request_id"`
	Payload   json.RawMessage `json:"payload"`
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaCommandConsumer consumes commands from Kafka and dispatches to handler.
type KafkaCommandConsumer struct {
	cfg      config.CommandKafkaConfig
	hostname string
	reader   messageReader
	handler  *CommandHandler
	now      func() time.Time
}

// NewKafkaCommandConsumer creates a consumer in the configured group.
func NewKafkaCommandConsumer(cfg config.CommandKafkaConfig, hostname string, handler *CommandHandler) (*KafkaCommandConsumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("brokers is required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("topic is required")
	}
	if cfg.GroupID == "" {
		return nil, fmt.Errorf("group_id is required")
	}

	startOffset := kafka.LastOffset
	if cfg.AutoOffsetReset == "earliest" {
		startOffset = kafka.FirstOffset
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.Topic,
		GroupID:        cfg.GroupID,
		StartOffset:    startOffset,
		MinBytes:       1,
		MaxBytes:       1 << 20,
		CommitInterval: time.Second,
		MaxWait:        time.Second,
	})
	return newConsumerWithReader(cfg, hostname, handler, reader), nil
}

func newConsumerWithReader(cfg config.CommandKafkaConfig, hostname string, handler *CommandHandler, r messageReader) *KafkaCommandConsumer {
	if cfg.CommandTTL <= 0 {
		cfg.CommandTTL = 5 * time.Minute
	}
	return &KafkaCommandConsumer{
		cfg:      cfg,
		hostname: hostname,
		reader:   r,
		handler:  handler,
		now:      time.Now,
	}
}

// Start consumes until ctx is cancelled. Fetch errors are retried after a
// pause; every fetched message is committed whether or not it applied.
func (c *KafkaCommandConsumer) Start(ctx context.Context) error {
	logger := log.GetLogger().WithFields(map[string]interface{}{
		"topic":    c.cfg.Topic,
		"group_id": c.cfg.GroupID,
	})
	logger.Info("kafka command consumer started")

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				logger.Info("kafka command consumer stopped")
				return ctx.Err()
			}
			logger.WithError(err).Error("failed to fetch kafka message")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(5 * time.Second):
				continue
			}
		}

		if err := c.processMessage(ctx, msg); err != nil {
			logger.WithError(err).WithField("offset", msg.Offset).Warn("failed to process command")
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			logger.WithError(err).Error("failed to commit message")
		}
	}
}

func (c *KafkaCommandConsumer) processMessage(ctx context.Context, msg kafka.Message) error {
	var kc KafkaCommand
	if err := json.Unmarshal(msg.Value, &kc); err != nil {
		return fmt.Errorf("failed to parse kafka command: %w", err)
	}
	logger := log.GetLogger().WithFields(map[string]interface{}{
		"command":    kc.Command,
		"request_id": kc.RequestID,
	})

	if kc.Target != "*" && kc.Target != "" && kc.Target != c.hostname {
		logger.WithField("target", kc.Target).Debug("skipping command not targeting this node")
		return nil
	}
	if !kc.Timestamp.IsZero() && c.now().Sub(kc.Timestamp) > c.cfg.CommandTTL {
		logger.WithField("timestamp", kc.Timestamp).Warn("skipping stale command")
		return nil
	}
	// Remote peers must not stop the daemon.
	if kc.Command == MethodDaemonShutdown {
		return fmt.Errorf("command %q is local only", kc.Command)
	}

	resp := c.handler.Handle(ctx, Command{Method: kc.Command, Params: kc.Payload, ID: kc.RequestID})
	if resp.Error != nil {
		return resp.Error
	}
	logger.Info("remote command applied")
	return nil
}

// Stop closes the reader. It is safe to call more than once.
func (c *KafkaCommandConsumer) Stop() error {
	if c.reader == nil {
		return nil
	}
	reader := c.reader
	c.reader = nil
	if err := reader.Close(); err != nil {
		return fmt.Errorf("failed to close kafka reader: %w", err)
	}
	return nil
}
