// Package reporter ships link events to Kafka for fleet-wide monitoring.
package reporter

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/compress"

	"firestige.xyz/swctl/internal/eventbus"
	"firestige.xyz/swctl/internal/log"
	"firestige.xyz/swctl/internal/metrics"
)

const (
	defaultBatchSize    = 16
	defaultBatchTimeout = 100 * time.Millisecond
	defaultCompression  = "snappy"
	defaultMaxAttempts  = 3
	defaultWriteTimeout = 5 * time.Second
)

type Config struct {
	Brokers      []string      `mapstructure:"brokers"`
	Topic        string        `mapstructure:"topic"`
	BatchSize    int           `mapstructure:"batch_size"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
	Compression  string        `mapstructure:"compression"` // none|gzip|snappy|lz4
	MaxAttempts  int           `mapstructure:"max_attempts"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// message is the wire format of one link event.
//
//	{"version":"v1","node":"edge-7","chip":"ksz8795","interface":"lan2",
//	 "port":2,"up":true,"speed_mbps":100,"duplex":"full","time":"..."}
type message struct {
	Version   string    `json:"version"`
	Node      string    `json:"node"`
	Chip      string    `json:"chip"`
	Interface string    `json:"interface"`
	Port      int       `json:"port,omitempty"`
	Up        bool      `json:"up"`
	SpeedMbps int       `json:"speed_mbps,omitempty"`
	Duplex    string    `json:"duplex,omitempty"`
	Time      time.Time `json:"time"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// LinkReporter publishes link events, keyed by interface so one
// interface's transitions land on one partition in order.
type LinkReporter struct {
	node    string
	chip    string
	timeout time.Duration
	writer  messageWriter

	reported atomic.Uint64
	failed   atomic.Uint64
}

func New(cfg Config, node, chip string) (*LinkReporter, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("brokers is required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("topic is required")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = defaultBatchTimeout
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.Compression == "" {
		cfg.Compression = defaultCompression
	}

	wc := kafka.WriterConfig{
		Brokers:      cfg.Brokers,
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    cfg.BatchSize,
		BatchTimeout: cfg.BatchTimeout,
		MaxAttempts:  cfg.MaxAttempts,
	}
	switch cfg.Compression {
	case "none":
	case "gzip":
		wc.CompressionCodec = compress.Gzip.Codec()
	case "snappy":
		wc.CompressionCodec = compress.Snappy.Codec()
	case "lz4":
		wc.CompressionCodec = compress.Lz4.Codec()
	default:
		return nil, fmt.Errorf("invalid compression type: %s", cfg.Compression)
	}

	r := newWithWriter(kafka.NewWriter(wc), node, chip, cfg.WriteTimeout)
	log.GetLogger().WithFields(map[string]interface{}{
		"brokers": cfg.Brokers,
		"topic":   cfg.Topic,
	}).Info("kafka link reporter configured")
	return r, nil
}

func newWithWriter(w messageWriter, node, chip string, timeout time.Duration) *LinkReporter {
	if timeout <= 0 {
		timeout = defaultWriteTimeout
	}
	return &LinkReporter{node: node, chip: chip, timeout: timeout, writer: w}
}

// Report writes ev synchronously. It is subscribed to the event bus, so
// a slow broker delays only the partition carrying ev.
func (r *LinkReporter) Report(ev eventbus.LinkEvent) error {
	m := message{
		Version:   "v1",
		Node:      r.node,
		Chip:      r.chip,
		Interface: ev.Interface,
		Port:      int(ev.Port),
		Up:        ev.Up,
		Time:      ev.Time,
	}
	if ev.Up {
		m.SpeedMbps = int(ev.Speed)
		m.Duplex = ev.Duplex.String()
	}
	value, err := json.Marshal(m)
	if err != nil {
		r.fail("serialize")
		return fmt.Errorf("serialize link event: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	err = r.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.Interface),
		Value: value,
		Time:  ev.Time,
	})
	if err != nil {
		r.fail("write")
		return fmt.Errorf("kafka write: %w", err)
	}
	r.reported.Add(1)
	return nil
}

func (r *LinkReporter) fail(kind string) {
	r.failed.Add(1)
	metrics.ReporterErrorsTotal.WithLabelValues("kafka", kind).Inc()
}

// Stats returns the number of reported and failed events.
func (r *LinkReporter) Stats() (reported, failed uint64) {
	return r.reported.Load(), r.failed.Load()
}

// Close flushes pending messages.
func (r *LinkReporter) Close() error {
	reported, failed := r.Stats()
	log.GetLogger().WithFields(map[string]interface{}{
		"reported": reported,
		"failed":   failed,
	}).Info("kafka link reporter stopped")
	return r.writer.Close()
}
