// Package notify publishes auction lifecycle messages for downstream
// consumers (bots, dashboards, alerting). Kafka is the production driver;
// stdio emits NDJSON for piping into other tools.
package notify

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

const (
	DriverKafka = "kafka"
	DriverStdio = "stdio"

	DefaultTopic = "auction.lifecycle.v1"
)

var ErrInvalidConfig = errors.New("notify: invalid config")

// Message is one lifecycle notification. Phase names use the resolver's
// string forms; amounts are decimal strings.
type Message struct {
	Type            string    `json:"type"`
	ContractAddress string    `json:"contractAddress"`
	FromPhase       string    `json:"fromPhase,omitempty"`
	ToPhase         string    `json:"toPhase,omitempty"`
	CommitEnd       uint64    `json:"commitEnd,omitempty"`
	RevealEnd       uint64    `json:"revealEnd,omitempty"`
	HighestBid      string    `json:"highestBid,omitempty"`
	Winner          string    `json:"winner,omitempty"`
	At              time.Time `json:"at"`
}

// Producer publishes lifecycle messages.
type Producer interface {
	Publish(ctx context.Context, msg Message) error
	Close() error
}

type Config struct {
	Driver string
	Topic  string

	// Kafka fields.
	Brokers      []string
	BatchTimeout time.Duration

	// Stdio fields.
	Writer io.Writer
}

func NewProducer(cfg Config) (Producer, error) {
	if strings.TrimSpace(cfg.Topic) == "" {
		cfg.Topic = DefaultTopic
	}
	switch normalizeDriver(cfg.Driver) {
	case DriverKafka:
		return newKafkaProducer(cfg)
	case DriverStdio:
		return newStdioProducer(cfg), nil
	default:
		return nil, fmt.Errorf("%w: unsupported driver %q", ErrInvalidConfig, cfg.Driver)
	}
}

func normalizeDriver(v string) string {
	v = strings.TrimSpace(strings.ToLower(v))
	if v == "" {
		return DriverStdio
	}
	return v
}

func encode(msg Message) ([]byte, error) {
	if strings.TrimSpace(msg.Type) == "" {
		return nil, fmt.Errorf("%w: message type is required", ErrInvalidConfig)
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("notify: encode message: %w", err)
	}
	return payload, nil
}

type kafkaProducer struct {
	writer *kafka.Writer
}

func newKafkaProducer(cfg Config) (Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("%w: kafka driver requires brokers", ErrInvalidConfig)
	}
	batchTimeout := cfg.BatchTimeout
	if batchTimeout <= 0 {
		batchTimeout = time.Second
	}
	return &kafkaProducer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.Topic,
			Balancer:     &kafka.Hash{},
			BatchTimeout: batchTimeout,
			RequiredAcks: kafka.RequireAll,
		},
	}, nil
}

func (p *kafkaProducer) Publish(ctx context.Context, msg Message) error {
	payload, err := encode(msg)
	if err != nil {
		return err
	}
	// Key by contract so per-auction ordering survives partitioning.
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(msg.ContractAddress),
		Value: payload,
	})
	if err != nil {
		return fmt.Errorf("notify: kafka publish: %w", err)
	}
	return nil
}

func (p *kafkaProducer) Close() error {
	return p.writer.Close()
}

type stdioProducer struct {
	mu    sync.Mutex
	w     *bufio.Writer
	topic string
}

func newStdioProducer(cfg Config) Producer {
	out := cfg.Writer
	if out == nil {
		out = os.Stdout
	}
	return &stdioProducer{w: bufio.NewWriter(out), topic: cfg.Topic}
}

func (p *stdioProducer) Publish(_ context.Context, msg Message) error {
	payload, err := encode(msg)
	if err != nil {
		return err
	}
	envelope, err := json.Marshal(struct {
		Topic   string          `json:"topic"`
		Payload json.RawMessage `json:"payload"`
	}{Topic: p.topic, Payload: payload})
	if err != nil {
		return fmt.Errorf("notify: encode envelope: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, err := p.w.Write(append(envelope, '\n')); err != nil {
		return fmt.Errorf("notify: stdio publish: %w", err)
	}
	return p.w.Flush()
}

func (p *stdioProducer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.w.Flush()
}
