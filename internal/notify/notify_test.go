package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestStdioProducer_EmitsNDJSON(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	p, err := NewProducer(Config{Driver: DriverStdio, Writer: &buf})
	if err != nil {
		t.Fatalf("NewProducer: %v", err)
	}
	defer p.Close()

	at := time.Unix(1_700_000_123, 0).UTC()
	msgs := []Message{
		{Type: "phase.transition", ContractAddress: "0xabc", FromPhase: "commit", ToPhase: "reveal", CommitEnd: 1_700_000_000, RevealEnd: 1_700_000_600, At: at},
		{Type: "auction.settled", ContractAddress: "0xabc", Winner: "0xdef", HighestBid: "100000", At: at},
	}
	for _, m := range msgs {
		if err := p.Publish(context.Background(), m); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
	for i, line := range lines {
		var envelope struct {
			Topic   string  `json:"topic"`
			Payload Message `json:"payload"`
		}
		if err := json.Unmarshal([]byte(line), &envelope); err != nil {
			t.Fatalf("line %d not valid JSON: %v", i, err)
		}
		if envelope.Topic != DefaultTopic {
			t.Fatalf("topic: got %q, want %q", envelope.Topic, DefaultTopic)
		}
		if envelope.Payload.Type != msgs[i].Type {
			t.Fatalf("line %d type: got %q, want %q", i, envelope.Payload.Type, msgs[i].Type)
		}
	}
}

func TestStdioProducer_RejectsUntypedMessage(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	p, err := NewProducer(Config{Writer: &buf})
	if err != nil {
		t.Fatalf("NewProducer: %v", err)
	}
	defer p.Close()

	if err := p.Publish(context.Background(), Message{ContractAddress: "0xabc"}); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("got %v, want ErrInvalidConfig", err)
	}
	if buf.Len() != 0 {
		t.Fatalf("rejected message still wrote %q", buf.String())
	}
}

func TestNewProducer_DriverSelection(t *testing.T) {
	t.Parallel()

	if _, err := NewProducer(Config{Driver: "rabbitmq"}); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("unknown driver: got %v", err)
	}
	if _, err := NewProducer(Config{Driver: DriverKafka}); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("kafka without brokers: got %v", err)
	}
	p, err := NewProducer(Config{Driver: " Kafka ", Brokers: []string{"localhost:9092"}})
	if err != nil {
		t.Fatalf("kafka with brokers: %v", err)
	}
	p.Close()
}
