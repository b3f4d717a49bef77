package infra

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/osdi23p228/fabgw/pkg/gateway"
	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
)

// EventSink receives chaincode events read from the gateway.
type EventSink interface {
	Write(ctx context.Context, event *gateway.ChaincodeEvent) error
	Close() error
}

// JSONSink writes one JSON object per line.
type JSONSink struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func NewJSONSink(w io.Writer) *JSONSink {
	return &JSONSink{enc: json.NewEncoder(w)}
}

func (s *JSONSink) Write(_ context.Context, event *gateway.ChaincodeEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return errors.Wrap(s.enc.Encode(event), "fail to write event")
}

func (s *JSONSink) Close() error { return nil }

// messageWriter is the part of *kafka.Writer a KafkaSink needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes events to a topic, keyed by transaction id.
type KafkaSink struct {
	writer messageWriter
	topic  string
}

func NewKafkaSink(c KafkaConfig) (*KafkaSink, error) {
	if len(c.Brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	if c.Topic == "" {
		return nil, errors.New("kafka topic is required")
	}

	return &KafkaSink{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(c.Brokers...),
			Topic:        c.Topic,
			RequiredAcks: kafka.RequireOne,
			BatchTimeout: 10 * time.Millisecond,
		},
		topic: c.Topic,
	}, nil
}

func (s *KafkaSink) Write(ctx context.Context, event *gateway.ChaincodeEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "fail to encode event")
	}

	msg := kafka.Message{
		Key:   []byte(event.TransactionID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "chaincode", Value: []byte(event.ChaincodeName)},
			{Key: "event", Value: []byte(event.EventName)},
		},
	}
	return errors.Wrapf(s.writer.WriteMessages(ctx, msg), "fail to publish event to %s", s.topic)
}

func (s *KafkaSink) Close() error { return s.writer.Close() }

// NewEventSink picks Kafka when brokers are configured and JSON lines on w otherwise.
func NewEventSink(c *Config, w io.Writer) (EventSink, error) {
	if len(c.Kafka.Brokers) > 0 {
		return NewKafkaSink(c.Kafka)
	}
	return NewJSONSink(w), nil
}
