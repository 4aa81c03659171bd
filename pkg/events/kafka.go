package events

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"time"

	"github.com/code-100-precent/calltrack/pkg/logger"
	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl/scram"
	"go.uber.org/zap"
)

// KafkaConfig event export settings
type KafkaConfig struct {
	Brokers  []string
	Topic    string
	Username string
	Password string
}

// MessageWriter subset of *kafka.Writer used by the sink
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink forwards bus events to a topic. Messages are keyed by call id so
// a call's events share a partition; the bus delivers them in publish order.
type KafkaSink struct {
	writer  MessageWriter
	timeout time.Duration
}

// NewKafkaWriter builds a writer; SASL/SCRAM over TLS is used when credentials are set
func NewKafkaWriter(cfg KafkaConfig) (*kafka.Writer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers are required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka topic is required")
	}

	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		MaxAttempts:  5,
		BatchTimeout: 50 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}
	if cfg.Username != "" {
		mechanism, err := scram.Mechanism(scram.SHA512, cfg.Username, cfg.Password)
		if err != nil {
			return nil, fmt.Errorf("error creating SASL mechanism: %w", err)
		}
		w.Transport = &kafka.Transport{
			SASL: mechanism,
			TLS:  &tls.Config{MinVersion: tls.VersionTLS12},
		}
	}
	return w, nil
}

func NewKafkaSink(writer MessageWriter) *KafkaSink {
	return &KafkaSink{writer: writer, timeout: 5 * time.Second}
}

// Handle EventHandler forwarding one event
func (s *KafkaSink) Handle(event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	key, _ := event.Data["call_id"].(string)

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := s.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Time:  event.Timestamp,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(event.Type)},
		},
	}); err != nil {
		return fmt.Errorf("write %s to kafka: %w", event.Type, err)
	}
	return nil
}

// Attach subscribes the sink to every event on bus
func (s *KafkaSink) Attach(bus *EventBus) {
	bus.Subscribe("*", s.Handle)
	logger.Info("Kafka event export enabled")
}

func (s *KafkaSink) Close() error {
	if err := s.writer.Close(); err != nil {
		logger.Warn("close kafka writer", zap.Error(err))
		return err
	}
	return nil
}
