package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/kjstillabower/climate-risk-service/internal/circuitbreaker"
)

// messageWriter is the subset of *kafkago.Writer used for publishing.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// KafkaConfig configures the Kafka publisher.
type KafkaConfig struct {
	Brokers      []string
	Topic        string
	WriteTimeout time.Duration
	Attempts     uint
	RetryDelay   time.Duration
}

// KafkaPublisher writes events as JSON messages. Writes are retried and the
// whole publish is guarded by a circuit breaker so a dead broker costs one
// fast failure per request instead of a full retry cycle.
type KafkaPublisher struct {
	writer   messageWriter
	breaker  *circuitbreaker.CircuitBreaker
	attempts uint
	delay    time.Duration
	logger   *zap.Logger
}

// NewKafkaPublisher creates a publisher for cfg.Topic.
func NewKafkaPublisher(cfg KafkaConfig, breaker *circuitbreaker.CircuitBreaker, logger *zap.Logger) *KafkaPublisher {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
		WriteTimeout: cfg.WriteTimeout,
	}
	return newKafkaPublisher(w, cfg, breaker, logger)
}

func newKafkaPublisher(w messageWriter, cfg KafkaConfig, breaker *circuitbreaker.CircuitBreaker, logger *zap.Logger) *KafkaPublisher {
	if cfg.Attempts == 0 {
		cfg.Attempts = 3
	}
	if breaker == nil {
		breaker = circuitbreaker.New(circuitbreaker.Config{Component: "kafka"})
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KafkaPublisher{
		writer:   w,
		breaker:  breaker,
		attempts: cfg.Attempts,
		delay:    cfg.RetryDelay,
		logger:   logger,
	}
}

// Publish writes e to the topic.
func (p *KafkaPublisher) Publish(ctx context.Context, e Event) error {
	msg, err := toMessage(e)
	if err != nil {
		return err
	}
	return p.breaker.Call(ctx, func(ctx context.Context) error {
		return retry.Do(
			func() error { return p.writer.WriteMessages(ctx, msg) },
			retry.Context(ctx),
			retry.Attempts(p.attempts),
			retry.Delay(p.delay),
			retry.LastErrorOnly(true),
			retry.RetryIf(func(err error) bool {
				return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
			}),
			retry.OnRetry(func(n uint, err error) {
				p.logger.Debug("retrying event publish",
					zap.String("event_type", e.Type),
					zap.Uint("attempt", n+1),
					zap.Error(err),
				)
			}),
		)
	})
}

// Close flushes pending writes and closes the connection.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

func toMessage(e Event) (kafkago.Message, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize %s event: %w", e.Type, err)
	}
	return kafkago.Message{
		Key:   []byte(e.Key),
		Value: data,
		Time:  e.OccurredAt,
		Headers: []kafkago.Header{
			{Key: "event_type", Value: []byte(e.Type)},
			{Key: "event_id", Value: []byte(e.ID)},
			{Key: "occurred_at", Value: []byte(e.OccurredAt.Format(time.RFC3339))},
		},
	}, nil
}
