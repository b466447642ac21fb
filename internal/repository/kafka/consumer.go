package kafka

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/NordCoder/upwatch/internal/obs"
	"github.com/NordCoder/upwatch/internal/obs/retry"
)

var mConsumed = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "kafka_consumer_messages_total",
	Help: "Messages fetched by the consumer, by handler result.",
}, []string{"topic", "result"})

type Handler func(ctx context.Context, key, value []byte) error

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type ConsumerConfig struct {
	Brokers       []string
	GroupID       string
	Topic         string
	FromBeginning bool
	Logger        *zap.Logger
}

// Consumer reads a topic as part of a group. A message is committed only
// after its handler returns nil; failed messages are logged and skipped.
type Consumer struct {
	reader  messageReader
	topic   string
	backoff retry.Backoff
	log     *zap.Logger
}

func NewConsumer(cfg *ConsumerConfig) *Consumer {
	start := kafka.LastOffset
	if cfg.FromBeginning {
		start = kafka.FirstOffset
	}
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:               cfg.Brokers,
		GroupID:               cfg.GroupID,
		Topic:                 cfg.Topic,
		StartOffset:           start,
		WatchPartitionChanges: true,

		MinBytes:          1e3,
		MaxBytes:          10e6,
		SessionTimeout:    10 * time.Second,
		RebalanceTimeout:  15 * time.Second,
		HeartbeatInterval: 3 * time.Second,
	})
	return newConsumer(r, cfg.Topic, cfg.GroupID, cfg.Logger)
}

func newConsumer(r messageReader, topic, group string, l *zap.Logger) *Consumer {
	if l == nil {
		l = zap.L()
	}
	return &Consumer{
		reader:  r,
		topic:   topic,
		backoff: retry.ExpoJitter{Base: 200 * time.Millisecond, Max: 5 * time.Second, Jitter: 0.1},
		log: l.With(
			zap.String("component", "kafka.consumer"),
			zap.String("topic", topic),
			zap.String("group", group),
		),
	}
}

// Consume blocks until ctx ends, feeding every fetched message to h.
func (c *Consumer) Consume(ctx context.Context, h Handler) error {
	c.log.Info("consumer started")
	failures := 0
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.log.Info("consumer stopped")
				return ctx.Err()
			}
			wait := c.backoff.Next(failures)
			failures++
			if errors.Is(err, io.EOF) {
				c.log.Debug("fetch EOF, retrying", zap.Duration("backoff", wait))
			} else {
				c.log.Warn("fetch failed, retrying", zap.Duration("backoff", wait), zap.Error(err))
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
			continue
		}
		failures = 0

		if err := c.handle(ctx, h, msg); err != nil {
			mConsumed.WithLabelValues(c.topic, "error").Inc()
			c.log.Error("handler error", zap.Int("partition", msg.Partition), zap.Int64("offset", msg.Offset), zap.Error(err))
			continue
		}
		mConsumed.WithLabelValues(c.topic, "ok").Inc()

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.log.Warn("commit failed, offset will be redelivered", zap.Int64("offset", msg.Offset), zap.Error(err))
		}
	}
}

// handle runs h inside a consumer span parented on the producer's headers.
func (c *Consumer) handle(ctx context.Context, h Handler, msg kafka.Message) error {
	ctx, span := otel.Tracer("kafka.consumer").Start(extractTrace(ctx, msg.Headers), "kafka.consume "+c.topic,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			semconv.MessagingSystemKafka,
			semconv.MessagingDestinationName(c.topic),
		),
	)
	defer span.End()

	err := h(ctx, msg.Key, msg.Value)
	obs.FailSpan(span, err)
	return err
}

func (c *Consumer) Close() error { return c.reader.Close() }
