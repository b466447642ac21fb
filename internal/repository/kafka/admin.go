package kafka

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// TopicSpec describes a topic to create. Zero partitions or replicas mean one.
type TopicSpec struct {
	Name              string
	NumPartitions     int
	ReplicationFactor int
	MaxWait           time.Duration
}

func (s TopicSpec) withDefaults() TopicSpec {
	s.NumPartitions = max(s.NumPartitions, 1)
	s.ReplicationFactor = max(s.ReplicationFactor, 1)
	if s.MaxWait <= 0 {
		s.MaxWait = 5 * time.Second
	}
	return s
}

// EnsureTopic creates the topic through the cluster controller and waits up to
// MaxWait for its partitions to show up. An existing topic is not an error.
func EnsureTopic(ctx context.Context, brokers []string, spec TopicSpec, log *zap.Logger) error {
	if len(brokers) == 0 {
		return errors.New("no kafka brokers configured")
	}
	if log == nil {
		log = zap.NewNop()
	}
	spec = spec.withDefaults()
	log = log.With(zap.String("topic", spec.Name))

	conn, err := kafka.DialContext(ctx, "tcp", brokers[0])
	if err != nil {
		log.Warn("kafka dial failed", zap.String("broker", brokers[0]), zap.Error(err))
		return fmt.Errorf("dial %s: %w", brokers[0], err)
	}
	defer conn.Close()

	ctrl, err := dialController(ctx, conn)
	if err != nil {
		log.Warn("kafka controller unavailable", zap.Error(err))
		return err
	}
	defer ctrl.Close()

	if err := ctrl.CreateTopics(kafka.TopicConfig{
		Topic:             spec.Name,
		NumPartitions:     spec.NumPartitions,
		ReplicationFactor: spec.ReplicationFactor,
	}); err != nil && !errors.Is(err, kafka.TopicAlreadyExists) {
		log.Debug("create topic", zap.Error(err))
	}

	if waitPartitions(ctx, conn, spec) {
		log.Info("topic ready", zap.Int("partitions", spec.NumPartitions))
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	log.Warn("topic not confirmed ready in time", zap.Duration("waited", spec.MaxWait))
	return nil
}

func dialController(ctx context.Context, conn *kafka.Conn) (*kafka.Conn, error) {
	b, err := conn.Controller()
	if err != nil {
		return nil, fmt.Errorf("lookup controller: %w", err)
	}
	addr := net.JoinHostPort(b.Host, strconv.Itoa(b.Port))
	cc, err := kafka.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial controller %s: %w", addr, err)
	}
	return cc, nil
}

func waitPartitions(ctx context.Context, conn *kafka.Conn, spec TopicSpec) bool {
	deadline := time.Now().Add(spec.MaxWait)
	for time.Now().Before(deadline) {
		if ps, err := conn.ReadPartitions(spec.Name); err == nil && len(ps) > 0 {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(200 * time.Millisecond):
		}
	}
	return false
}
