package kafka

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// EnsureTopics creates every topic the worker reads or writes.
func EnsureTopics(ctx context.Context, brokers []string, specs []TopicSpec, log *zap.Logger) error {
	var errs []error
	for _, s := range specs {
		if s.Name == "" {
			continue
		}
		if err := EnsureTopic(ctx, brokers, s, log); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// BootstrapConsumer makes sure the topic exists before the reader joins the group.
func BootstrapConsumer(ctx context.Context, cfg *ConsumerConfig, partitions, replicas int, logger *zap.Logger) *Consumer {
	_ = EnsureTopic(ctx, cfg.Brokers, TopicSpec{
		Name:              cfg.Topic,
		NumPartitions:     partitions,
		ReplicationFactor: replicas,
		MaxWait:           5 * time.Second,
	}, logger)

	return NewConsumer(cfg)
}
