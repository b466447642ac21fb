package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"go.uber.org/zap"

	config "github.com/NordCoder/upwatch/internal/config/worker"
	"github.com/NordCoder/upwatch/internal/obs"
	"github.com/NordCoder/upwatch/internal/repository/kafka"
)

func main() {
	cfgPath := flag.String("config", os.Getenv("UPWATCH_CONFIG"), "path to YAML config")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatal(err)
	}
	l, err := obs.NewLogger(cfg.Log)
	if err != nil {
		log.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	specs := []kafka.TopicSpec{
		{Name: cfg.Kafka.CheckTopic, NumPartitions: cfg.Kafka.Partitions, ReplicationFactor: cfg.Kafka.Replicas, MaxWait: 30 * time.Second},
		{Name: cfg.Kafka.EventTopic, NumPartitions: cfg.Kafka.Partitions, ReplicationFactor: cfg.Kafka.Replicas, MaxWait: 30 * time.Second},
	}
	if err := kafka.EnsureTopics(ctx, cfg.Kafka.Brokers, specs, l); err != nil {
		l.Fatal("ensure topics", zap.Error(err))
	}
	l.Info("kafka-init ok", zap.Strings("brokers", cfg.Kafka.Brokers))
}
