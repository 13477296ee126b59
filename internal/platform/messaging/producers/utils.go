package producers

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/tamper-evident-ledger/internal/config"
)

const (
	topicReadAttempts = 5
	topicReadBackoff  = 2 * time.Second
)

// topicAdmin is the part of *kafka.Conn used to provision topics
type topicAdmin interface {
	ReadPartitions(topics ...string) ([]kafka.Partition, error)
	CreateTopics(topics ...kafka.TopicConfig) error
}

// topicConfigFor applies the configured partitioning, falling back to a single partition
// and replica when unset.
func topicConfigFor(topic string, cfg *config.KafkaConfig) kafka.TopicConfig {
	tc := kafka.TopicConfig{
		Topic:             topic,
		NumPartitions:     cfg.NumPartitions,
		ReplicationFactor: cfg.ReplicationFactor,
	}
	if tc.NumPartitions <= 0 {
		tc.NumPartitions = 1
	}
	if tc.ReplicationFactor <= 0 {
		tc.ReplicationFactor = 1
	}
	return tc
}

// ensureTopic creates the topic unless the broker already reports partitions for it.
// Partition reads are retried since a freshly started broker often fails the first ones.
func ensureTopic(ctx context.Context, admin topicAdmin, topic kafka.TopicConfig, log *slog.Logger) error {
	var (
		partitions []kafka.Partition
		err        error
	)
	for attempt := 1; attempt <= topicReadAttempts; attempt++ {
		partitions, err = admin.ReadPartitions(topic.Topic)
		if err == nil && len(partitions) > 0 {
			log.Info("Kafka topic already exists", "topic", topic.Topic, "partitions", len(partitions))
			return nil
		}
		if err == nil || attempt == topicReadAttempts {
			break
		}
		log.Warn("Failed to read topic partitions, retrying", "topic", topic.Topic, "attempt", attempt, "error", err)
		select {
		case <-ctx.Done():
			return fmt.Errorf("gave up reading partitions of %s: %w", topic.Topic, ctx.Err())
		case <-time.After(topicReadBackoff):
		}
	}

	log.Info("Creating Kafka topic", "topic", topic.Topic,
		"partitions", topic.NumPartitions,
		"replication_factor", topic.ReplicationFactor,
		"last_read_error", err,
	)
	if err := admin.CreateTopics(topic); err != nil {
		return fmt.Errorf("failed to create kafka topic %s: %w", topic.Topic, err)
	}
	return nil
}
