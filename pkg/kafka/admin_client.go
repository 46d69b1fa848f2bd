package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"go.uber.org/zap"
)

const metadataTimeout = 10 * time.Second

// TopicAdmin is the subset of *kafka.AdminClient used to manage topics.
type TopicAdmin interface {
	GetMetadata(topic *string, allTopics bool, timeoutMs int) (*kafka.Metadata, error)
	CreateTopics(ctx context.Context, topics []kafka.TopicSpecification, options ...kafka.CreateTopicsAdminOption) ([]kafka.TopicResult, error)
	CreatePartitions(ctx context.Context, partitions []kafka.PartitionsSpecification, options ...kafka.CreatePartitionsAdminOption) ([]kafka.TopicResult, error)
}

var _ TopicAdmin = (*kafka.AdminClient)(nil)

// TopicConfig holds Kafka topic configuration options for creation or validation.
type TopicConfig struct {
	Name              string
	NumPartitions     int
	ReplicationFactor int
}

// Validate checks if the TopicConfig is valid for topic creation.
func (tc TopicConfig) Validate() error {
	if tc.Name == "" {
		return errors.New("topic name cannot be empty")
	}
	if tc.NumPartitions <= 0 {
		return fmt.Errorf("number of partitions must be > 0, got %d", tc.NumPartitions)
	}
	if tc.ReplicationFactor <= 0 {
		return fmt.Errorf("replication factor must be > 0, got %d", tc.ReplicationFactor)
	}
	return nil
}

// EnsureTopic creates the topic when missing and grows its partition count
// when it has fewer partitions than configured. A topic with more partitions
// is left as is, since Kafka cannot shrink it; address keys still hash
// consistently within the existing layout.
func EnsureTopic(ctx context.Context, admin TopicAdmin, config TopicConfig, log *zap.SugaredLogger) error {
	if err := config.Validate(); err != nil {
		return fmt.Errorf("invalid topic config: %w", err)
	}

	metadata, err := admin.GetMetadata(&config.Name, false, int(metadataTimeout.Milliseconds()))
	if err != nil {
		return fmt.Errorf("failed to get metadata for topic %q: %w", config.Name, err)
	}

	topic, exists := metadata.Topics[config.Name]
	if !exists || topic.Error.Code() == kafka.ErrUnknownTopicOrPart {
		return createTopic(ctx, admin, config, log)
	}
	if topic.Error.Code() != kafka.ErrNoError {
		return fmt.Errorf("topic %q has error: %w", config.Name, topic.Error)
	}

	current := len(topic.Partitions)
	switch {
	case current < config.NumPartitions:
		log.Infow("increasing topic partitions", "topic", config.Name, "from", current, "to", config.NumPartitions)
		results, err := admin.CreatePartitions(ctx, []kafka.PartitionsSpecification{
			{Topic: config.Name, IncreaseTo: config.NumPartitions},
		})
		if err != nil {
			return fmt.Errorf("failed to increase partitions for topic %q: %w", config.Name, err)
		}
		return checkResults(results)
	case current > config.NumPartitions:
		log.Warnw("topic has more partitions than configured", "topic", config.Name, "current", current, "desired", config.NumPartitions)
	default:
		log.Infow("topic exists", "topic", config.Name, "partitions", current)
	}
	return nil
}

func createTopic(ctx context.Context, admin TopicAdmin, config TopicConfig, log *zap.SugaredLogger) error {
	results, err := admin.CreateTopics(ctx, []kafka.TopicSpecification{{
		Topic:             config.Name,
		NumPartitions:     config.NumPartitions,
		ReplicationFactor: config.ReplicationFactor,
	}})
	if err != nil {
		return fmt.Errorf("failed to create topic %q: %w", config.Name, err)
	}
	if err := checkResults(results); err != nil {
		return err
	}
	log.Infow("created topic", "topic", config.Name, "partitions", config.NumPartitions, "replicationFactor", config.ReplicationFactor)
	return nil
}

func checkResults(results []kafka.TopicResult) error {
	for _, r := range results {
		switch r.Error.Code() {
		case kafka.ErrNoError, kafka.ErrTopicAlreadyExists:
		default:
			return fmt.Errorf("topic %q: %w", r.Topic, r.Error)
		}
	}
	return nil
}
