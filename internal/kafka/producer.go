// Package kafka provides functionality for interacting with Apache Kafka message broker.
// It carries cart events from the storefront to the snapshot writer.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/IBM/sarama"
	"github.com/sirupsen/logrus"

	"henry/internal/models"
)

// SetupProducer initializes and configures a synchronous Kafka producer.
//
// The producer is configured with:
//   - Synchronous operation (waits for acknowledgment)
//   - 1MB maximum message size (a cart snapshot is small)
//   - Hash partitioning on the message key, so a session's events stay ordered
func SetupProducer(brokers []string) (sarama.SyncProducer, error) {
	if len(brokers) == 0 {
		brokers = []string{"localhost:9092"}
	}

	config := sarama.NewConfig()
	// Enable synchronous operation
	config.Producer.Return.Successes = true
	config.Producer.MaxMessageBytes = 1024 * 1024
	config.Producer.Partitioner = sarama.NewHashPartitioner

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}

	logrus.WithField("brokers", brokers).Info("Kafka producer initialized")
	return producer, nil
}

// Publisher sends cart events as JSON keyed by session id.
type Publisher struct {
	producer sarama.SyncProducer
	topic    string
}

func NewPublisher(producer sarama.SyncProducer, topic string) *Publisher {
	return &Publisher{producer: producer, topic: topic}
}

func (p *Publisher) Publish(_ context.Context, event models.CartEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode cart event: %w", err)
	}

	partition, offset, err := p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(event.SessionID),
		Value: sarama.ByteEncoder(payload),
	})
	if err != nil {
		return fmt.Errorf("send cart event %s: %w", event.ID, err)
	}

	logrus.WithFields(logrus.Fields{
		"topic":     p.topic,
		"partition": partition,
		"offset":    offset,
		"kind":      event.Kind,
	}).Debug("Cart event published")
	return nil
}

func (p *Publisher) Close() error {
	return p.producer.Close()
}
