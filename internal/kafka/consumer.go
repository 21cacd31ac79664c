package kafka

import (
	"context"
	"fmt"

	"github.com/IBM/sarama"

	"github.com/sirupsen/logrus"
)

// SetupConsumer creates a Kafka consumer for the given brokers.
func SetupConsumer(brokers []string) (sarama.Consumer, error) {
	if len(brokers) == 0 {
		brokers = []string{"localhost:9092"}
	}

	config := sarama.NewConfig()
	config.Consumer.Return.Errors = true

	consumer, err := sarama.NewConsumer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("create kafka consumer: %w", err)
	}
	return consumer, nil
}

// Consume feeds every message of every partition of topic to handler until ctx is done.
// Producers hash on the session id, so a session's events can land on any partition.
func Consume(ctx context.Context, consumer sarama.Consumer, topic string, handler func([]byte)) error {
	partitions, err := consumer.Partitions(topic)
	if err != nil {
		return fmt.Errorf("list partitions of %s: %w", topic, err)
	}

	opened := make([]sarama.PartitionConsumer, 0, len(partitions))
	for _, partition := range partitions {
		pc, err := consumer.ConsumePartition(topic, partition, sarama.OffsetNewest)
		if err != nil {
			for _, prev := range opened {
				_ = prev.Close()
			}
			return fmt.Errorf("consume %s/%d: %w", topic, partition, err)
		}
		opened = append(opened, pc)
	}

	logrus.WithFields(logrus.Fields{"topic": topic, "partitions": len(opened)}).Info("Started consuming from topic")
	for i, pc := range opened {
		go consumePartition(ctx, pc, topic, partitions[i], handler)
	}
	return nil
}

func consumePartition(ctx context.Context, pc sarama.PartitionConsumer, topic string, partition int32, handler func([]byte)) {
	defer pc.Close()
	fields := logrus.Fields{"topic": topic, "partition": partition}
	for {
		select {
		case msg, ok := <-pc.Messages():
			if !ok {
				return
			}
			logrus.WithFields(fields).Debug("Received message")
			handler(msg.Value)
		case err, ok := <-pc.Errors():
			if !ok {
				return
			}
			logrus.WithError(err).WithFields(fields).Error("Error consuming")
		case <-ctx.Done():
			return
		}
	}
}
