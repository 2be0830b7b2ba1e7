package mocks

import (
	"context"
	"errors"
	"github.com/gmbyapa/kfactory/kafka"
	"sync"
)

var ErrProducerClosed = errors.New(`producer closed`)

const fetchLimit = 100

// MockGroupConsumer is a single member consumer group over the in memory broker.
// It owns every partition of the subscribed topics and commits after each record.
type MockGroupConsumer struct {
	topics  *Topics
	groupId string
	mu      sync.Mutex
	closed  bool
}

func NewMockGroupConsumer(topics *Topics, groupId string) *MockGroupConsumer {
	return &MockGroupConsumer{topics: topics, groupId: groupId}
}

// GroupConsumerBuilder returns a kafka.GroupConsumerBuilder over the in memory broker.
func GroupConsumerBuilder(topics *Topics) kafka.GroupConsumerBuilder {
	return func(config *kafka.GroupConsumerConfig) (kafka.GroupConsumer, error) {
		return NewMockGroupConsumer(topics, config.GroupId), nil
	}
}

func (c *MockGroupConsumer) Consume(ctx context.Context, topics []string, handler kafka.RecordHandler) error {
	for {
		changed := c.topics.Changed()

		consumed, err := c.poll(ctx, topics, handler)
		if err != nil {
			return err
		}

		if consumed > 0 {
			continue
		}

		select {
		case <-ctx.Done():
			return nil
		case <-changed:
		}
	}
}

func (c *MockGroupConsumer) poll(ctx context.Context, topics []string, handler kafka.RecordHandler) (int, error) {
	var consumed int
	for _, name := range topics {
		topic, err := c.topics.Topic(name)
		if err != nil {
			return consumed, err
		}

		for id, pt := range topic.Partitions() {
			tp := kafka.TopicPartition{Topic: name, Partition: int32(id)}
			for _, record := range pt.Fetch(c.topics.Committed(c.groupId, tp), fetchLimit) {
				if ctx.Err() != nil {
					return consumed, nil
				}

				// handler errors are reported by the handler, the record is committed anyway
				_ = handler(ctx, record)
				c.topics.Commit(c.groupId, tp, record.Offset()+1)
				consumed++
			}
		}
	}

	return consumed, nil
}

func (c *MockGroupConsumer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}
