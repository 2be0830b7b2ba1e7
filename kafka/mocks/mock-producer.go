package mocks

import (
	"context"
	"github.com/gmbyapa/kfactory/kafka"
	"hash/fnv"
	"sync"
)

type MockStreamProducer struct {
	topics *Topics
	mu     sync.Mutex
	closed bool
}

func NewMockProducer(topics *Topics) *MockStreamProducer {
	return &MockStreamProducer{
		topics: topics,
	}
}

// ProducerBuilder returns a kafka.ProducerBuilder producing into the in memory broker.
func ProducerBuilder(topics *Topics) kafka.ProducerBuilder {
	return func(_ *kafka.ProducerConfig) (kafka.Producer, error) {
		return NewMockProducer(topics), nil
	}
}

func (msp *MockStreamProducer) ProduceSync(ctx context.Context, message kafka.Record) (partition int32, offset int64, err error) {
	msp.mu.Lock()
	closed := msp.closed
	msp.mu.Unlock()
	if closed {
		return 0, 0, ErrProducerClosed
	}

	topic, err := msp.topics.Topic(message.Topic())
	if err != nil {
		return 0, 0, err
	}

	hasher := fnv.New32a()
	if _, err := hasher.Write(message.Key()); err != nil {
		return 0, 0, err
	}

	partition = int32(hasher.Sum32() % uint32(len(topic.Partitions())))
	pt, err := topic.Partition(partition)
	if err != nil {
		return 0, 0, err
	}

	offset = pt.Append(message, partition)
	msp.topics.appended()

	return partition, offset, nil
}

func (msp *MockStreamProducer) Close() error {
	msp.mu.Lock()
	defer msp.mu.Unlock()
	msp.closed = true
	return nil
}
