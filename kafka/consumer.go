package kafka

import (
	"context"
	"fmt"
	"github.com/tryfix/log"
	"github.com/tryfix/metrics"
	"time"
)

// TopicPartition represents a kafka topic partition.
type TopicPartition struct {
	Topic     string
	Partition int32
}

func (tp TopicPartition) String() string {
	return fmt.Sprintf(`%s-%d`, tp.Topic, tp.Partition)
}

type Offset int64

const (
	Earliest Offset = -2
	Latest   Offset = -1
)

func (o Offset) String() string {
	switch o {
	case Earliest:
		return `Earliest`
	case Latest:
		return `Latest`
	default:
		return fmt.Sprint(int(o))
	}
}

// RecordHandler is invoked for every consumed record. A returned error is
// treated as a processing failure of that record only.
type RecordHandler func(ctx context.Context, record Record) error

// GroupConsumer is a wrapper for a kafka group consumer adaptor.
type GroupConsumer interface {
	// Consume joins the group, subscribes to topics and feeds records to the handler.
	// It blocks until ctx is cancelled and in-flight records are handled.
	Consume(ctx context.Context, topics []string, handler RecordHandler) error
	Close() error
}

type GroupConsumerConfig struct {
	Id               string
	GroupId          string
	BootstrapServers []string
	Version          string
	Offsets          struct {
		Initial Offset
		Commit  struct {
			Interval time.Duration
		}
	}
	Logger          log.Logger
	MetricsReporter metrics.Reporter
}

func NewGroupConsumerConfig() *GroupConsumerConfig {
	conf := &GroupConsumerConfig{
		Logger:          log.NewNoopLogger(),
		MetricsReporter: metrics.NoopReporter(),
	}
	conf.Offsets.Initial = Earliest
	conf.Offsets.Commit.Interval = time.Second

	return conf
}

type GroupConsumerBuilder func(config *GroupConsumerConfig) (GroupConsumer, error)
