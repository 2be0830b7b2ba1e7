package sarama

import (
	"context"
	"github.com/Shopify/sarama"
	"github.com/gmbyapa/kfactory/kafka"
	"github.com/gmbyapa/kfactory/pkg/errors"
	"github.com/tryfix/log"
	"github.com/tryfix/metrics"
	"time"
)

const metricProduceLatency = `producer_produce_latency_microseconds`

type producer struct {
	producer sarama.SyncProducer
	logger   log.Logger
	reporter metrics.Reporter
	metrics  struct {
		produceLatency metrics.Observer
	}
}

// ProducerBuilder returns a kafka.ProducerBuilder creating sarama sync producers.
func ProducerBuilder() kafka.ProducerBuilder {
	return func(config *kafka.ProducerConfig) (kafka.Producer, error) {
		return NewProducer(config)
	}
}

func NewProducer(config *kafka.ProducerConfig) (kafka.Producer, error) {
	saramaConf, err := producerConfig(config)
	if err != nil {
		return nil, err
	}

	p, err := sarama.NewSyncProducer(config.BootstrapServers, saramaConf)
	if err != nil {
		return nil, errors.Wrap(err, `producer init failed`)
	}

	return newProducer(p, config), nil
}

func newProducer(p sarama.SyncProducer, config *kafka.ProducerConfig) *producer {
	prd := &producer{
		producer: p,
		logger:   config.Logger.NewLog(log.Prefixed(`Producer`)),
		reporter: config.MetricsReporter,
	}
	prd.metrics.produceLatency = config.MetricsReporter.Observer(metrics.MetricConf{
		Path:   metricProduceLatency,
		Labels: []string{`topic`},
	})

	return prd
}

func (p *producer) ProduceSync(ctx context.Context, record kafka.Record) (partition int32, offset int64, err error) {
	defer func(begin time.Time) {
		p.metrics.produceLatency.Observe(float64(time.Since(begin).Microseconds()), map[string]string{`topic`: record.Topic()})
	}(time.Now())

	msg := &sarama.ProducerMessage{
		Topic:     record.Topic(),
		Timestamp: record.Timestamp(),
	}

	// nil keys and values stay null on the wire, a nil value is a tombstone
	if record.Key() != nil {
		msg.Key = sarama.ByteEncoder(record.Key())
	}

	if record.Value() != nil {
		msg.Value = sarama.ByteEncoder(record.Value())
	}

	for _, h := range record.Headers() {
		msg.Headers = append(msg.Headers, sarama.RecordHeader{Key: h.Key, Value: h.Value})
	}

	partition, offset, err = p.producer.SendMessage(msg)
	if err != nil {
		return 0, 0, errors.Wrapf(err, `cannot produce to [%s]`, record.Topic())
	}

	return partition, offset, nil
}

func (p *producer) Close() error {
	p.logger.Info(`producer closing...`)
	defer p.logger.Info(`producer closed`)
	defer p.reporter.UnRegister(metricProduceLatency)

	return p.producer.Close()
}
