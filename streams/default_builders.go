package streams

import (
	"github.com/Shopify/sarama"
	"github.com/gmbyapa/kfactory/backend"
	"github.com/gmbyapa/kfactory/backend/badger"
	"github.com/gmbyapa/kfactory/backend/memory"
	"github.com/gmbyapa/kfactory/backend/pebble"
	"github.com/gmbyapa/kfactory/kafka"
	saramaAdpt "github.com/gmbyapa/kfactory/kafka/adaptors/sarama"
	"github.com/gmbyapa/kfactory/streams/encoding"
	"github.com/tryfix/log"
	"github.com/tryfix/metrics"
)

// FailedRecordHandler receives records which failed to decode, process or produce.
type FailedRecordHandler func(err error, record kafka.Record)

type engineOptions struct {
	consumerBuilder kafka.GroupConsumerBuilder
	producerBuilder kafka.ProducerBuilder
	adminBuilder    kafka.AdminBuilder
	backendBuilder  backend.Builder
	failedHandler   FailedRecordHandler
	logger          log.Logger
	reporter        metrics.Reporter
}

type EngineOption func(*engineOptions)

func WithGroupConsumerBuilder(builder kafka.GroupConsumerBuilder) EngineOption {
	return func(opts *engineOptions) {
		opts.consumerBuilder = builder
	}
}

func WithProducerBuilder(builder kafka.ProducerBuilder) EngineOption {
	return func(opts *engineOptions) {
		opts.producerBuilder = builder
	}
}

func WithAdminBuilder(builder kafka.AdminBuilder) EngineOption {
	return func(opts *engineOptions) {
		opts.adminBuilder = builder
	}
}

// WithBackendBuilder overrides the backend selected by state.backend.
func WithBackendBuilder(builder backend.Builder) EngineOption {
	return func(opts *engineOptions) {
		opts.backendBuilder = builder
	}
}

func WithFailedRecordHandler(handler FailedRecordHandler) EngineOption {
	return func(opts *engineOptions) {
		opts.failedHandler = handler
	}
}

func WithLogger(logger log.Logger) EngineOption {
	return func(opts *engineOptions) {
		opts.logger = logger
	}
}

func WithMetricsReporter(reporter metrics.Reporter) EngineOption {
	return func(opts *engineOptions) {
		opts.reporter = reporter
	}
}

func (opts *engineOptions) apply(conf *Config, options ...EngineOption) {
	opts.logger = log.NewNoopLogger()
	opts.reporter = metrics.NoopReporter()

	for _, opt := range options {
		opt(opts)
	}

	// sarama is the default transport
	if opts.consumerBuilder == nil {
		opts.consumerBuilder = saramaAdpt.GroupConsumerBuilder()
	}

	if opts.producerBuilder == nil {
		opts.producerBuilder = saramaAdpt.ProducerBuilder()
	}

	if opts.adminBuilder == nil {
		version, err := sarama.ParseKafkaVersion(conf.String(ConfKafkaVersion))
		if err != nil {
			version = sarama.V2_4_0_0
		}
		opts.adminBuilder = saramaAdpt.AdminBuilder(saramaAdpt.WithKafkaVersion(version), saramaAdpt.WithLogger(opts.logger))
	}

	if opts.backendBuilder == nil {
		opts.backendBuilder = backendBuilder(conf, opts.reporter.Reporter(metrics.ReporterConf{
			Subsystem: `kfactory_backends`,
		}))
	}

	if opts.failedHandler == nil {
		logger := opts.logger
		opts.failedHandler = func(err error, record kafka.Record) {
			logger.Error(`record ` + record.String() + ` failed due to ` + err.Error())
		}
	}
}

func backendBuilder(conf *Config, reporter metrics.Reporter) backend.Builder {
	switch conf.String(ConfStateBackend) {
	case StateBackendPebble:
		pConf := pebble.NewConfig()
		pConf.Dir = conf.String(ConfStateDir)
		pConf.MetricsReporter = reporter
		return pebble.Builder(pConf)
	case StateBackendBadger:
		bConf := badger.NewConfig()
		bConf.StorageDir = conf.String(ConfStateDir)
		bConf.MetricsReporter = reporter
		return badger.Builder(bConf)
	default:
		mConf := memory.NewConfig()
		mConf.MetricsReporter = reporter
		return memory.Builder(mConf)
	}
}

// encoders returns the node encoders with the configured defaults filling the gaps.
func (e *engine) encoders(key, value encoding.Encoder) (encoding.Encoder, encoding.Encoder) {
	if key == nil {
		key = e.keyEncoder
	}

	if value == nil {
		value = e.valEncoder
	}

	return key, value
}
