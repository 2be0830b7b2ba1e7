package factory

import (
	"github.com/gmbyapa/kfactory/streams"
	"github.com/gmbyapa/kfactory/streams/topology"
	"github.com/tryfix/log"
	"github.com/tryfix/metrics"
	"time"
)

// EngineProvider creates a new engine handle for a frozen topology. It is
// called once per successful Start.
type EngineProvider func(tp *topology.Topology, conf *streams.Config) (streams.Engine, error)

type options struct {
	provider      EngineProvider
	engineOptions []streams.EngineOption
	logger        log.Logger
	reporter      metrics.Reporter
	drainTimeout  time.Duration
}

type Option func(*options)

func WithEngineProvider(provider EngineProvider) Option {
	return func(opts *options) {
		opts.provider = provider
	}
}

// WithEngineOptions passes options to the default engine provider.
func WithEngineOptions(engineOptions ...streams.EngineOption) Option {
	return func(opts *options) {
		opts.engineOptions = append(opts.engineOptions, engineOptions...)
	}
}

func WithLogger(logger log.Logger) Option {
	return func(opts *options) {
		opts.logger = logger
	}
}

func WithMetricsReporter(reporter metrics.Reporter) Option {
	return func(opts *options) {
		opts.reporter = reporter
	}
}

// WithDrainTimeout overrides shutdown.drain.timeout. Non positive values are ignored.
func WithDrainTimeout(timeout time.Duration) Option {
	return func(opts *options) {
		if timeout <= 0 {
			return
		}
		opts.drainTimeout = timeout
	}
}

func (opts *options) apply(conf *streams.Config, optFns ...Option) {
	opts.logger = log.NewNoopLogger()
	opts.reporter = metrics.NoopReporter()
	opts.drainTimeout = conf.DrainTimeout()

	for _, opt := range optFns {
		opt(opts)
	}

	if opts.provider == nil {
		engineOpts := append([]streams.EngineOption{
			streams.WithLogger(opts.logger),
			streams.WithMetricsReporter(opts.reporter),
		}, opts.engineOptions...)

		opts.provider = func(tp *topology.Topology, conf *streams.Config) (streams.Engine, error) {
			return streams.NewEngine(tp, conf, engineOpts...)
		}
	}
}
