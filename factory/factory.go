package factory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gmbyapa/kfactory/pkg/errors"
	"github.com/gmbyapa/kfactory/streams"
	"github.com/gmbyapa/kfactory/streams/topology"
	"github.com/tryfix/log"
	"github.com/tryfix/metrics"
	"go.uber.org/multierr"
)

// Factory owns the configuration and the topology builder of an application
// and drives a single engine handle through start and stop cycles.
//
// The topology is frozen once the first handle has started and is reused
// afterwards. Every Start after a Stop creates a new handle, a stopped handle
// is never reused.
type Factory struct {
	conf     *streams.Config
	builder  *topology.Builder
	opts     *options
	logger   log.Logger
	mu       sync.RWMutex
	state    State
	topology *topology.Topology
	handle   streams.Engine
	// last stopped handle, which may still be releasing its state stores
	previous streams.Engine
	metrics  struct {
		state       metrics.Gauge
		starts      metrics.Counter
		stopLatency metrics.Observer
	}
}

// New validates the configuration and takes ownership of the builder.
func New(conf *streams.Config, builder *topology.Builder, opts ...Option) (*Factory, error) {
	if conf == nil {
		return nil, &ConfigurationError{Option: `config`, Err: errors.New(`config cannot be nil`)}
	}

	if builder == nil {
		return nil, &ConfigurationError{Option: `topology`, Err: errors.New(`topology builder cannot be nil`)}
	}

	if err := conf.Validate(); err != nil {
		option := `config`
		var optErr *streams.OptionError
		if errors.As(err, &optErr) {
			option = optErr.Option
		}

		return nil, &ConfigurationError{Option: option, Err: err}
	}

	o := new(options)
	o.apply(conf, opts...)

	f := &Factory{
		conf:    conf,
		builder: builder,
		opts:    o,
		logger:  o.logger.NewLog(log.Prefixed(`Factory`)),
		state:   StateCreated,
	}

	constLabels := map[string]string{`application_id`: conf.ApplicationId()}
	f.metrics.state = o.reporter.Gauge(metrics.MetricConf{
		Path:        `kfactory_factory_state`,
		ConstLabels: constLabels,
	})
	f.metrics.starts = o.reporter.Counter(metrics.MetricConf{
		Path:        `kfactory_factory_engine_starts_count`,
		ConstLabels: constLabels,
	})
	f.metrics.stopLatency = o.reporter.Observer(metrics.MetricConf{
		Path:        `kfactory_factory_stop_latency_microseconds`,
		ConstLabels: constLabels,
	})
	f.metrics.state.Count(float64(StateCreated), nil)

	return f, nil
}

// Start starts a new engine handle and freezes the topology once the first
// handle is running. Starting a running factory is a no-op. A previously
// stopped handle must have released its state before a new one is created.
func (f *Factory) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state == StateRunning {
		return nil
	}

	if err := f.awaitRelease(ctx); err != nil {
		return f.startFailed(err)
	}

	tp := f.topology
	if tp == nil {
		snapshot, err := f.builder.Snapshot()
		if err != nil {
			return f.startFailed(errors.Wrap(err, `topology build failed`))
		}
		tp = snapshot
	}

	handle, err := f.opts.provider(tp, f.conf)
	if err != nil {
		return f.startFailed(errors.Wrap(err, `engine create failed`))
	}

	if handle == nil {
		return f.startFailed(ErrNilHandle)
	}

	if err := handle.Start(ctx); err != nil {
		f.discard(handle)
		return f.startFailed(errors.Wrapf(err, `engine [%s] start failed`, handle.ID()))
	}

	if f.topology == nil {
		if err := f.builder.Freeze(tp); err != nil {
			f.discard(handle)
			return f.startFailed(errors.Wrap(err, `topology freeze failed`))
		}
		f.topology = tp
	}

	f.handle = handle
	f.setState(StateRunning)
	f.metrics.starts.Count(1, nil)
	f.logger.Info(fmt.Sprintf(`engine [%s] started`, handle.ID()))

	return nil
}

// awaitRelease blocks until the last stopped handle has closed its state
// stores, bounded by ctx and the drain timeout.
func (f *Factory) awaitRelease(ctx context.Context) error {
	if f.previous == nil {
		return nil
	}

	select {
	case <-f.previous.Done():
		f.previous = nil
		return nil
	default:
	}

	timer := time.NewTimer(f.opts.drainTimeout)
	defer timer.Stop()

	select {
	case <-f.previous.Done():
		f.previous = nil
		return nil
	case <-ctx.Done():
		return errors.Wrapf(ctx.Err(), `engine [%s] is still releasing its state`, f.previous.ID())
	case <-timer.C:
		return errors.Wrapf(ErrHandleNotReleased, `engine [%s] after %s`, f.previous.ID(), f.opts.drainTimeout)
	}
}

// discard closes a handle that failed to start and keeps it until its state is released.
func (f *Factory) discard(handle streams.Engine) {
	closeCtx, cancel := context.WithTimeout(context.Background(), f.opts.drainTimeout)
	defer cancel()
	if err := handle.Close(closeCtx); err != nil {
		f.logger.Warn(fmt.Sprintf(`failed engine [%s] close error %s`, handle.ID(), err))
	}
	f.previous = handle
}

func (f *Factory) startFailed(err error) error {
	f.handle = nil
	f.setState(StateStopped)
	f.logger.Error(err.Error())

	return &EngineStartError{Err: err}
}

// Stop closes the running handle within the drain timeout (or the ctx deadline
// when sooner). The factory is stopped and the handle released whatever the
// close outcome is. A drain timeout is logged, not returned.
func (f *Factory) Stop(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state != StateRunning {
		return nil
	}

	handle := f.handle
	f.handle = nil
	f.previous = handle
	f.setState(StateStopped)

	begin := time.Now()
	defer func() {
		f.metrics.stopLatency.Observe(float64(time.Since(begin).Microseconds()), nil)
	}()

	ctx, cancel := context.WithTimeout(ctx, f.opts.drainTimeout)
	defer cancel()

	err := handle.Close(ctx)
	if err == nil {
		f.logger.Info(fmt.Sprintf(`engine [%s] stopped`, handle.ID()))
		return nil
	}

	var closeErr error
	for _, e := range multierr.Errors(err) {
		if errors.Is(e, streams.ErrDrainTimeout) {
			f.logger.Warn(fmt.Sprintf(`engine [%s] did not drain within %s, forced to stop`, handle.ID(), f.opts.drainTimeout))
			continue
		}
		closeErr = multierr.Append(closeErr, e)
	}

	if closeErr != nil {
		f.logger.Error(fmt.Sprintf(`engine [%s] close error %s`, handle.ID(), closeErr))
		return errors.Wrapf(closeErr, `engine [%s] close failed`, handle.ID())
	}

	return nil
}

func (f *Factory) setState(state State) {
	f.state = state
	f.metrics.state.Count(float64(state), nil)
}

func (f *Factory) IsRunning() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return f.state == StateRunning
}

func (f *Factory) State() State {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return f.state
}

// Handle returns the active engine handle, nil when the factory is not running.
func (f *Factory) Handle() streams.Engine {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return f.handle
}

// Topology returns the frozen topology, nil before the first Start.
func (f *Factory) Topology() *topology.Topology {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return f.topology
}

func (f *Factory) Builder() *topology.Builder {
	return f.builder
}

func (f *Factory) Config() *streams.Config {
	return f.conf
}

// Describe renders the topology as a Graphviz DOT graph.
func (f *Factory) Describe() (string, error) {
	if tp := f.Topology(); tp != nil {
		return tp.Describe()
	}

	return f.builder.Describe()
}

func (f *Factory) String() string {
	return fmt.Sprintf(`Factory(%s)`, f.conf.ApplicationId())
}
