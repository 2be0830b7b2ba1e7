package streams

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gmbyapa/kfactory/kafka"
	"github.com/gmbyapa/kfactory/pkg/async"
	"github.com/gmbyapa/kfactory/pkg/errors"
	"github.com/gmbyapa/kfactory/streams/encoding"
	"github.com/gmbyapa/kfactory/streams/stores"
	"github.com/gmbyapa/kfactory/streams/topology"
	"github.com/google/uuid"
	"github.com/tryfix/log"
	"github.com/tryfix/metrics"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

var (
	ErrDrainTimeout      = errors.Sentinel(`engine drain timed out`)
	ErrEngineClosed      = errors.Sentinel(`engine is closed`)
	ErrUnknownTopic      = errors.Sentinel(`topic does not exist`)
	ErrUnknownChild      = errors.Sentinel(`unknown child node`)
	ErrStoreNotConnected = errors.Sentinel(`store is not connected to the processor`)
	ErrNilTopology       = errors.Sentinel(`topology cannot be nil`)
)

// Engine is a running instance of a frozen topology. An Engine can be started
// once and closed once, a closed Engine is never restarted.
type Engine interface {
	// ID uniquely identifies the engine instance.
	ID() string
	Start(ctx context.Context) error
	// Close stops consuming and waits until in-flight records are processed or
	// ctx is done, in which case the returned error wraps ErrDrainTimeout.
	Close(ctx context.Context) error
	Running() bool
	Store(name string) (stores.Store, error)
	// Done is closed once the engine has released its stores and processors,
	// either after Close or after a failed Start.
	Done() <-chan struct{}
}

type engineState int8

const (
	metricProcessed      = `kfactory_engine_processed_records_count`
	metricFailed         = `kfactory_engine_failed_records_count`
	metricProcessLatency = `kfactory_engine_process_latency_microseconds`
)

const (
	engineIdle engineState = iota
	engineRunning
	engineClosed
)

type engine struct {
	id         string
	topology   *topology.Topology
	conf       *Config
	opts       *engineOptions
	logger     log.Logger
	reporter   metrics.Reporter
	keyEncoder encoding.Encoder
	valEncoder encoding.Encoder
	extractor  TimestampExtractor
	children   map[string][]string
	sinks      map[string]*topology.Sink

	mu        sync.Mutex
	state     engineState
	runGroup  *async.RunGroup
	consumers []kafka.GroupConsumer
	producer  kafka.Producer
	stores    map[string]stores.Store
	pipelines []*pipeline

	released    chan struct{}
	releaseOnce sync.Once

	metrics struct {
		processed      metrics.Counter
		failed         metrics.Counter
		processLatency metrics.Observer
	}
}

// NewEngine creates an engine for a frozen topology. Nothing is connected until Start.
func NewEngine(tp *topology.Topology, conf *Config, options ...EngineOption) (Engine, error) {
	if tp == nil {
		return nil, ErrNilTopology
	}

	if err := conf.Validate(); err != nil {
		return nil, errors.Wrap(err, `invalid engine config`)
	}

	opts := new(engineOptions)
	opts.apply(conf, options...)

	keyEnc, err := conf.KeyEncoder()
	if err != nil {
		return nil, err
	}

	valEnc, err := conf.ValueEncoder()
	if err != nil {
		return nil, err
	}

	extractor, err := conf.TimestampExtractor()
	if err != nil {
		return nil, err
	}

	id := uuid.New().String()
	// every handle registers its own collectors, evicted again on release
	reporter := opts.reporter.Reporter(metrics.ReporterConf{
		ConstLabels: map[string]string{`engine_id`: id},
	})
	e := &engine{
		id:         id,
		topology:   tp,
		conf:       conf,
		opts:       opts,
		logger:     opts.logger.NewLog(log.Prefixed(fmt.Sprintf(`Engine(%s)`, id[:8]))),
		reporter:   reporter,
		keyEncoder: keyEnc,
		valEncoder: valEnc,
		extractor:  extractor,
		children:   map[string][]string{},
		sinks:      map[string]*topology.Sink{},
		stores:     map[string]stores.Store{},
		released:   make(chan struct{}),
	}

	for _, src := range tp.Sources() {
		e.children[src.Name()] = tp.Children(src.Name())
	}

	for _, p := range tp.Processors() {
		e.children[p.Name()] = tp.Children(p.Name())
	}

	for _, sink := range tp.Sinks() {
		e.sinks[sink.Name()] = sink
	}

	e.metrics.processed = reporter.Counter(metrics.MetricConf{
		Path:   metricProcessed,
		Labels: []string{`topic`},
	})
	e.metrics.failed = reporter.Counter(metrics.MetricConf{
		Path:   metricFailed,
		Labels: []string{`topic`},
	})
	e.metrics.processLatency = reporter.Observer(metrics.MetricConf{
		Path:   metricProcessLatency,
		Labels: []string{`topic`},
	})

	return e, nil
}

func (e *engine) ID() string {
	return e.id
}

func (e *engine) Done() <-chan struct{} {
	return e.released
}

func (e *engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != engineRunning {
		return false
	}

	select {
	case <-e.runGroup.Stopped():
		return false
	default:
		return true
	}
}

func (e *engine) Store(name string) (stores.Store, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	str, ok := e.stores[name]
	if !ok {
		return nil, errors.Wrapf(topology.ErrUnknownStore, `store [%s] is not open`, name)
	}

	return str, nil
}

// Start connects the engine and begins consuming. Calling Start on a running
// engine is a no-op, a closed engine returns ErrEngineClosed.
func (e *engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.state {
	case engineRunning:
		return nil
	case engineClosed:
		return ErrEngineClosed
	}

	if err := e.checkTopics(); err != nil {
		return err
	}

	if err := e.connect(ctx); err != nil {
		e.logger.Error(fmt.Sprintf(`engine start failed due to %s`, err))
		if relErr := e.release(); relErr != nil {
			e.logger.Warn(fmt.Sprintf(`release error %s`, relErr))
		}
		e.state = engineClosed
		return err
	}

	e.state = engineRunning
	go func(rg *async.RunGroup) {
		if err := rg.Run(); err != nil {
			e.logger.Error(fmt.Sprintf(`engine stopped due to %s`, err))
		}
	}(e.runGroup)

	e.logger.Info(fmt.Sprintf(`engine started, consuming %v`, e.topology.SourceTopics()))

	return nil
}

func (e *engine) checkTopics() error {
	admin, err := e.opts.adminBuilder(e.conf.BootstrapServers())
	if err != nil {
		return errors.Wrap(err, `admin client build failed`)
	}
	defer admin.Close()

	topics, err := admin.ListTopics()
	if err != nil {
		return errors.Wrap(err, `topic list fetch failed`)
	}

	existing := map[string]bool{}
	for _, tp := range topics {
		existing[tp] = true
	}

	for _, tp := range e.topology.SourceTopics() {
		if !existing[tp] {
			return errors.Wrapf(ErrUnknownTopic, `source topic [%s]`, tp)
		}
	}

	return nil
}

func (e *engine) connect(ctx context.Context) error {
	for _, str := range e.topology.Stores() {
		enc := str.Encoders()
		s, err := stores.NewStore(str.Name(), enc.Key, enc.Value, e.opts.backendBuilder)
		if err != nil {
			return errors.Wrapf(err, `store [%s] open failed`, str.Name())
		}
		e.stores[str.Name()] = s
	}

	pConf := kafka.NewProducerConfig()
	pConf.Id = fmt.Sprintf(`%s-%s`, e.conf.ApplicationId(), e.id)
	pConf.BootstrapServers = e.conf.BootstrapServers()
	pConf.Version = e.conf.String(ConfKafkaVersion)
	pConf.Logger = e.logger
	pConf.MetricsReporter = e.reporter
	producer, err := e.opts.producerBuilder(pConf)
	if err != nil {
		return errors.Wrap(err, `producer build failed`)
	}
	e.producer = producer

	consumers := make([]kafka.GroupConsumer, e.conf.Int(ConfProcessingConsumerCount))
	group, gCtx := errgroup.WithContext(ctx)
	for i := range consumers {
		i := i
		group.Go(func() error {
			// a failed sibling or a cancelled start skips the remaining builds
			if err := gCtx.Err(); err != nil {
				return errors.Wrapf(err, `consumer %d build cancelled`, i)
			}

			cConf := kafka.NewGroupConsumerConfig()
			cConf.Id = fmt.Sprintf(`%s-%s-%d`, e.conf.ApplicationId(), e.id, i)
			cConf.GroupId = e.conf.ApplicationId()
			cConf.BootstrapServers = e.conf.BootstrapServers()
			cConf.Version = e.conf.String(ConfKafkaVersion)
			cConf.Offsets.Initial = e.conf.InitialOffset()
			cConf.Logger = e.logger
			cConf.MetricsReporter = e.reporter
			consumer, err := e.opts.consumerBuilder(cConf)
			if err != nil {
				return errors.Wrapf(err, `consumer %d build failed`, i)
			}
			consumers[i] = consumer

			return nil
		})
	}

	err = group.Wait()
	// consumers which were built before a failure still need closing
	for _, c := range consumers {
		if c != nil {
			e.consumers = append(e.consumers, c)
		}
	}

	if err != nil {
		return err
	}

	e.runGroup = async.NewRunGroup(e.logger)
	topics := e.topology.SourceTopics()
	for _, consumer := range e.consumers {
		consumer := consumer
		pl := e.newPipeline()
		e.pipelines = append(e.pipelines, pl)
		e.runGroup.Add(func(opts *async.Opts) error {
			ctx, cancel := opts.Context()
			defer cancel()
			opts.Ready()

			return consumer.Consume(ctx, topics, pl.handle)
		})
	}

	return nil
}

// Close drains the engine. Stores and processors are released only after every
// consumer has returned, so a timed out drain releases them in the background.
func (e *engine) Close(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.state {
	case engineIdle:
		e.state = engineClosed
		e.markReleased()
		return nil
	case engineClosed:
		return nil
	}
	e.state = engineClosed

	e.logger.Info(`engine closing...`)

	var err error
	if drainErr := e.runGroup.StopContext(ctx); drainErr != nil {
		err = errors.Wrapf(ErrDrainTimeout, `engine [%s] drain interrupted (%s)`, e.id, drainErr)
	}

	for _, c := range e.consumers {
		err = multierr.Append(err, c.Close())
	}

	if e.producer != nil {
		err = multierr.Append(err, e.producer.Close())
	}

	select {
	case <-e.runGroup.Stopped():
		err = multierr.Append(err, e.releaseState())
	default:
		go func(rg *async.RunGroup) {
			<-rg.Stopped()
			e.mu.Lock()
			defer e.mu.Unlock()
			if relErr := e.releaseState(); relErr != nil {
				e.logger.Error(fmt.Sprintf(`state release error %s`, relErr))
			}
		}(e.runGroup)
	}

	e.logger.Info(`engine closed`)

	return err
}

// release closes everything opened by a failed connect.
func (e *engine) release() error {
	var err error
	for _, c := range e.consumers {
		err = multierr.Append(err, c.Close())
	}

	if e.producer != nil {
		err = multierr.Append(err, e.producer.Close())
	}

	return multierr.Append(err, e.releaseState())
}

func (e *engine) releaseState() error {
	var err error
	for _, pl := range e.pipelines {
		err = multierr.Append(err, pl.close())
	}

	for name, str := range e.stores {
		err = multierr.Append(err, str.Flush())
		err = multierr.Append(err, str.Close())
		delete(e.stores, name)
	}

	e.reporter.UnRegister(metricProcessed)
	e.reporter.UnRegister(metricFailed)
	e.reporter.UnRegister(metricProcessLatency)
	e.markReleased()

	return err
}

func (e *engine) markReleased() {
	e.releaseOnce.Do(func() {
		close(e.released)
	})
}

// pipeline is the processor set of a single consumer.
type pipeline struct {
	engine     *engine
	processors map[string]topology.Processor
}

func (e *engine) newPipeline() *pipeline {
	pl := &pipeline{
		engine:     e,
		processors: map[string]topology.Processor{},
	}

	for _, p := range e.topology.Processors() {
		pl.processors[p.Name()] = p.New()
	}

	return pl
}

func (p *pipeline) handle(ctx context.Context, record kafka.Record) error {
	begin := time.Now()
	lbs := map[string]string{`topic`: record.Topic()}

	if err := p.process(ctx, record); err != nil {
		p.engine.metrics.failed.Count(1, lbs)
		p.engine.opts.failedHandler(err, record)
		return nil
	}

	p.engine.metrics.processed.Count(1, lbs)
	p.engine.metrics.processLatency.Observe(float64(time.Since(begin).Microseconds()), lbs)

	return nil
}

func (p *pipeline) process(ctx context.Context, record kafka.Record) error {
	source, ok := p.engine.topology.Source(record.Topic())
	if !ok {
		return errors.Wrapf(ErrUnknownTopic, `no source for topic [%s]`, record.Topic())
	}

	enc := source.Encoders()
	keyEnc, valEnc := p.engine.encoders(enc.Key, enc.Value)

	key, err := decode(keyEnc, record.Key())
	if err != nil {
		return errors.Wrapf(err, `key decode error, source [%s]`, source.Name())
	}

	value, err := decode(valEnc, record.Value())
	if err != nil {
		return errors.Wrapf(err, `value decode error, source [%s]`, source.Name())
	}

	pCtx := &processorContext{
		Context:   ctx,
		pipeline:  p,
		record:    record,
		timestamp: p.engine.extractor(record),
		node:      source.Name(),
	}

	return pCtx.Forward(key, value)
}

func (p *pipeline) close() error {
	var err error
	for _, proc := range p.processors {
		if closeable, ok := proc.(topology.CloseableProcessor); ok {
			err = multierr.Append(err, closeable.Close())
		}
	}

	return err
}

func decode(enc encoding.Encoder, data []byte) (interface{}, error) {
	if data == nil {
		return nil, nil
	}

	return enc.Decode(data)
}

func encode(enc encoding.Encoder, v interface{}) ([]byte, error) {
	if v == nil {
		return nil, nil
	}

	return enc.Encode(v)
}
