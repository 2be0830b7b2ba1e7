package factory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alecthomas/assert/v2"
	"github.com/bxcodec/faker/v3"
	"github.com/gmbyapa/kfactory/kafka"
	"github.com/gmbyapa/kfactory/kafka/mocks"
	"github.com/gmbyapa/kfactory/streams"
	"github.com/gmbyapa/kfactory/streams/encoding"
	"github.com/gmbyapa/kfactory/streams/stores"
	"github.com/gmbyapa/kfactory/streams/topology"
)

type fakeEngine struct {
	id       string
	startErr error
	closeFn  func(ctx context.Context) error
	released chan struct{}
	mu       sync.Mutex
	starts   int
	closes   int
}

func (e *fakeEngine) ID() string { return e.id }

func (e *fakeEngine) Start(context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.starts++
	return e.startErr
}

func (e *fakeEngine) Close(ctx context.Context) error {
	e.mu.Lock()
	e.closes++
	e.mu.Unlock()
	if e.closeFn != nil {
		return e.closeFn(ctx)
	}
	return nil
}

func (e *fakeEngine) Running() bool { return false }

var closedChan = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

func (e *fakeEngine) Done() <-chan struct{} {
	if e.released != nil {
		return e.released
	}
	return closedChan
}

func (e *fakeEngine) Store(name string) (stores.Store, error) {
	return nil, topology.ErrUnknownStore
}

type fakeProvider struct {
	mu      sync.Mutex
	engines []*fakeEngine
	err     error
	setup   func(e *fakeEngine)
}

func (p *fakeProvider) provide(_ *topology.Topology, _ *streams.Config) (streams.Engine, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}

	e := &fakeEngine{id: fmt.Sprintf(`engine-%d`, len(p.engines))}
	if p.setup != nil {
		p.setup(e)
	}
	p.engines = append(p.engines, e)

	return e, nil
}

func testConfig(t *testing.T, extra map[string]interface{}) *streams.Config {
	t.Helper()
	values := map[string]interface{}{
		streams.ConfApplicationId:     `factory-test`,
		streams.ConfBootstrapServers:  `localhost:9092`,
		streams.ConfDefaultKeySerde:   `string`,
		streams.ConfDefaultValueSerde: `string`,
	}
	for k, v := range extra {
		values[k] = v
	}

	conf, err := streams.NewConfig(values)
	assert.NoError(t, err)

	return conf
}

func testBuilder(t *testing.T) *topology.Builder {
	t.Helper()
	b := topology.NewBuilder()
	assert.NoError(t, b.AddSource(`words`, `words`))
	assert.NoError(t, b.AddSink(`echo`, `echo`, []string{`words`}))

	return b
}

func newTestFactory(t *testing.T, provider *fakeProvider, opts ...Option) *Factory {
	t.Helper()
	f, err := New(testConfig(t, nil), testBuilder(t), append([]Option{WithEngineProvider(provider.provide)}, opts...)...)
	assert.NoError(t, err)

	return f
}

func TestNew_ConfigurationError(t *testing.T) {
	cases := map[string]map[string]interface{}{
		streams.ConfApplicationId:             {streams.ConfApplicationId: ``},
		streams.ConfBootstrapServers:          {streams.ConfBootstrapServers: ``},
		streams.ConfDefaultKeySerde:           {streams.ConfDefaultKeySerde: `protobuf`},
		streams.ConfDefaultValueSerde:         {streams.ConfDefaultValueSerde: ``},
		streams.ConfDefaultTimestampExtractor: {streams.ConfDefaultTimestampExtractor: `log-append`},
	}

	for option, values := range cases {
		t.Run(option, func(t *testing.T) {
			_, err := New(testConfig(t, values), testBuilder(t))
			var confErr *ConfigurationError
			assert.True(t, errors.As(err, &confErr))
			assert.Equal(t, option, confErr.Option)
		})
	}

	t.Run(`nil builder`, func(t *testing.T) {
		_, err := New(testConfig(t, nil), nil)
		var confErr *ConfigurationError
		assert.True(t, errors.As(err, &confErr))
	})
}

func TestFactory_StateSequences(t *testing.T) {
	type op string
	const start, stop op = `start`, `stop`

	cases := []struct {
		ops   []op
		state State
		// number of handles created
		handles int
	}{
		{ops: nil, state: StateCreated, handles: 0},
		{ops: []op{stop}, state: StateCreated, handles: 0},
		{ops: []op{start}, state: StateRunning, handles: 1},
		{ops: []op{start, start}, state: StateRunning, handles: 1},
		{ops: []op{start, stop}, state: StateStopped, handles: 1},
		{ops: []op{start, stop, stop}, state: StateStopped, handles: 1},
		{ops: []op{start, stop, start}, state: StateRunning, handles: 2},
		{ops: []op{start, start, stop, start, start, stop}, state: StateStopped, handles: 2},
	}

	for _, c := range cases {
		t.Run(fmt.Sprint(c.ops), func(t *testing.T) {
			provider := new(fakeProvider)
			f := newTestFactory(t, provider)
			for _, o := range c.ops {
				switch o {
				case start:
					assert.NoError(t, f.Start(context.Background()))
				case stop:
					assert.NoError(t, f.Stop(context.Background()))
				}
			}

			assert.Equal(t, c.state, f.State())
			assert.Equal(t, c.state == StateRunning, f.IsRunning())
			assert.Equal(t, c.handles, len(provider.engines))
			assert.Equal(t, c.state == StateRunning, f.Handle() != nil)
		})
	}
}

func TestFactory_DoubleStart(t *testing.T) {
	provider := new(fakeProvider)
	f := newTestFactory(t, provider)

	assert.NoError(t, f.Start(context.Background()))
	handle := f.Handle()
	assert.NoError(t, f.Start(context.Background()))

	assert.Equal(t, 1, len(provider.engines))
	assert.Equal(t, 1, provider.engines[0].starts)
	assert.Equal(t, handle.ID(), f.Handle().ID())
}

func TestFactory_StopWhenStopped(t *testing.T) {
	provider := new(fakeProvider)
	f := newTestFactory(t, provider)

	assert.NoError(t, f.Stop(context.Background()))
	assert.Equal(t, StateCreated, f.State())

	assert.NoError(t, f.Start(context.Background()))
	assert.NoError(t, f.Stop(context.Background()))
	assert.NoError(t, f.Stop(context.Background()))

	assert.Equal(t, 1, provider.engines[0].closes)
}

func TestFactory_RestartCreatesNewHandle(t *testing.T) {
	provider := new(fakeProvider)
	f := newTestFactory(t, provider)

	assert.NoError(t, f.Start(context.Background()))
	first := f.Handle()
	tp := f.Topology()
	assert.NoError(t, f.Stop(context.Background()))
	assert.Zero(t, f.Handle())

	assert.NoError(t, f.Start(context.Background()))
	second := f.Handle()

	assert.NotEqual(t, first.ID(), second.ID())
	assert.True(t, tp == f.Topology())
	// the stopped handle is never started again
	assert.Equal(t, 1, provider.engines[0].starts)
	assert.Equal(t, 1, provider.engines[0].closes)
}

func TestFactory_TopologyFrozenAfterStart(t *testing.T) {
	provider := new(fakeProvider)
	f := newTestFactory(t, provider)

	assert.NoError(t, f.Builder().AddSink(`before-start`, `other`, []string{`words`}))
	assert.False(t, f.Builder().Frozen())
	assert.Zero(t, f.Topology())

	assert.NoError(t, f.Start(context.Background()))
	assert.True(t, f.Builder().Frozen())

	err := f.Builder().AddSource(`late`, `late`)
	assert.True(t, errors.Is(err, topology.ErrTopologyFrozen))

	assert.NoError(t, f.Stop(context.Background()))
	err = f.Builder().AddSink(`late-sink`, `late`, []string{`words`})
	assert.True(t, errors.Is(err, topology.ErrTopologyFrozen))
}

func TestFactory_StartError(t *testing.T) {
	t.Run(`provider error`, func(t *testing.T) {
		provider := &fakeProvider{err: errors.New(`no engine`)}
		f := newTestFactory(t, provider)

		err := f.Start(context.Background())
		var startErr *EngineStartError
		assert.True(t, errors.As(err, &startErr))
		assert.Equal(t, StateStopped, f.State())
		assert.Zero(t, f.Handle())

		provider.err = nil
		assert.NoError(t, f.Start(context.Background()))
		assert.Equal(t, StateRunning, f.State())
	})

	t.Run(`handle start error`, func(t *testing.T) {
		provider := &fakeProvider{setup: func(e *fakeEngine) {
			e.startErr = errors.New(`broker down`)
		}}
		f := newTestFactory(t, provider)

		err := f.Start(context.Background())
		var startErr *EngineStartError
		assert.True(t, errors.As(err, &startErr))
		assert.Equal(t, StateStopped, f.State())
		assert.False(t, f.IsRunning())
		assert.Zero(t, f.Handle())
		assert.Equal(t, 1, provider.engines[0].closes)

		// no handle ever ran, the builder stays open
		assert.False(t, f.Builder().Frozen())
		assert.Zero(t, f.Topology())
		assert.NoError(t, f.Builder().AddSink(`late-sink`, `late`, []string{`words`}))
	})

	t.Run(`nil handle`, func(t *testing.T) {
		f, err := New(testConfig(t, nil), testBuilder(t), WithEngineProvider(
			func(*topology.Topology, *streams.Config) (streams.Engine, error) {
				return nil, nil
			}))
		assert.NoError(t, err)

		err = f.Start(context.Background())
		var startErr *EngineStartError
		assert.True(t, errors.As(err, &startErr))
		assert.True(t, errors.Is(err, ErrNilHandle))
		assert.Equal(t, StateStopped, f.State())
		assert.False(t, f.Builder().Frozen())
	})

	t.Run(`invalid topology`, func(t *testing.T) {
		provider := new(fakeProvider)
		f, err := New(testConfig(t, nil), topology.NewBuilder(), WithEngineProvider(provider.provide))
		assert.NoError(t, err)

		err = f.Start(context.Background())
		var startErr *EngineStartError
		assert.True(t, errors.As(err, &startErr))
		assert.True(t, errors.Is(err, topology.ErrNoSources))
		assert.False(t, f.Builder().Frozen())
		assert.Equal(t, 0, len(provider.engines))
	})
}

func TestFactory_StopDrainTimeout(t *testing.T) {
	provider := &fakeProvider{setup: func(e *fakeEngine) {
		e.closeFn = func(ctx context.Context) error {
			<-ctx.Done()
			return fmt.Errorf(`engine %s: %w`, e.id, streams.ErrDrainTimeout)
		}
	}}
	f := newTestFactory(t, provider, WithDrainTimeout(20*time.Millisecond))

	assert.NoError(t, f.Start(context.Background()))

	begin := time.Now()
	assert.NoError(t, f.Stop(context.Background()))
	assert.True(t, time.Since(begin) < time.Second)
	assert.Equal(t, StateStopped, f.State())
	assert.Zero(t, f.Handle())
}

func TestFactory_StopCloseError(t *testing.T) {
	closeErr := errors.New(`producer flush failed`)
	provider := &fakeProvider{setup: func(e *fakeEngine) {
		e.closeFn = func(context.Context) error {
			return closeErr
		}
	}}
	f := newTestFactory(t, provider)

	assert.NoError(t, f.Start(context.Background()))

	err := f.Stop(context.Background())
	assert.True(t, errors.Is(err, closeErr))
	assert.Equal(t, StateStopped, f.State())
	assert.Zero(t, f.Handle())

	assert.NoError(t, f.Start(context.Background()))
	assert.Equal(t, 2, len(provider.engines))
}

func TestFactory_StartAwaitsRelease(t *testing.T) {
	released := make(chan struct{})
	provider := &fakeProvider{setup: func(e *fakeEngine) {
		if e.id == `engine-0` {
			e.released = released
		}
	}}
	f := newTestFactory(t, provider, WithDrainTimeout(20*time.Millisecond))

	assert.NoError(t, f.Start(context.Background()))
	assert.NoError(t, f.Stop(context.Background()))

	err := f.Start(context.Background())
	var startErr *EngineStartError
	assert.True(t, errors.As(err, &startErr))
	assert.True(t, errors.Is(err, ErrHandleNotReleased))
	assert.Equal(t, StateStopped, f.State())
	assert.Equal(t, 1, len(provider.engines))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = f.Start(ctx)
	assert.True(t, errors.As(err, &startErr))
	assert.True(t, errors.Is(err, context.Canceled))

	close(released)
	assert.NoError(t, f.Start(context.Background()))
	assert.Equal(t, StateRunning, f.State())
	assert.Equal(t, `engine-1`, f.Handle().ID())
}

func TestWithDrainTimeout_NonPositive(t *testing.T) {
	for _, d := range []time.Duration{0, -time.Second} {
		f := newTestFactory(t, new(fakeProvider), WithDrainTimeout(d))
		assert.Equal(t, 10*time.Second, f.opts.drainTimeout)
	}

	f := newTestFactory(t, new(fakeProvider), WithDrainTimeout(time.Second))
	assert.Equal(t, time.Second, f.opts.drainTimeout)
}

func TestFactory_Describe(t *testing.T) {
	f := newTestFactory(t, new(fakeProvider))

	dot, err := f.Describe()
	assert.NoError(t, err)
	assert.Contains(t, dot, `topic_words`)
}

type sentence struct {
	Text string `faker:"sentence"`
}

// build -> start -> stop -> start against the in memory broker
func TestFactory_Lifecycle(t *testing.T) {
	topics := mocks.NewMockTopics()
	assert.NoError(t, topics.AddTopic(`words`, 1))
	assert.NoError(t, topics.AddTopic(`echo`, 1))

	f, err := New(testConfig(t, nil), testBuilder(t), WithEngineOptions(
		streams.WithGroupConsumerBuilder(mocks.GroupConsumerBuilder(topics)),
		streams.WithProducerBuilder(mocks.ProducerBuilder(topics)),
		streams.WithAdminBuilder(mocks.AdminBuilder(topics)),
	))
	assert.NoError(t, err)
	assert.Equal(t, StateCreated, f.State())

	producer := mocks.NewMockProducer(topics)
	send := func() {
		s := sentence{}
		assert.NoError(t, faker.FakeData(&s))
		_, _, err := producer.ProduceSync(context.Background(),
			kafka.NewRecord(context.Background(), []byte(`k`), []byte(s.Text), kafka.RecordMeta{Topic: `words`}))
		assert.NoError(t, err)
	}

	echoed := func(n int) func() bool {
		return func() bool {
			topic, err := topics.Topic(`echo`)
			assert.NoError(t, err)
			return len(topic.FetchAll()) == n
		}
	}

	assert.NoError(t, f.Start(context.Background()))
	assert.Equal(t, StateRunning, f.State())
	first := f.Handle().ID()

	send()
	waitFor(t, echoed(1))

	assert.NoError(t, f.Stop(context.Background()))
	assert.Equal(t, StateStopped, f.State())

	send()
	assert.NoError(t, f.Start(context.Background()))
	assert.Equal(t, StateRunning, f.State())
	assert.NotEqual(t, first, f.Handle().ID())

	// the new handle continues from the committed offsets
	waitFor(t, echoed(2))

	assert.NoError(t, f.Stop(context.Background()))
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for !cond() {
		select {
		case <-deadline:
			t.Fatal(`condition not met in time`)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

// a handle stopped on a drain timeout keeps its state stores open until its
// processors return, the next handle must not open them concurrently
func TestFactory_RestartAfterDrainTimeout(t *testing.T) {
	for _, backend := range []string{streams.StateBackendPebble, streams.StateBackendBadger} {
		t.Run(backend, func(t *testing.T) {
			topics := mocks.NewMockTopics()
			assert.NoError(t, topics.AddTopic(`words`, 1))
			assert.NoError(t, topics.AddTopic(`echo`, 1))

			entered := make(chan struct{})
			release := make(chan struct{})
			var once sync.Once

			b := topology.NewBuilder()
			assert.NoError(t, b.AddSource(`words`, `words`))
			assert.NoError(t, b.AddProcessor(`count`, topology.Supply(
				func(ctx topology.ProcessorContext, key, value interface{}) error {
					str, err := ctx.Store(`counts`)
					if err != nil {
						return err
					}

					if err := str.Set(ctx, key, 1, 0); err != nil {
						return err
					}

					once.Do(func() { close(entered) })
					<-release

					return ctx.Forward(key, value)
				}), `words`))
			assert.NoError(t, b.AddSink(`echo`, `echo`, []string{`count`}))
			assert.NoError(t, b.AddStore(`counts`, encoding.StringEncoder{}, encoding.IntEncoder{}, `count`))

			conf := testConfig(t, map[string]interface{}{
				streams.ConfStateBackend: backend,
				streams.ConfStateDir:     t.TempDir(),
			})
			f, err := New(conf, b, WithDrainTimeout(50*time.Millisecond), WithEngineOptions(
				streams.WithGroupConsumerBuilder(mocks.GroupConsumerBuilder(topics)),
				streams.WithProducerBuilder(mocks.ProducerBuilder(topics)),
				streams.WithAdminBuilder(mocks.AdminBuilder(topics)),
			))
			assert.NoError(t, err)

			assert.NoError(t, f.Start(context.Background()))
			_, _, err = mocks.NewMockProducer(topics).ProduceSync(context.Background(),
				kafka.NewRecord(context.Background(), []byte(`k`), []byte(`v`), kafka.RecordMeta{Topic: `words`}))
			assert.NoError(t, err)
			<-entered

			first := f.Handle()
			assert.NoError(t, f.Stop(context.Background()))
			assert.Equal(t, StateStopped, f.State())

			err = f.Start(context.Background())
			var startErr *EngineStartError
			assert.True(t, errors.As(err, &startErr))
			assert.True(t, errors.Is(err, ErrHandleNotReleased))
			assert.Equal(t, StateStopped, f.State())

			close(release)
			select {
			case <-first.Done():
			case <-time.After(5 * time.Second):
				t.Fatal(`stopped handle did not release its stores`)
			}

			assert.NoError(t, f.Start(context.Background()))
			assert.Equal(t, StateRunning, f.State())
			assert.NotEqual(t, first.ID(), f.Handle().ID())

			str, err := f.Handle().Store(`counts`)
			assert.NoError(t, err)
			count, err := str.Get(context.Background(), `k`)
			assert.NoError(t, err)
			assert.Equal(t, interface{}(1), count)

			assert.NoError(t, f.Stop(context.Background()))
		})
	}
}
