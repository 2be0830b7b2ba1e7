package async

import (
	"context"
	"errors"
	"fmt"
	"github.com/tryfix/log"
	"sync"
)

// Fn is a function that can be run asynchronously.
type Fn func(*Opts) error

// Opts contains options for running a function.
type Opts struct {
	// stopping is closed when the group starts shutting down.
	stopping <-chan struct{}

	// readyOnce ensures that Ready() can only be called once.
	readyOnce sync.Once

	// ready is closed when the function is ready(eg: subscribed, stores restored) to run.
	ready chan struct{}
}

// Stopping returns a channel that is closed when the function should stop.
func (opts *Opts) Stopping() <-chan struct{} {
	return opts.stopping
}

// Context returns a context which is cancelled once the group starts stopping.
func (opts *Opts) Context() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-opts.stopping:
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}

// Ready signals that the function is ready to run.
func (opts *Opts) Ready() {
	opts.readyOnce.Do(func() {
		close(opts.ready)
	})
}

var ErrInterrupted = errors.New(`interrupted`)

// RunGroup runs a group of functions asynchronously. The first failing function
// stops the whole group.
type RunGroup struct {
	fns          []Fn
	wg           *sync.WaitGroup
	readyWg      *sync.WaitGroup
	stopping     chan struct{}
	stopped      chan struct{}
	shutDownOnce *sync.Once
	mu           sync.Mutex
	err          error
	logger       log.Logger
	shuttingDown bool
}

func NewRunGroup(logger log.Logger, fns ...Fn) *RunGroup {
	tg := &RunGroup{
		wg:           new(sync.WaitGroup),
		readyWg:      new(sync.WaitGroup),
		stopping:     make(chan struct{}),
		stopped:      make(chan struct{}),
		shutDownOnce: &sync.Once{},
		logger:       logger.NewLog(log.Prefixed(`AsyncGroup`)),
	}

	for _, fn := range fns {
		tg.Add(fn)
	}

	return tg
}

// Add adds a function to the RunGroup. The function will be executed when the Run method is called.
// Note: RunGroup does not support dynamically adding functions to a running group.
func (tg *RunGroup) Add(fn Fn) *RunGroup {
	tg.readyWg.Add(1)
	tg.fns = append(tg.fns, fn)
	return tg
}

// Run executes every function on its own goroutine and blocks until all of them return.
func (tg *RunGroup) Run() error {
	tg.wg.Add(len(tg.fns))

	for _, fn := range tg.fns {
		ready := make(chan struct{})

		go func() {
			<-ready
			tg.readyWg.Done()
		}()

		go func(fn Fn) {
			defer LogPanicTrace(tg.logger)

			opts := &Opts{
				stopping: tg.stopping,
				ready:    ready,
			}

			if err := fn(opts); err != nil {
				tg.setErr(err)
				tg.notifyShutDown(err)
			}

			// When function returns make it ready anyway
			opts.Ready()
			tg.wg.Done()
		}(fn)
	}

	tg.wg.Wait()

	close(tg.stopped)

	return tg.Err()
}

// Err returns the first error returned by a function in the group.
func (tg *RunGroup) Err() error {
	tg.mu.Lock()
	defer tg.mu.Unlock()
	return tg.err
}

func (tg *RunGroup) setErr(err error) {
	tg.mu.Lock()
	defer tg.mu.Unlock()
	if tg.err == nil {
		tg.err = err
	}
}

func (tg *RunGroup) notifyShutDown(err error) {
	tg.shutDownOnce.Do(func() {
		if err != nil {
			tg.logger.Error(fmt.Sprintf(`Processes stopping due to %s`, err))
		} else {
			tg.logger.Info(`Interrupted, Processes stopping...`)
		}

		tg.mu.Lock()
		tg.shuttingDown = true
		tg.mu.Unlock()
		close(tg.stopping)
	})
}

// Ready blocks until every function has signaled readiness (or returned).
func (tg *RunGroup) Ready() error {
	tg.readyWg.Wait()

	tg.mu.Lock()
	defer tg.mu.Unlock()
	if tg.err == nil && tg.shuttingDown {
		return ErrInterrupted
	}

	return tg.err
}

// Stopped is closed once every function in the group has returned.
func (tg *RunGroup) Stopped() <-chan struct{} {
	return tg.stopped
}

// Stop signals all functions to stop and waits for them.
func (tg *RunGroup) Stop() {
	tg.notifyShutDown(nil)
	defer tg.logger.Info(`Processes stopped`)

	<-tg.stopped
}

// StopContext signals all functions to stop and waits until they return or ctx is done.
func (tg *RunGroup) StopContext(ctx context.Context) error {
	tg.notifyShutDown(nil)

	select {
	case <-tg.stopped:
		tg.logger.Info(`Processes stopped`)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
