package lifecycle

import (
	"context"
	"fmt"
	"sync"

	"github.com/gmbyapa/kfactory/pkg/errors"
	"github.com/tryfix/log"
	"go.uber.org/multierr"
)

// Startable is a component with a start and stop lifecycle. Start and Stop
// must be idempotent.
type Startable interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	IsRunning() bool
}

var (
	ErrDuplicateComponent = errors.Sentinel(`component already registered`)
	ErrUnknownComponent   = errors.Sentinel(`unknown component`)
)

type ComponentStatus struct {
	Name    string `json:"name"`
	Running bool   `json:"running"`
}

type component struct {
	name string
	Startable
}

// Manager starts components in registration order and stops them in reverse.
// Every lifecycle call is serialized.
type Manager struct {
	opMu       sync.Mutex
	mu         sync.RWMutex
	components []*component
	running    bool
	logger     log.Logger
}

func NewManager(logger log.Logger) *Manager {
	return &Manager{
		logger: logger.NewLog(log.Prefixed(`Lifecycle`)),
	}
}

func (m *Manager) Register(name string, c Startable) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, cmp := range m.components {
		if cmp.name == name {
			return errors.Wrapf(ErrDuplicateComponent, `[%s]`, name)
		}
	}

	m.components = append(m.components, &component{name: name, Startable: c})

	return nil
}

// Start starts every component in order. When a component fails the already
// started ones are stopped in reverse order.
func (m *Manager) Start(ctx context.Context) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	components := m.list()
	for i, cmp := range components {
		if err := cmp.Start(ctx); err != nil {
			m.logger.Error(fmt.Sprintf(`component [%s] start failed due to %s, rolling back`, cmp.name, err))
			if stopErr := m.stop(ctx, components[:i]); stopErr != nil {
				m.logger.Warn(fmt.Sprintf(`rollback error %s`, stopErr))
			}

			return errors.Wrapf(err, `component [%s] start failed`, cmp.name)
		}

		m.logger.Info(fmt.Sprintf(`component [%s] started`, cmp.name))
	}

	m.mu.Lock()
	m.running = true
	m.mu.Unlock()

	return nil
}

// Stop stops every component in reverse order. All components are stopped
// even when some fail, the errors are combined.
func (m *Manager) Stop(ctx context.Context) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	m.running = false
	m.mu.Unlock()

	return m.stop(ctx, m.list())
}

func (m *Manager) stop(ctx context.Context, components []*component) error {
	var err error
	for i := len(components) - 1; i >= 0; i-- {
		cmp := components[i]
		if stopErr := cmp.Stop(ctx); stopErr != nil {
			m.logger.Error(fmt.Sprintf(`component [%s] stop failed due to %s`, cmp.name, stopErr))
			err = multierr.Append(err, errors.Wrapf(stopErr, `component [%s] stop failed`, cmp.name))
			continue
		}

		m.logger.Info(fmt.Sprintf(`component [%s] stopped`, cmp.name))
	}

	return err
}

func (m *Manager) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.running
}

func (m *Manager) StartComponent(ctx context.Context, name string) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	cmp, err := m.component(name)
	if err != nil {
		return err
	}

	return cmp.Start(ctx)
}

func (m *Manager) StopComponent(ctx context.Context, name string) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	cmp, err := m.component(name)
	if err != nil {
		return err
	}

	return cmp.Stop(ctx)
}

func (m *Manager) Component(name string) (Startable, error) {
	cmp, err := m.component(name)
	if err != nil {
		return nil, err
	}

	return cmp.Startable, nil
}

func (m *Manager) Components() []ComponentStatus {
	components := m.list()

	var list []ComponentStatus
	for _, cmp := range components {
		list = append(list, ComponentStatus{Name: cmp.name, Running: cmp.IsRunning()})
	}

	return list
}

func (m *Manager) list() []*component {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return append([]*component{}, m.components...)
}

func (m *Manager) component(name string) (*component, error) {
	for _, cmp := range m.list() {
		if cmp.name == name {
			return cmp, nil
		}
	}

	return nil, errors.Wrapf(ErrUnknownComponent, `[%s]`, name)
}
