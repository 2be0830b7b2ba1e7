/**
 * Copyright 2020 TryFix Engineering.
 * All rights reserved.
 * Authors:
 *    Gayan Yapa (gmbyapa@gmail.com)
 */

package memory

import (
	"github.com/gmbyapa/kfactory/backend"
	"github.com/tryfix/metrics"
	"sync"
	"time"
)

type memoryRecord struct {
	value     []byte
	createdAt time.Time
	expiry    time.Duration
}

func (r memoryRecord) expired() bool {
	return r.expiry > 0 && time.Since(r.createdAt) > r.expiry
}

type Config struct {
	MetricsReporter metrics.Reporter
}

func NewConfig() *Config {
	conf := new(Config)
	conf.parse()

	return conf
}

func (c *Config) parse() {
	if c.MetricsReporter == nil {
		c.MetricsReporter = metrics.NoopReporter()
	}
}

type memory struct {
	name    string
	mu      sync.RWMutex
	records map[string]memoryRecord
	metrics struct {
		readLatency   metrics.Observer
		updateLatency metrics.Observer
		deleteLatency metrics.Observer
	}
}

func Builder(config *Config) backend.Builder {
	return func(name string) (backend.Backend, error) {
		return NewMemoryBackend(name, config), nil
	}
}

func NewMemoryBackend(name string, config *Config) backend.Backend {
	config.parse()
	m := &memory{
		name:    name,
		records: map[string]memoryRecord{},
	}

	constLabels := map[string]string{`name`: name, `type`: `memory`}
	m.metrics.readLatency = config.MetricsReporter.Observer(metrics.MetricConf{Path: `backend_read_latency_microseconds`, ConstLabels: constLabels})
	m.metrics.updateLatency = config.MetricsReporter.Observer(metrics.MetricConf{Path: `backend_update_latency_microseconds`, ConstLabels: constLabels})
	m.metrics.deleteLatency = config.MetricsReporter.Observer(metrics.MetricConf{Path: `backend_delete_latency_microseconds`, ConstLabels: constLabels})

	return m
}

func (m *memory) Name() string {
	return m.name
}

func (m *memory) String() string {
	return `memory`
}

func (m *memory) Persistent() bool {
	return false
}

func (m *memory) Set(key []byte, value []byte, expiry time.Duration) error {
	defer func(begin time.Time) {
		m.metrics.updateLatency.Observe(float64(time.Since(begin).Microseconds()), nil)
	}(time.Now())

	m.mu.Lock()
	defer m.mu.Unlock()

	m.records[string(key)] = memoryRecord{
		value:     value,
		expiry:    expiry,
		createdAt: time.Now(),
	}

	return nil
}

func (m *memory) Get(key []byte) ([]byte, error) {
	defer func(begin time.Time) {
		m.metrics.readLatency.Observe(float64(time.Since(begin).Microseconds()), nil)
	}(time.Now())

	m.mu.RLock()
	record, ok := m.records[string(key)]
	m.mu.RUnlock()
	if !ok {
		return nil, nil
	}

	if record.expired() {
		return nil, m.Delete(key)
	}

	return record.value, nil
}

func (m *memory) Delete(key []byte) error {
	defer func(begin time.Time) {
		m.metrics.deleteLatency.Observe(float64(time.Since(begin).Microseconds()), nil)
	}(time.Now())

	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, string(key))

	return nil
}

func (m *memory) Flush() error { return nil }

func (m *memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = map[string]memoryRecord{}
	return nil
}
