/**
 * Copyright 2020 TryFix Engineering.
 * All rights reserved.
 * Authors:
 *    Gayan Yapa (gmbyapa@gmail.com)
 */

package pebble

import (
	"fmt"
	pebbleDB "github.com/cockroachdb/pebble"
	"github.com/gmbyapa/kfactory/backend"
	"github.com/gmbyapa/kfactory/pkg/errors"
	"github.com/tryfix/metrics"
	"time"
)

type Config struct {
	MetricsReporter metrics.Reporter
	Dir             string
	Options         *pebbleDB.Options
}

func NewConfig() *Config {
	conf := new(Config)
	conf.Dir = `storage`
	conf.Options = &pebbleDB.Options{}
	conf.parse()

	return conf
}

func (c *Config) parse() {
	if c.MetricsReporter == nil {
		c.MetricsReporter = metrics.NoopReporter()
	}

	if c.Options == nil {
		c.Options = &pebbleDB.Options{}
	}
}

type Pebble struct {
	name    string
	pebble  *pebbleDB.DB
	metrics struct {
		readLatency   metrics.Observer
		updateLatency metrics.Observer
		deleteLatency metrics.Observer
	}
}

func Builder(config *Config) backend.Builder {
	return func(name string) (backend.Backend, error) {
		return NewPebbleBackend(name, config)
	}
}

func NewPebbleBackend(name string, config *Config) (*Pebble, error) {
	config.parse()
	dbName := fmt.Sprintf(`%s/pebble/%s`, config.Dir, name)

	pb, err := pebbleDB.Open(dbName, config.Options)
	if err != nil {
		return nil, errors.Wrapf(err, `db open error, backend:%s`, dbName)
	}

	m := &Pebble{name: name, pebble: pb}

	constLabels := map[string]string{`name`: name, `type`: `pebble`}
	m.metrics.readLatency = config.MetricsReporter.Observer(
		metrics.MetricConf{Path: `backend_read_latency_microseconds`, ConstLabels: constLabels})
	m.metrics.updateLatency = config.MetricsReporter.Observer(
		metrics.MetricConf{Path: `backend_update_latency_microseconds`, ConstLabels: constLabels})
	m.metrics.deleteLatency = config.MetricsReporter.Observer(
		metrics.MetricConf{Path: `backend_delete_latency_microseconds`, ConstLabels: constLabels})

	return m, nil
}

func (p *Pebble) Name() string {
	return p.name
}

func (p *Pebble) String() string {
	return `pebble`
}

func (p *Pebble) Persistent() bool {
	return true
}

func (p *Pebble) Get(key []byte) ([]byte, error) {
	defer func(begin time.Time) {
		p.metrics.readLatency.Observe(float64(time.Since(begin).Microseconds()), nil)
	}(time.Now())

	valP, buf, err := p.pebble.Get(key)
	if err != nil {
		if errors.Is(err, pebbleDB.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	val := make([]byte, len(valP))
	copy(val, valP)

	if err := buf.Close(); err != nil {
		return nil, err
	}

	return val, nil
}

// Set ignores expiry, pebble has no per key TTL.
func (p *Pebble) Set(key []byte, value []byte, _ time.Duration) error {
	defer func(begin time.Time) {
		p.metrics.updateLatency.Observe(float64(time.Since(begin).Microseconds()), nil)
	}(time.Now())

	return p.pebble.Set(key, value, pebbleDB.NoSync)
}

func (p *Pebble) Delete(key []byte) error {
	defer func(begin time.Time) {
		p.metrics.deleteLatency.Observe(float64(time.Since(begin).Microseconds()), nil)
	}(time.Now())

	return p.pebble.Delete(key, pebbleDB.NoSync)
}

func (p *Pebble) Flush() error {
	return p.pebble.Flush()
}

func (p *Pebble) Close() error {
	return p.pebble.Close()
}
