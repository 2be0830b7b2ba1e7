/**
 * Copyright 2020 TryFix Engineering.
 * All rights reserved.
 * Authors:
 *    Gayan Yapa (gmbyapa@gmail.com)
 */

package badger

import (
	"fmt"
	badgerDB "github.com/dgraph-io/badger/v3"
	"github.com/gmbyapa/kfactory/backend"
	"github.com/gmbyapa/kfactory/pkg/errors"
	"github.com/tryfix/metrics"
	"time"
)

type Config struct {
	StorageDir      string
	InMemory        bool
	MetricsReporter metrics.Reporter
}

func NewConfig() *Config {
	conf := new(Config)
	conf.parse()

	return conf
}

func (c *Config) parse() {
	if c.StorageDir == `` {
		c.StorageDir = `storage`
	}

	if c.MetricsReporter == nil {
		c.MetricsReporter = metrics.NoopReporter()
	}
}

type badger struct {
	name    string
	db      *badgerDB.DB
	metrics struct {
		readLatency   metrics.Observer
		updateLatency metrics.Observer
		deleteLatency metrics.Observer
	}
}

func Builder(config *Config) backend.Builder {
	return func(name string) (backend.Backend, error) {
		return NewBadgerBackend(name, config)
	}
}

func NewBadgerBackend(name string, config *Config) (backend.Backend, error) {
	config.parse()
	storageDir := fmt.Sprintf(`%s/badger/%s`, config.StorageDir, name)
	if config.InMemory {
		storageDir = ``
	}

	db, err := badgerDB.Open(badgerDB.DefaultOptions(storageDir).
		WithLoggingLevel(badgerDB.ERROR).
		WithInMemory(config.InMemory))
	if err != nil {
		return nil, errors.Wrapf(err, `db open error, backend:%s`, name)
	}

	m := &badger{
		name: name,
		db:   db,
	}

	constLabels := map[string]string{`name`: name, `type`: `badger`}
	m.metrics.readLatency = config.MetricsReporter.Observer(metrics.MetricConf{Path: `backend_read_latency_microseconds`, ConstLabels: constLabels})
	m.metrics.updateLatency = config.MetricsReporter.Observer(metrics.MetricConf{Path: `backend_update_latency_microseconds`, ConstLabels: constLabels})
	m.metrics.deleteLatency = config.MetricsReporter.Observer(metrics.MetricConf{Path: `backend_delete_latency_microseconds`, ConstLabels: constLabels})

	return m, nil
}

func (m *badger) Name() string {
	return m.name
}

func (m *badger) String() string {
	return `badger`
}

func (m *badger) Persistent() bool {
	return true
}

func (m *badger) Set(key []byte, value []byte, expiry time.Duration) error {
	defer func(begin time.Time) {
		m.metrics.updateLatency.Observe(float64(time.Since(begin).Microseconds()), nil)
	}(time.Now())

	return m.db.Update(func(txn *badgerDB.Txn) error {
		entry := badgerDB.NewEntry(key, value)
		if expiry > 0 {
			entry = entry.WithTTL(expiry)
		}
		return txn.SetEntry(entry)
	})
}

func (m *badger) Get(key []byte) ([]byte, error) {
	defer func(begin time.Time) {
		m.metrics.readLatency.Observe(float64(time.Since(begin).Microseconds()), nil)
	}(time.Now())

	var v []byte

	if err := m.db.View(func(txn *badgerDB.Txn) error {
		itm, err := txn.Get(key)
		if err != nil {
			if errors.Is(err, badgerDB.ErrKeyNotFound) {
				return nil
			}
			return err
		}

		v, err = itm.ValueCopy(nil)
		return err
	}); err != nil {
		return nil, err
	}

	return v, nil
}

func (m *badger) Delete(key []byte) error {
	defer func(begin time.Time) {
		m.metrics.deleteLatency.Observe(float64(time.Since(begin).Microseconds()), nil)
	}(time.Now())

	return m.db.Update(func(txn *badgerDB.Txn) error {
		err := txn.Delete(key)
		if err != nil && !errors.Is(err, badgerDB.ErrKeyNotFound) {
			return err
		}

		return nil
	})
}

func (m *badger) Flush() error {
	if m.db.Opts().InMemory {
		return nil
	}

	return m.db.Sync()
}

func (m *badger) Close() error {
	return m.db.Close()
}
