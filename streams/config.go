/**
 * Copyright 2020 TryFix Engineering.
 * All rights reserved.
 * Authors:
 *    Gayan Yapa (gmbyapa@gmail.com)
 */

package streams

import (
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/Shopify/sarama"
	"github.com/gmbyapa/kfactory/kafka"
	"github.com/gmbyapa/kfactory/pkg/errors"
	"github.com/gmbyapa/kfactory/streams/encoding"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	// ConfApplicationId is used as the consumer group id and the client id prefix
	ConfApplicationId = `application.id`
	// ConfBootstrapServers a list (or a comma separated string) of kafka brokers
	ConfBootstrapServers          = `bootstrap.servers`
	ConfDefaultKeySerde           = `default.key.serde`
	ConfDefaultValueSerde         = `default.value.serde`
	ConfDefaultTimestampExtractor = `default.timestamp.extractor`
	ConfKafkaVersion              = `kafka.version`
	ConfConsumerOffsetsInitial    = `consumer.offsets.initial`
	// ConfProcessingConsumerCount number of group consumers per engine handle
	ConfProcessingConsumerCount = `processing.consumer.count`
	ConfStateBackend            = `state.backend`
	ConfStateDir                = `state.dir`
	// ConfShutdownDrainTimeout bounds how long an engine handle waits for in-flight records on close
	ConfShutdownDrainTimeout = `shutdown.drain.timeout`
	ConfHttpAddress          = `http.address`
	ConfLogLevel             = `log.level`
)

const (
	StateBackendMemory = `memory`
	StateBackendPebble = `pebble`
	StateBackendBadger = `badger`
)

var defaults = map[string]interface{}{
	ConfDefaultTimestampExtractor: TimestampExtractorRecord,
	ConfKafkaVersion:              `2.4.0`,
	ConfConsumerOffsetsInitial:    `earliest`,
	ConfProcessingConsumerCount:   1,
	ConfStateBackend:              StateBackendMemory,
	ConfStateDir:                  `storage`,
	ConfShutdownDrainTimeout:      `10s`,
	ConfHttpAddress:               `:8080`,
	ConfLogLevel:                  `INFO`,
}

// OptionError reports an invalid or missing configuration option.
type OptionError struct {
	Option string
	Reason string
}

func (e *OptionError) Error() string {
	return fmt.Sprintf(`[%s] %s`, e.Option, e.Reason)
}

// Config is an immutable set of options. It has no setters, every value is
// fixed when the Config is created.
type Config struct {
	k *koanf.Koanf
}

// NewConfig copies values into a new Config and applies defaults for the
// missing options.
func NewConfig(values map[string]interface{}) (*Config, error) {
	k := koanf.New(`.`)
	for key, val := range values {
		if list, ok := val.([]string); ok {
			val = append([]string{}, list...)
		}

		if err := k.Set(key, val); err != nil {
			return nil, errors.Wrapf(err, `option [%s] cannot be set`, key)
		}
	}

	if err := applyDefaults(k); err != nil {
		return nil, err
	}

	return &Config{k: k}, nil
}

// LoadConfig merges a YAML file (if present) with environment variables.
// Variables are matched as <envPrefix><KEY> where `__` separates key segments,
// eg: KFACTORY_APPLICATION__ID.
func LoadConfig(path, envPrefix string) (*Config, error) {
	k := koanf.New(`.`)
	if path != `` {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, errors.Wrapf(err, `config file [%s] load error`, path)
		}
	}

	if envPrefix != `` {
		if err := k.Load(env.Provider(envPrefix, `.`, func(s string) string {
			return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, envPrefix)), `__`, `.`)
		}), nil); err != nil {
			return nil, errors.Wrap(err, `env config load error`)
		}
	}

	if err := applyDefaults(k); err != nil {
		return nil, err
	}

	return &Config{k: k}, nil
}

func applyDefaults(k *koanf.Koanf) error {
	for key, val := range defaults {
		if k.Exists(key) {
			continue
		}

		if err := k.Set(key, val); err != nil {
			return errors.Wrapf(err, `default of [%s] cannot be set`, key)
		}
	}

	return nil
}

func (c *Config) Has(key string) bool {
	return c.k.Exists(key)
}

func (c *Config) String(key string) string {
	return c.k.String(key)
}

func (c *Config) Int(key string) int {
	return c.k.Int(key)
}

func (c *Config) Duration(key string) time.Duration {
	return c.k.Duration(key)
}

// Strings reads a list option. A plain string is split by commas.
func (c *Config) Strings(key string) []string {
	var values []string
	switch v := c.k.Get(key).(type) {
	case string:
		values = strings.Split(v, `,`)
	case []string:
		values = v
	case []interface{}:
		for _, val := range v {
			values = append(values, fmt.Sprint(val))
		}
	}

	var list []string
	for _, val := range values {
		if val = strings.TrimSpace(val); val != `` {
			list = append(list, val)
		}
	}

	return list
}

// All returns a flattened copy of every option.
func (c *Config) All() map[string]interface{} {
	return c.k.All()
}

func (c *Config) ApplicationId() string {
	return c.String(ConfApplicationId)
}

func (c *Config) BootstrapServers() []string {
	return c.Strings(ConfBootstrapServers)
}

func (c *Config) KeyEncoder() (encoding.Encoder, error) {
	return encoding.ByName(c.String(ConfDefaultKeySerde))
}

func (c *Config) ValueEncoder() (encoding.Encoder, error) {
	return encoding.ByName(c.String(ConfDefaultValueSerde))
}

func (c *Config) TimestampExtractor() (TimestampExtractor, error) {
	return TimestampExtractorByName(c.String(ConfDefaultTimestampExtractor))
}

func (c *Config) InitialOffset() kafka.Offset {
	if c.String(ConfConsumerOffsetsInitial) == `latest` {
		return kafka.Latest
	}

	return kafka.Earliest
}

func (c *Config) DrainTimeout() time.Duration {
	return c.Duration(ConfShutdownDrainTimeout)
}

// Validate checks identity, serialization and runtime options. The returned
// error is an *OptionError naming the first offending option.
func (c *Config) Validate() error {
	if c.ApplicationId() == `` {
		return &OptionError{Option: ConfApplicationId, Reason: `cannot be empty`}
	}

	if len(c.BootstrapServers()) < 1 {
		return &OptionError{Option: ConfBootstrapServers, Reason: `cannot be empty`}
	}

	for _, opt := range []string{ConfDefaultKeySerde, ConfDefaultValueSerde} {
		name := c.String(opt)
		if name == `` {
			return &OptionError{Option: opt, Reason: `cannot be empty`}
		}

		if _, err := encoding.ByName(name); err != nil {
			return &OptionError{Option: opt, Reason: fmt.Sprintf(`unknown encoder [%s], supported %v`, name, encoding.Names())}
		}
	}

	if _, err := c.TimestampExtractor(); err != nil {
		return &OptionError{Option: ConfDefaultTimestampExtractor, Reason: err.Error()}
	}

	if _, err := sarama.ParseKafkaVersion(c.String(ConfKafkaVersion)); err != nil {
		return &OptionError{Option: ConfKafkaVersion, Reason: err.Error()}
	}

	switch c.String(ConfConsumerOffsetsInitial) {
	case `earliest`, `latest`:
	default:
		return &OptionError{Option: ConfConsumerOffsetsInitial, Reason: `needs to be earliest or latest`}
	}

	if c.Int(ConfProcessingConsumerCount) < 1 {
		return &OptionError{Option: ConfProcessingConsumerCount, Reason: `needs to be greater than zero`}
	}

	switch c.String(ConfStateBackend) {
	case StateBackendMemory, StateBackendPebble, StateBackendBadger:
	default:
		return &OptionError{Option: ConfStateBackend, Reason: `needs to be one of memory, pebble or badger`}
	}

	if c.DrainTimeout() <= 0 {
		return &OptionError{Option: ConfShutdownDrainTimeout, Reason: `needs to be a positive duration`}
	}

	return nil
}
