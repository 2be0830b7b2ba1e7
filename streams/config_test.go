package streams

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alecthomas/assert/v2"
	"github.com/gmbyapa/kfactory/kafka"
)

func TestNewConfig_Defaults(t *testing.T) {
	conf := testConfig(t, nil)

	assert.NoError(t, conf.Validate())
	assert.Equal(t, 10*time.Second, conf.DrainTimeout())
	assert.Equal(t, 1, conf.Int(ConfProcessingConsumerCount))
	assert.Equal(t, StateBackendMemory, conf.String(ConfStateBackend))
	assert.Equal(t, kafka.Earliest, conf.InitialOffset())
	assert.Equal(t, `2.4.0`, conf.String(ConfKafkaVersion))
}

func TestNewConfig_CopiesInput(t *testing.T) {
	servers := []string{`a:9092`}
	values := map[string]interface{}{
		ConfApplicationId:    `app`,
		ConfBootstrapServers: servers,
	}

	conf, err := NewConfig(values)
	assert.NoError(t, err)

	values[ConfApplicationId] = `changed`
	servers[0] = `changed:9092`

	assert.Equal(t, `app`, conf.ApplicationId())
	assert.Equal(t, []string{`a:9092`}, conf.BootstrapServers())
}

func TestConfig_BootstrapServersString(t *testing.T) {
	conf := testConfig(t, map[string]interface{}{ConfBootstrapServers: `a:9092, b:9092`})
	assert.Equal(t, []string{`a:9092`, `b:9092`}, conf.BootstrapServers())
}

func TestConfig_Validate(t *testing.T) {
	cases := map[string]map[string]interface{}{
		ConfApplicationId:             {ConfApplicationId: ``},
		ConfBootstrapServers:          {ConfBootstrapServers: []string{}},
		ConfDefaultKeySerde:           {ConfDefaultKeySerde: `avro`},
		ConfDefaultValueSerde:         {ConfDefaultValueSerde: ``},
		ConfDefaultTimestampExtractor: {ConfDefaultTimestampExtractor: `event-time`},
		ConfKafkaVersion:              {ConfKafkaVersion: `x.y`},
		ConfConsumerOffsetsInitial:    {ConfConsumerOffsetsInitial: `middle`},
		ConfProcessingConsumerCount:   {ConfProcessingConsumerCount: 0},
		ConfStateBackend:              {ConfStateBackend: `rocksdb`},
		ConfShutdownDrainTimeout:      {ConfShutdownDrainTimeout: `-1s`},
	}

	for option, values := range cases {
		t.Run(option, func(t *testing.T) {
			err := testConfig(t, values).Validate()
			var optErr *OptionError
			assert.True(t, errors.As(err, &optErr))
			assert.Equal(t, option, optErr.Option)
		})
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), `config.yaml`)
	assert.NoError(t, os.WriteFile(path, []byte(`
application:
  id: yaml-app
bootstrap:
  servers: a:9092,b:9092
default:
  key:
    serde: string
  value:
    serde: json
`), 0600))

	t.Setenv(`KFACTORY_TEST_APPLICATION__ID`, `env-app`)
	t.Setenv(`KFACTORY_TEST_SHUTDOWN__DRAIN__TIMEOUT`, `3s`)

	conf, err := LoadConfig(path, `KFACTORY_TEST_`)
	assert.NoError(t, err)
	assert.NoError(t, conf.Validate())

	assert.Equal(t, `env-app`, conf.ApplicationId())
	assert.Equal(t, []string{`a:9092`, `b:9092`}, conf.BootstrapServers())
	assert.Equal(t, `json`, conf.String(ConfDefaultValueSerde))
	assert.Equal(t, 3*time.Second, conf.DrainTimeout())
}

func TestLoadConfig_MissingFile(t *testing.T) {
	conf, err := LoadConfig(filepath.Join(t.TempDir(), `missing.yaml`), ``)
	assert.NoError(t, err)
	assert.Equal(t, `:8080`, conf.String(ConfHttpAddress))
}

func TestTimestampExtractors(t *testing.T) {
	ts := time.Unix(1600000000, 0)
	rec := kafka.NewRecord(nil, nil, nil, kafka.RecordMeta{Timestamp: ts})
	empty := kafka.NewRecord(nil, nil, nil, kafka.RecordMeta{})

	assert.Equal(t, ts, RecordTimestamp(rec))
	assert.Equal(t, ts, RecordOrWallclockTimestamp(rec))
	assert.False(t, RecordOrWallclockTimestamp(empty).IsZero())

	_, err := TimestampExtractorByName(`unknown`)
	assert.True(t, errors.Is(err, ErrUnknownTimestampExtractor))
}
