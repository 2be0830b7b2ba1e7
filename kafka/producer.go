/**
 * Copyright 2020 TryFix Engineering.
 * All rights reserved.
 * Authors:
 *    Gayan Yapa (gmbyapa@gmail.com)
 */

package kafka

import (
	"context"
	"github.com/tryfix/log"
	"github.com/tryfix/metrics"
)

type RequiredAcks int

const (
	// NoResponse doesn't send any response, the TCP ACK is all you get.
	NoResponse RequiredAcks = 0

	// WaitForLeader waits for only the local commit to succeed before responding.
	WaitForLeader RequiredAcks = 1

	// WaitForAll waits for all in-sync replicas to commit before responding.
	// The minimum number of in-sync replicas is configured on the broker via
	// the `min.insync.replicas` configuration key.
	WaitForAll RequiredAcks = -1
)

const PartitionAny = -1

func (ack RequiredAcks) String() string {
	a := `NoResponse`

	if ack == WaitForLeader {
		a = `WaitForLeader`
	}

	if ack == WaitForAll {
		a = `WaitForAll`
	}

	return a
}

type ProducerConfig struct {
	Id               string
	BootstrapServers []string
	Version          string
	Acks             RequiredAcks
	Idempotent       bool
	Logger           log.Logger
	MetricsReporter  metrics.Reporter
}

func NewProducerConfig() *ProducerConfig {
	return &ProducerConfig{
		Acks:            WaitForAll,
		Idempotent:      true,
		Logger:          log.NewNoopLogger(),
		MetricsReporter: metrics.NoopReporter(),
	}
}

// ProducerBuilder creates a Producer from a config. The engine calls it once per handle.
type ProducerBuilder func(config *ProducerConfig) (Producer, error)

type Producer interface {
	ProduceSync(ctx context.Context, record Record) (partition int32, offset int64, err error)
	Close() error
}
