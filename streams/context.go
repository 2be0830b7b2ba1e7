package streams

import (
	"context"
	"time"

	"github.com/gmbyapa/kfactory/kafka"
	"github.com/gmbyapa/kfactory/pkg/errors"
	"github.com/gmbyapa/kfactory/streams/stores"
	"github.com/gmbyapa/kfactory/streams/topology"
)

// processorContext is bound to a single record and the node currently processing it.
type processorContext struct {
	context.Context
	pipeline  *pipeline
	record    kafka.Record
	timestamp time.Time
	node      string
}

func (c *processorContext) Forward(key, value interface{}) error {
	for _, child := range c.pipeline.engine.children[c.node] {
		if err := c.forwardTo(child, key, value); err != nil {
			return err
		}
	}

	return nil
}

func (c *processorContext) ForwardTo(child string, key, value interface{}) error {
	for _, ch := range c.pipeline.engine.children[c.node] {
		if ch == child {
			return c.forwardTo(child, key, value)
		}
	}

	return errors.Wrapf(ErrUnknownChild, `[%s] is not a child of [%s]`, child, c.node)
}

func (c *processorContext) forwardTo(child string, key, value interface{}) error {
	if sink, ok := c.pipeline.engine.sinks[child]; ok {
		return c.produce(sink, key, value)
	}

	proc, ok := c.pipeline.processors[child]
	if !ok {
		return errors.Wrapf(ErrUnknownChild, `processor [%s] does not exist`, child)
	}

	next := *c
	next.node = child
	if err := proc.Process(&next, key, value); err != nil {
		return errors.Wrapf(err, `processor [%s] failed`, child)
	}

	return nil
}

func (c *processorContext) produce(sink *topology.Sink, key, value interface{}) error {
	enc := sink.Encoders()
	keyEnc, valEnc := c.pipeline.engine.encoders(enc.Key, enc.Value)

	k, err := encode(keyEnc, key)
	if err != nil {
		return errors.Wrapf(err, `key encode error, sink [%s]`, sink.Name())
	}

	v, err := encode(valEnc, value)
	if err != nil {
		return errors.Wrapf(err, `value encode error, sink [%s]`, sink.Name())
	}

	record := kafka.NewRecord(c, k, v, kafka.RecordMeta{
		Topic:     sink.Topic(),
		Partition: kafka.PartitionAny,
		Timestamp: c.timestamp,
		Headers:   c.record.Headers(),
	})

	if _, _, err := c.pipeline.engine.producer.ProduceSync(c, record); err != nil {
		return errors.Wrapf(err, `produce error, sink [%s]`, sink.Name())
	}

	return nil
}

func (c *processorContext) Store(name string) (stores.Store, error) {
	for _, str := range c.pipeline.engine.topology.StoresOf(c.node) {
		if str == name {
			return c.pipeline.engine.stores[name], nil
		}
	}

	return nil, errors.Wrapf(ErrStoreNotConnected, `store [%s], processor [%s]`, name, c.node)
}

func (c *processorContext) Record() kafka.RecordMeta {
	return kafka.RecordMeta{
		Topic:     c.record.Topic(),
		Partition: c.record.Partition(),
		Offset:    c.record.Offset(),
		Timestamp: c.record.Timestamp(),
		Headers:   c.record.Headers(),
	}
}

func (c *processorContext) Timestamp() time.Time {
	return c.timestamp
}
