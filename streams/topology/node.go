package topology

import (
	"context"
	"github.com/gmbyapa/kfactory/kafka"
	"github.com/gmbyapa/kfactory/streams/encoding"
	"github.com/gmbyapa/kfactory/streams/stores"
	"time"
)

type NodeKind string

const (
	KindSource    NodeKind = `source`
	KindProcessor NodeKind = `processor`
	KindSink      NodeKind = `sink`
)

// Encoders holds per node encoders. A nil encoder falls back to the configured default.
type Encoders struct {
	Key, Value encoding.Encoder
}

// ProcessorContext is handed to a Processor for every record it processes.
type ProcessorContext interface {
	context.Context
	// Forward passes the key value pair to every child node.
	Forward(key, value interface{}) error
	// ForwardTo passes the key value pair to the named child only.
	ForwardTo(child string, key, value interface{}) error
	// Store returns a state store attached to the current processor.
	Store(name string) (stores.Store, error)
	// Record returns the metadata of the record being processed.
	Record() kafka.RecordMeta
	// Timestamp returns the record timestamp resolved by the configured extractor.
	Timestamp() time.Time
}

type Processor interface {
	Process(ctx ProcessorContext, key, value interface{}) error
}

// CloseableProcessor is closed when the engine handle owning it drains.
type CloseableProcessor interface {
	Processor
	Close() error
}

type ProcessorFunc func(ctx ProcessorContext, key, value interface{}) error

func (fn ProcessorFunc) Process(ctx ProcessorContext, key, value interface{}) error {
	return fn(ctx, key, value)
}

// ProcessorSupplier creates a new Processor instance. Every engine handle calls
// it once per processor node.
type ProcessorSupplier func() Processor

// Supply wraps a stateless ProcessorFunc as a supplier.
func Supply(fn ProcessorFunc) ProcessorSupplier {
	return func() Processor {
		return fn
	}
}

type Source struct {
	name     string
	topic    string
	encoders Encoders
}

func (s *Source) Name() string       { return s.name }
func (s *Source) Topic() string      { return s.topic }
func (s *Source) Encoders() Encoders { return s.encoders }

type SourceOption func(source *Source)

func ConsumeWithKeyEncoder(encoder encoding.Encoder) SourceOption {
	return func(source *Source) {
		source.encoders.Key = encoder
	}
}

func ConsumeWithValEncoder(encoder encoding.Encoder) SourceOption {
	return func(source *Source) {
		source.encoders.Value = encoder
	}
}

type ProcessorNode struct {
	name     string
	supplier ProcessorSupplier
	parents  []string
}

func (p *ProcessorNode) Name() string      { return p.name }
func (p *ProcessorNode) Parents() []string { return append([]string{}, p.parents...) }

// New creates a fresh processor instance.
func (p *ProcessorNode) New() Processor { return p.supplier() }

type Sink struct {
	name     string
	topic    string
	parents  []string
	encoders Encoders
}

func (s *Sink) Name() string       { return s.name }
func (s *Sink) Topic() string      { return s.topic }
func (s *Sink) Parents() []string  { return append([]string{}, s.parents...) }
func (s *Sink) Encoders() Encoders { return s.encoders }

type SinkOption func(sink *Sink)

func ProduceWithKeyEncoder(encoder encoding.Encoder) SinkOption {
	return func(sink *Sink) {
		sink.encoders.Key = encoder
	}
}

func ProduceWithValEncoder(encoder encoding.Encoder) SinkOption {
	return func(sink *Sink) {
		sink.encoders.Value = encoder
	}
}

type Store struct {
	name       string
	encoders   Encoders
	processors []string
}

func (s *Store) Name() string         { return s.name }
func (s *Store) Encoders() Encoders   { return s.encoders }
func (s *Store) Processors() []string { return append([]string{}, s.processors...) }
