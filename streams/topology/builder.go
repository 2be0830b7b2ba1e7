package topology

import (
	"github.com/gmbyapa/kfactory/pkg/errors"
	"github.com/gmbyapa/kfactory/streams/encoding"
	"sync"
)

// Builder accumulates an append-only topology definition. Once Build is called
// the builder is frozen and every further mutation fails with ErrTopologyFrozen.
type Builder struct {
	mu         sync.Mutex
	nodes      map[string]NodeKind
	topics     map[string]string
	sources    []*Source
	processors []*ProcessorNode
	sinks      []*Sink
	stores     []*Store
	version    uint64
	topology   *Topology
}

func NewBuilder() *Builder {
	return &Builder{
		nodes:  map[string]NodeKind{},
		topics: map[string]string{},
	}
}

func (b *Builder) AddSource(name, topic string, opts ...SourceOption) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.checkNode(name); err != nil {
		return err
	}

	if topic == `` {
		return errors.Wrapf(ErrInvalidNode, `source [%s] topic cannot be empty`, name)
	}

	if src, ok := b.topics[topic]; ok {
		return errors.Wrapf(ErrDuplicateTopic, `topic [%s] is already consumed by source [%s]`, topic, src)
	}

	source := &Source{name: name, topic: topic}
	for _, opt := range opts {
		opt(source)
	}

	b.nodes[name] = KindSource
	b.topics[topic] = name
	b.sources = append(b.sources, source)
	b.version++

	return nil
}

// AddProcessor adds a processor fed by the given parents. Parents must already
// exist and cannot be sinks, which keeps the graph acyclic.
func (b *Builder) AddProcessor(name string, supplier ProcessorSupplier, parents ...string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.checkNode(name); err != nil {
		return err
	}

	if supplier == nil {
		return errors.Wrapf(ErrInvalidNode, `processor [%s] supplier cannot be nil`, name)
	}

	if err := b.checkParents(name, parents); err != nil {
		return err
	}

	b.nodes[name] = KindProcessor
	b.processors = append(b.processors, &ProcessorNode{
		name:     name,
		supplier: supplier,
		parents:  append([]string{}, parents...),
	})
	b.version++

	return nil
}

func (b *Builder) AddSink(name, topic string, parents []string, opts ...SinkOption) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.checkNode(name); err != nil {
		return err
	}

	if topic == `` {
		return errors.Wrapf(ErrInvalidNode, `sink [%s] topic cannot be empty`, name)
	}

	if err := b.checkParents(name, parents); err != nil {
		return err
	}

	sink := &Sink{name: name, topic: topic, parents: append([]string{}, parents...)}
	for _, opt := range opts {
		opt(sink)
	}

	b.nodes[name] = KindSink
	b.sinks = append(b.sinks, sink)
	b.version++

	return nil
}

// AddStore registers a state store and connects it to the given processors.
func (b *Builder) AddStore(name string, keyEncoder, valEncoder encoding.Encoder, processors ...string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.topology != nil {
		return ErrTopologyFrozen
	}

	if name == `` {
		return errors.Wrap(ErrInvalidNode, `store name cannot be empty`)
	}

	if keyEncoder == nil || valEncoder == nil {
		return errors.Wrapf(ErrInvalidNode, `store [%s] encoders cannot be nil`, name)
	}

	for _, str := range b.stores {
		if str.name == name {
			return errors.Wrapf(ErrDuplicateNode, `store [%s] already exists`, name)
		}
	}

	for _, p := range processors {
		if b.nodes[p] != KindProcessor {
			return errors.Wrapf(ErrInvalidNode, `store [%s] can only be connected to processors, [%s] is not one`, name, p)
		}
	}

	b.stores = append(b.stores, &Store{
		name:       name,
		encoders:   Encoders{Key: keyEncoder, Value: valEncoder},
		processors: append([]string{}, processors...),
	})
	b.version++

	return nil
}

// ConnectStore attaches an existing store to more processors.
func (b *Builder) ConnectStore(store string, processors ...string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.topology != nil {
		return ErrTopologyFrozen
	}

	var str *Store
	for _, s := range b.stores {
		if s.name == store {
			str = s
		}
	}

	if str == nil {
		return errors.Wrapf(ErrUnknownStore, `store [%s] does not exist`, store)
	}

	for _, p := range processors {
		if b.nodes[p] != KindProcessor {
			return errors.Wrapf(ErrInvalidNode, `store [%s] can only be connected to processors, [%s] is not one`, store, p)
		}
	}

	str.processors = append(str.processors, processors...)
	b.version++

	return nil
}

// Frozen reports whether Build has completed successfully.
func (b *Builder) Frozen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.topology != nil
}

// Build validates the accumulated definition and freezes the builder. Calling
// Build again returns the same Topology.
func (b *Builder) Build() (*Topology, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	tp, err := b.validSnapshot()
	if err != nil {
		return nil, err
	}
	b.topology = tp

	return tp, nil
}

// Snapshot validates the accumulated definition and returns it without
// freezing the builder. Once frozen it returns the frozen Topology.
func (b *Builder) Snapshot() (*Topology, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.validSnapshot()
}

// Freeze freezes the builder at tp, which must be a Snapshot of the current
// definition. A builder mutated after the snapshot returns ErrTopologyChanged.
func (b *Builder) Freeze(tp *Topology) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if tp == nil {
		return errors.New(`topology cannot be nil`)
	}

	if b.topology != nil {
		if b.topology == tp {
			return nil
		}
		return ErrTopologyFrozen
	}

	if tp.version != b.version {
		return errors.Wrapf(ErrTopologyChanged, `snapshot version %d, builder version %d`, tp.version, b.version)
	}
	b.topology = tp

	return nil
}

func (b *Builder) validSnapshot() (*Topology, error) {
	if b.topology != nil {
		return b.topology, nil
	}

	if len(b.sources) < 1 {
		return nil, ErrNoSources
	}

	return b.snapshot(), nil
}

// Describe renders the current definition, frozen or not, as a Graphviz DOT graph.
func (b *Builder) Describe() (string, error) {
	b.mu.Lock()
	tp := b.topology
	if tp == nil {
		tp = b.snapshot()
	}
	b.mu.Unlock()

	return tp.Describe()
}

func (b *Builder) snapshot() *Topology {
	tp := &Topology{
		version:    b.version,
		sources:    append([]*Source{}, b.sources...),
		processors: append([]*ProcessorNode{}, b.processors...),
		sinks:      append([]*Sink{}, b.sinks...),
		children:   map[string][]string{},
		nodeStores: map[string][]string{},
	}

	for _, p := range b.processors {
		for _, parent := range p.parents {
			tp.children[parent] = append(tp.children[parent], p.name)
		}
	}

	for _, s := range b.sinks {
		for _, parent := range s.parents {
			tp.children[parent] = append(tp.children[parent], s.name)
		}
	}

	for _, str := range b.stores {
		cp := &Store{
			name:       str.name,
			encoders:   str.encoders,
			processors: append([]string{}, str.processors...),
		}
		tp.stores = append(tp.stores, cp)
		for _, p := range cp.processors {
			tp.nodeStores[p] = append(tp.nodeStores[p], cp.name)
		}
	}

	return tp
}

func (b *Builder) checkNode(name string) error {
	if b.topology != nil {
		return ErrTopologyFrozen
	}

	if name == `` {
		return errors.Wrap(ErrInvalidNode, `node name cannot be empty`)
	}

	if _, ok := b.nodes[name]; ok {
		return errors.Wrapf(ErrDuplicateNode, `node [%s] already exists`, name)
	}

	return nil
}

func (b *Builder) checkParents(name string, parents []string) error {
	if len(parents) < 1 {
		return errors.Wrapf(ErrUnknownParent, `node [%s] needs at least one parent`, name)
	}

	for _, p := range parents {
		kind, ok := b.nodes[p]
		if !ok {
			return errors.Wrapf(ErrUnknownParent, `parent [%s] of node [%s] does not exist`, p, name)
		}

		if kind == KindSink {
			return errors.Wrapf(ErrUnknownParent, `sink [%s] cannot be a parent of [%s]`, p, name)
		}
	}

	return nil
}
