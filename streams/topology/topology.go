package topology

// Topology is the frozen, read only view of a Builder.
type Topology struct {
	version    uint64
	sources    []*Source
	processors []*ProcessorNode
	sinks      []*Sink
	stores     []*Store
	children   map[string][]string
	nodeStores map[string][]string
}

func (t *Topology) Sources() []*Source           { return append([]*Source{}, t.sources...) }
func (t *Topology) Processors() []*ProcessorNode { return append([]*ProcessorNode{}, t.processors...) }
func (t *Topology) Sinks() []*Sink               { return append([]*Sink{}, t.sinks...) }
func (t *Topology) Stores() []*Store             { return append([]*Store{}, t.stores...) }

// Children returns the direct downstream nodes of name in insertion order.
func (t *Topology) Children(name string) []string {
	return append([]string{}, t.children[name]...)
}

// StoresOf returns the names of the stores connected to a processor.
func (t *Topology) StoresOf(processor string) []string {
	return append([]string{}, t.nodeStores[processor]...)
}

func (t *Topology) SourceTopics() []string {
	var topics []string
	for _, s := range t.sources {
		topics = append(topics, s.topic)
	}

	return topics
}

func (t *Topology) SinkTopics() []string {
	seen := map[string]bool{}
	var topics []string
	for _, s := range t.sinks {
		if seen[s.topic] {
			continue
		}
		seen[s.topic] = true
		topics = append(topics, s.topic)
	}

	return topics
}

func (t *Topology) Source(topic string) (*Source, bool) {
	for _, s := range t.sources {
		if s.topic == topic {
			return s, true
		}
	}

	return nil, false
}

func (t *Topology) Kind(name string) (NodeKind, bool) {
	for _, s := range t.sources {
		if s.name == name {
			return KindSource, true
		}
	}
	for _, p := range t.processors {
		if p.name == name {
			return KindProcessor, true
		}
	}
	for _, s := range t.sinks {
		if s.name == name {
			return KindSink, true
		}
	}

	return ``, false
}

func (t *Topology) Describe() (string, error) {
	return newGraphViz(t).Visualize()
}
