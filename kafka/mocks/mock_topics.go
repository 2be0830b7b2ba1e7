package mocks

import (
	"errors"
	"github.com/gmbyapa/kfactory/kafka"
	"sort"
	"sync"
)

var ErrUnknownTopic = errors.New(`unknown topic`)

type MockPartition struct {
	records []kafka.Record
	*sync.Mutex
}

// Append stores a copy of the record with its offset assigned and returns the offset.
func (p *MockPartition) Append(r kafka.Record, partition int32) int64 {
	p.Lock()
	defer p.Unlock()

	offset := int64(len(p.records))
	p.records = append(p.records, kafka.NewRecord(r.Ctx(), r.Key(), r.Value(), kafka.RecordMeta{
		Topic:     r.Topic(),
		Partition: partition,
		Offset:    offset,
		Timestamp: r.Timestamp(),
		Headers:   r.Headers(),
	}))

	return offset
}

func (p *MockPartition) Latest() int64 {
	p.Lock()
	defer p.Unlock()
	return int64(len(p.records))
}

func (p *MockPartition) FetchAll() (records []kafka.Record) {
	p.Lock()
	defer p.Unlock()
	return append(records, p.records...)
}

// Fetch returns at most limit records starting from start. kafka.Earliest and
// kafka.Latest are accepted as start positions.
func (p *MockPartition) Fetch(start int64, limit int) []kafka.Record {
	p.Lock()
	defer p.Unlock()

	switch kafka.Offset(start) {
	case kafka.Latest:
		return nil
	case kafka.Earliest:
		start = 0
	}

	if start >= int64(len(p.records)) {
		return nil
	}

	to := int(start) + limit
	if to > len(p.records) {
		to = len(p.records)
	}

	return append([]kafka.Record{}, p.records[start:to]...)
}

type MockTopic struct {
	Name       string
	partitions []*MockPartition
	mu         *sync.Mutex
}

func (tp *MockTopic) Partition(id int32) (*MockPartition, error) {
	tp.mu.Lock()
	defer tp.mu.Unlock()

	if id < 0 || int(id) >= len(tp.partitions) {
		return nil, errors.New(`unknown partition`)
	}

	return tp.partitions[id], nil
}

func (tp *MockTopic) Partitions() []*MockPartition {
	tp.mu.Lock()
	defer tp.mu.Unlock()

	return tp.partitions
}

func (tp *MockTopic) FetchAll() (records []kafka.Record) {
	for _, pt := range tp.Partitions() {
		records = append(records, pt.FetchAll()...)
	}
	return records
}

// Topics is an in memory broker. It also implements kafka.Admin.
type Topics struct {
	*sync.Mutex
	topics  map[string]*MockTopic
	offsets map[string]map[kafka.TopicPartition]int64
	notify  chan struct{}
}

func NewMockTopics() *Topics {
	return &Topics{
		topics:  make(map[string]*MockTopic),
		offsets: make(map[string]map[kafka.TopicPartition]int64),
		notify:  make(chan struct{}),
		Mutex:   new(sync.Mutex),
	}
}

func (td *Topics) AddTopic(name string, numPartitions int32) error {
	td.Lock()
	defer td.Unlock()

	if _, ok := td.topics[name]; ok {
		return errors.New(`topic already exists`)
	}

	if numPartitions < 1 {
		numPartitions = 1
	}

	topic := &MockTopic{
		Name:       name,
		partitions: make([]*MockPartition, numPartitions),
		mu:         new(sync.Mutex),
	}
	for i := range topic.partitions {
		topic.partitions[i] = &MockPartition{Mutex: new(sync.Mutex)}
	}

	td.topics[name] = topic

	return nil
}

func (td *Topics) Topic(name string) (*MockTopic, error) {
	td.Lock()
	defer td.Unlock()

	t, ok := td.topics[name]
	if !ok {
		return nil, ErrUnknownTopic
	}

	return t, nil
}

// Changed returns a channel which is closed on the next append to any topic.
func (td *Topics) Changed() <-chan struct{} {
	td.Lock()
	defer td.Unlock()
	return td.notify
}

func (td *Topics) appended() {
	td.Lock()
	defer td.Unlock()
	close(td.notify)
	td.notify = make(chan struct{})
}

func (td *Topics) Committed(group string, tp kafka.TopicPartition) int64 {
	td.Lock()
	defer td.Unlock()

	off, ok := td.offsets[group][tp]
	if !ok {
		return int64(kafka.Earliest)
	}

	return off
}

func (td *Topics) Commit(group string, tp kafka.TopicPartition, offset int64) {
	td.Lock()
	defer td.Unlock()

	if td.offsets[group] == nil {
		td.offsets[group] = map[kafka.TopicPartition]int64{}
	}
	td.offsets[group][tp] = offset
}

func (td *Topics) ListTopics() ([]string, error) {
	td.Lock()
	defer td.Unlock()

	var list []string
	for name := range td.topics {
		list = append(list, name)
	}
	sort.Strings(list)

	return list, nil
}

func (td *Topics) CreateTopics(topics []*kafka.Topic) error {
	for _, tp := range topics {
		if _, err := td.Topic(tp.Name); err == nil {
			continue
		}
		if err := td.AddTopic(tp.Name, tp.NumPartitions); err != nil {
			return err
		}
	}

	return nil
}

func (td *Topics) Close() {}

// AdminBuilder returns a kafka.AdminBuilder serving the in memory broker.
func AdminBuilder(topics *Topics) kafka.AdminBuilder {
	return func(_ []string) (kafka.Admin, error) {
		return topics, nil
	}
}
