package kafka

import (
	"bytes"
	"context"
	"fmt"
	"time"
)

type Record interface {
	Ctx() context.Context
	Key() []byte
	Value() []byte
	Topic() string
	Partition() int32
	Offset() int64
	Timestamp() time.Time
	Headers() RecordHeaders
	String() string
}

// RecordHeader stores key and value for a record header.
type RecordHeader struct {
	Key   []byte
	Value []byte
}

// RecordHeaders are list of key:value pairs.
type RecordHeaders []RecordHeader

// Read returns a RecordHeader by its name or nil if not exist
func (h RecordHeaders) Read(key []byte) []byte {
	for _, header := range h {
		if bytes.Equal(header.Key, key) {
			return header.Value
		}
	}

	return nil
}

// RecordMeta holds the positional attributes of a record.
type RecordMeta struct {
	Topic     string
	Partition int32
	Offset    int64
	Timestamp time.Time
	Headers   RecordHeaders
}

type record struct {
	ctx   context.Context
	key   []byte
	value []byte
	meta  RecordMeta
}

// NewRecord creates a Record. Adaptors and mocks use it to hand records to the engine.
func NewRecord(ctx context.Context, key, value []byte, meta RecordMeta) Record {
	if ctx == nil {
		ctx = context.Background()
	}

	return &record{
		ctx:   ctx,
		key:   key,
		value: value,
		meta:  meta,
	}
}

func (r *record) Ctx() context.Context   { return r.ctx }
func (r *record) Key() []byte            { return r.key }
func (r *record) Value() []byte          { return r.value }
func (r *record) Topic() string          { return r.meta.Topic }
func (r *record) Partition() int32       { return r.meta.Partition }
func (r *record) Offset() int64          { return r.meta.Offset }
func (r *record) Timestamp() time.Time   { return r.meta.Timestamp }
func (r *record) Headers() RecordHeaders { return r.meta.Headers }

func (r *record) String() string {
	return fmt.Sprintf(`%s[%d]@%d`, r.meta.Topic, r.meta.Partition, r.meta.Offset)
}
