package stores

import (
	"context"
	"fmt"
	"github.com/gmbyapa/kfactory/backend"
	"github.com/gmbyapa/kfactory/pkg/errors"
	"github.com/gmbyapa/kfactory/streams/encoding"
	"time"
)

type Store interface {
	Name() string
	KeyEncoder() encoding.Encoder
	ValEncoder() encoding.Encoder
	Backend() backend.Backend
	Get(ctx context.Context, key interface{}) (value interface{}, err error)
	Set(ctx context.Context, key, value interface{}, expiry time.Duration) error
	Delete(ctx context.Context, key interface{}) error
	String() string
	Flush() error
	Close() error
}

type store struct {
	name       string
	backend    backend.Backend
	keyEncoder encoding.Encoder
	valEncoder encoding.Encoder
}

// NewStore opens a backend for name through the builder and wraps it with the encoders.
func NewStore(name string, keyEncoder, valEncoder encoding.Encoder, builder backend.Builder) (Store, error) {
	bk, err := builder(name)
	if err != nil {
		return nil, errors.Wrapf(err, `backend builder error, store [%s]`, name)
	}

	return &store{
		name:       name,
		backend:    bk,
		keyEncoder: keyEncoder,
		valEncoder: valEncoder,
	}, nil
}

func (s *store) Name() string {
	return s.name
}

func (s *store) String() string {
	return fmt.Sprintf(`Store: %s, Backend: %s`, s.name, s.backend.String())
}

func (s *store) KeyEncoder() encoding.Encoder {
	return s.keyEncoder
}

func (s *store) ValEncoder() encoding.Encoder {
	return s.valEncoder
}

func (s *store) Backend() backend.Backend {
	return s.backend
}

func (s *store) Set(_ context.Context, key interface{}, value interface{}, expiry time.Duration) error {
	k, err := s.keyEncoder.Encode(key)
	if err != nil {
		return errors.Wrapf(err, `store [%s] key encode error`, s.name)
	}

	// if value is null remove from store (tombstone)
	if value == nil {
		return s.backend.Delete(k)
	}

	v, err := s.valEncoder.Encode(value)
	if err != nil {
		return errors.Wrapf(err, `store [%s] value encode error`, s.name)
	}

	return s.backend.Set(k, v, expiry)
}

func (s *store) Get(_ context.Context, key interface{}) (interface{}, error) {
	k, err := s.keyEncoder.Encode(key)
	if err != nil {
		return nil, errors.Wrapf(err, `store [%s] key encode error`, s.name)
	}

	byt, err := s.backend.Get(k)
	if err != nil {
		return nil, errors.Wrapf(err, `store [%s] read error`, s.name)
	}

	if len(byt) < 1 {
		return nil, nil
	}

	v, err := s.valEncoder.Decode(byt)
	if err != nil {
		return nil, errors.Wrapf(err, `store [%s] value decode error`, s.name)
	}

	return v, nil
}

func (s *store) Delete(_ context.Context, key interface{}) error {
	k, err := s.keyEncoder.Encode(key)
	if err != nil {
		return errors.Wrapf(err, `store [%s] key encode error`, s.name)
	}

	return s.backend.Delete(k)
}

func (s *store) Flush() error {
	return s.backend.Flush()
}

func (s *store) Close() error {
	return s.backend.Close()
}
