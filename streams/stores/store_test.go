package stores

import (
	"context"
	"testing"

	"github.com/gmbyapa/kfactory/backend/memory"
	"github.com/gmbyapa/kfactory/streams/encoding"
)

func makeStore(t *testing.T) Store {
	s, err := NewStore(`counts`, encoding.StringEncoder{}, encoding.IntEncoder{}, memory.Builder(memory.NewConfig()))
	if err != nil {
		t.Fatal(err)
	}

	return s
}

func TestStore_SetGet(t *testing.T) {
	s := makeStore(t)
	defer s.Close()

	if err := s.Set(context.Background(), `word`, 3, 0); err != nil {
		t.Fatal(err)
	}

	v, err := s.Get(context.Background(), `word`)
	if err != nil {
		t.Fatal(err)
	}

	if v.(int) != 3 {
		t.Errorf(`expected 3, have %v`, v)
	}
}

func TestStore_Tombstone(t *testing.T) {
	s := makeStore(t)
	defer s.Close()

	if err := s.Set(context.Background(), `word`, 3, 0); err != nil {
		t.Fatal(err)
	}

	if err := s.Set(context.Background(), `word`, nil, 0); err != nil {
		t.Fatal(err)
	}

	v, err := s.Get(context.Background(), `word`)
	if err != nil {
		t.Fatal(err)
	}

	if v != nil {
		t.Errorf(`expected nil after tombstone, have %v`, v)
	}
}

func TestStore_EncodeError(t *testing.T) {
	s := makeStore(t)
	defer s.Close()

	if err := s.Set(context.Background(), 1, 3, 0); err == nil {
		t.Error(`expected key encode error`)
	}

	if err := s.Set(context.Background(), `word`, `three`, 0); err == nil {
		t.Error(`expected value encode error`)
	}
}
