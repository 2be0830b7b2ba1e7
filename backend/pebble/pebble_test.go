/**
 * Copyright 2020 TryFix Engineering.
 * All rights reserved.
 * Authors:
 *    Gayan Yapa (gmbyapa@gmail.com)
 */

package pebble

import (
	"bytes"
	"fmt"
	"github.com/gmbyapa/kfactory/backend"
	"testing"
)

func makeBackend(t *testing.T) backend.Backend {
	conf := NewConfig()
	conf.Dir = t.TempDir()
	backend, err := NewPebbleBackend(`test`, conf)
	if err != nil {
		t.Fatal(err)
	}

	return backend
}

func TestPebble_Set(t *testing.T) {
	backend := makeBackend(t)
	defer backend.Close()

	if err := backend.Set([]byte(`100`), []byte(`100`), 0); err != nil {
		t.Fatal(err)
	}

	r, err := backend.Get([]byte(`100`))
	if err != nil {
		t.Error(err)
	}

	if !bytes.Equal(r, []byte(`100`)) {
		t.Error(`record does not exist`)
	}
}

func TestPebble_Get(t *testing.T) {
	backend := makeBackend(t)
	defer backend.Close()

	for i := 1; i <= 1000; i++ {
		if err := backend.Set([]byte(fmt.Sprint(i)), []byte(`100`), 0); err != nil {
			t.Fatal(err)
		}
	}

	for i := 1; i <= 1000; i++ {
		val, err := backend.Get([]byte(fmt.Sprint(i)))
		if err != nil {
			t.Error(err)
		}

		if string(val) != `100` {
			t.Fail()
		}
	}

	missing, err := backend.Get([]byte(`missing`))
	if err != nil || missing != nil {
		t.Errorf(`expected nil for missing key, have %v, %v`, missing, err)
	}
}

func TestPebble_Delete(t *testing.T) {
	backend := makeBackend(t)
	defer backend.Close()

	if err := backend.Set([]byte(`100`), []byte(`100`), 0); err != nil {
		t.Fatal(err)
	}

	if err := backend.Delete([]byte(`100`)); err != nil {
		t.Fatal(err)
	}

	val, err := backend.Get([]byte(`100`))
	if err != nil {
		t.Error(err)
	}

	if val != nil {
		t.Fail()
	}
}
