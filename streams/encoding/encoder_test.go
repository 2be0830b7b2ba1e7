package encoding

import (
	"errors"
	"reflect"
	"testing"
)

func TestByName(t *testing.T) {
	for _, name := range []string{`string`, `int`, `float`, `bytes`, `json`} {
		if _, err := ByName(name); err != nil {
			t.Errorf(`%s: %s`, name, err)
		}
	}

	if _, err := ByName(`avro`); !errors.Is(err, ErrUnknownEncoder) {
		t.Errorf(`expected ErrUnknownEncoder, have %v`, err)
	}
}

func TestIntEncoder(t *testing.T) {
	enc := IntEncoder{}
	byt, err := enc.Encode(42)
	if err != nil {
		t.Fatal(err)
	}

	v, err := enc.Decode(byt)
	if err != nil {
		t.Fatal(err)
	}

	if v.(int) != 42 {
		t.Errorf(`expected 42, have %v`, v)
	}

	if _, err := enc.Encode(`42`); err == nil {
		t.Error(`expected type error`)
	}

	if _, err := enc.Decode([]byte(`x`)); err == nil {
		t.Error(`expected decode error`)
	}
}

func TestStringEncoder_InvalidType(t *testing.T) {
	if _, err := (StringEncoder{}).Encode(1); err == nil {
		t.Error(`expected type error`)
	}
}

func TestFloatEncoder(t *testing.T) {
	v, err := FloatEncoder{}.Decode([]byte(`1.5`))
	if err != nil {
		t.Fatal(err)
	}

	if v.(float64) != 1.5 {
		t.Errorf(`expected 1.5, have %v`, v)
	}
}

func TestJsonEncoder(t *testing.T) {
	enc := JsonEncoder{}
	byt, err := enc.Encode(map[string]interface{}{`name`: `kfactory`})
	if err != nil {
		t.Fatal(err)
	}

	v, err := enc.Decode(byt)
	if err != nil {
		t.Fatal(err)
	}

	if !reflect.DeepEqual(v, map[string]interface{}{`name`: `kfactory`}) {
		t.Errorf(`unexpected value %v`, v)
	}
}
