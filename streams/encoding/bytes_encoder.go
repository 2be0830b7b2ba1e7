package encoding

import (
	"github.com/gmbyapa/kfactory/pkg/errors"
	"reflect"
)

type ByteEncoder struct{}

func (b ByteEncoder) Encode(v interface{}) ([]byte, error) {
	if v == nil {
		return nil, nil
	}

	byt, ok := v.([]byte)
	if !ok {
		return nil, errors.Errorf(`incorrect type expected ([]byte) have (%s)`, reflect.TypeOf(v))
	}

	return byt, nil
}

func (b ByteEncoder) Decode(data []byte) (interface{}, error) {
	return data, nil
}
