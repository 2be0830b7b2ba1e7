package encoding

import (
	"github.com/gmbyapa/kfactory/pkg/errors"
	"sort"
)

// Encoder converts between record bytes and the values handed to processors.
type Encoder interface {
	Encode(v interface{}) ([]byte, error)
	Decode(data []byte) (interface{}, error)
}

// ErrUnknownEncoder is returned when an identifier does not name a registered encoder.
var ErrUnknownEncoder = errors.Sentinel(`unknown encoder`)

var builtin = map[string]Encoder{
	`string`: StringEncoder{},
	`int`:    IntEncoder{},
	`float`:  FloatEncoder{},
	`bytes`:  ByteEncoder{},
	`json`:   JsonEncoder{},
}

// ByName resolves a serialization strategy identifier(eg: string, json) to its Encoder.
func ByName(name string) (Encoder, error) {
	enc, ok := builtin[name]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownEncoder, `[%s], supported encoders %v`, name, Names())
	}

	return enc, nil
}

// Names returns the identifiers of the built in encoders.
func Names() []string {
	var names []string
	for name := range builtin {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}
