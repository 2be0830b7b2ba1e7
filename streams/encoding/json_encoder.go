package encoding

import (
	"encoding/json"

	"github.com/gmbyapa/kfactory/pkg/errors"
)

// JsonEncoder decodes into generic values(map[string]interface{}, []interface{}, float64, ...).
type JsonEncoder struct{}

func (JsonEncoder) Encode(v interface{}) ([]byte, error) {
	byt, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, `json encode failed`)
	}

	return byt, nil
}

func (JsonEncoder) Decode(data []byte) (interface{}, error) {
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, errors.Wrap(err, `json decode failed`)
	}

	return v, nil
}
