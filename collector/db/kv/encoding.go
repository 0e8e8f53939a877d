package kv

import (
	"encoding/json"

	"github.com/golang/snappy"
	"github.com/pkg/errors"
)

// Records are stored as snappy-compressed JSON. The volume is tiny by
// bolt standards; compression mainly keeps long report messages cheap.

func encode(value interface{}) ([]byte, error) {
	if value == nil {
		return nil, errors.New("cannot encode nil value")
	}
	enc, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	return snappy.Encode(nil, enc), nil
}

func decode(data []byte, dst interface{}) error {
	data, err := snappy.Decode(nil, data)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dst)
}
