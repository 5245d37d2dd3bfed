package storage

import (
	"encoding/json"
	"fmt"
)

// Codec converts values to and from their stored representation.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// JSONCodec stores values as JSON.
type JSONCodec struct{}

func (JSONCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (JSONCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

// DefaultCodec is used by stores created without an explicit codec.
var DefaultCodec Codec = JSONCodec{}

// As converts a handle or Get value to T.
//
// A value that already has type T is returned as is. Anything else, such as
// the generic maps produced by decoding, is converted with a JSON round
// trip. A nil value yields the zero T and no error.
func As[T any](v any) (T, error) {
	var out T
	if v == nil {
		return out, nil
	}
	if typed, ok := v.(T); ok {
		return typed, nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return out, fmt.Errorf("%w: %w", ErrEncode, err)
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	return out, nil
}
