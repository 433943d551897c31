package codec

import (
	json "github.com/goccy/go-json"

	"github.com/flowforge/pipeline/streamio"
)

// JSONLDecoder turns a byte Source into a T Source, one JSON value per
// line. A line that fails to unmarshal becomes an in-band Deserialize
// error carrying the offending line as its attempted string.
type JSONLDecoder[T any] struct{}

// NewJSONLDecoder returns a decoder for T.
func NewJSONLDecoder[T any]() JSONLDecoder[T] { return JSONLDecoder[T]{} }

// Decode wraps upline so every line is unmarshaled into a T.
func (JSONLDecoder[T]) Decode(name string, upline streamio.Source[[]byte]) streamio.Source[T] {
	return &decodedSource[T]{
		name:   name,
		upline: upline,
		convert: func(_ string, _ uint64, line []byte) (T, error) {
			var v T
			err := json.Unmarshal(line, &v)
			return v, err
		},
	}
}

// JSONLEncoder turns a T Output into a byte Output, one marshaled JSON
// value per line.
type JSONLEncoder[T any] struct{}

// NewJSONLEncoder returns an encoder for T.
func NewJSONLEncoder[T any]() JSONLEncoder[T] { return JSONLEncoder[T]{} }

// Encode wraps downline so every T is marshaled and newline-terminated.
func (JSONLEncoder[T]) Encode(name string, downline streamio.Output[[]byte]) streamio.Output[T] {
	return &encodedOutput[T]{
		name:     name,
		downline: downline,
		convert: func(v T) ([]byte, error) {
			b, err := json.Marshal(v)
			if err != nil {
				return nil, err
			}
			return append(b, '\n'), nil
		},
	}
}
