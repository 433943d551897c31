package codec

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/flowforge/pipeline/streamio"
)

// LineDecoder turns a byte Source into a string Source, one item per line
// of input. Invalid UTF-8 is replaced rather than rejected (lossy decode):
// a single bad byte sequence in an otherwise-good line shouldn't surface as
// a deserialize error when the line decoder's whole job is "best effort
// text", not structured parsing.
type LineDecoder struct {
	// Lossy controls whether invalid UTF-8 is replaced (true, the default)
	// or surfaced as an in-band Deserialize error (false).
	Lossy bool
}

// NewLineDecoder returns a LineDecoder with Lossy defaulted to true.
func NewLineDecoder() LineDecoder { return LineDecoder{Lossy: true} }

// Decode wraps upline so every item becomes a decoded line of text.
func (d LineDecoder) Decode(name string, upline streamio.Source[[]byte]) streamio.Source[string] {
	lossy := d.Lossy
	return &decodedSource[string]{
		name:   name,
		upline: upline,
		convert: func(_ string, _ uint64, line []byte) (string, error) {
			if lossy || utf8.Valid(line) {
				return toValidUTF8(line), nil
			}
			return "", &invalidUTF8Error{}
		},
	}
}

func toValidUTF8(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	return strings.ToValidUTF8(string(b), "�")
}

type invalidUTF8Error struct{}

func (*invalidUTF8Error) Error() string { return "invalid UTF-8 sequence" }

// LineEncoder turns a string Output into a byte Output, appending a
// trailing newline to every encoded item.
type LineEncoder struct{}

// Encode wraps downline so every string item is written as a line.
func (LineEncoder) Encode(name string, downline streamio.Output[[]byte]) streamio.Output[string] {
	return &encodedOutput[string]{
		name:     name,
		downline: downline,
		convert: func(v string) ([]byte, error) {
			return append([]byte(v), '\n'), nil
		},
	}
}
