package codec

import "fmt"

// Mode selects which of the two wire encodings a connection uses. internal/web
// pins it from the websocket frame type of the first inbound message (binary
// until then); StartTestFrame.Binary plays no part in the choice
// (spec.md §4.4: "the encoding is chosen once, per connection").
type Mode uint8

const (
	ModeText Mode = iota
	ModeBinary
)

// Encode serializes f using the given Mode.
func Encode(mode Mode, f Frame) ([]byte, error) {
	switch mode {
	case ModeBinary:
		return EncodeBinary(f)
	case ModeText:
		return EncodeText(f)
	default:
		return nil, fmt.Errorf("codec: unknown mode %d", mode)
	}
}

// Decode parses a frame using the given Mode.
func Decode(mode Mode, b []byte) (Frame, error) {
	switch mode {
	case ModeBinary:
		return DecodeBinary(b)
	case ModeText:
		return DecodeText(b)
	default:
		return nil, fmt.Errorf("codec: unknown mode %d", mode)
	}
}

// SizeBudgetOK reports whether a Progress frame's binary encoding meets the
// §4.4 size contract relative to its textual sibling: at most half the
// textual size, and no more than 80 bytes in the common case.
func SizeBudgetOK(textLen, binaryLen int) bool {
	if binaryLen > 80 {
		return false
	}
	return float64(binaryLen) <= float64(textLen)*0.5
}
