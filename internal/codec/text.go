package codec

import (
	"encoding/json"
	"fmt"
)

// envelope is the textual (JSON) frame shape: a discriminator plus a
// type-specific payload, mirroring the binary codec's tag-then-body
// structure (spec.md §4.4 requires both encodings carry identical
// information).
type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// EncodeText serializes a Frame to its textual wire form.
func EncodeText(f Frame) ([]byte, error) {
	payload, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("codec: marshal %T payload: %w", f, err)
	}
	env := envelope{Type: f.Type().String(), Payload: payload}
	out, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("codec: marshal envelope: %w", err)
	}
	return out, nil
}

// DecodeText parses a textual frame produced by EncodeText. Like
// DecodeBinary it returns value frames, so both decoders yield the same
// dynamic type for the same logical message.
func DecodeText(b []byte) (Frame, error) {
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, fmt.Errorf("codec: unmarshal envelope: %w", err)
	}

	unmarshal := func(v interface{}) error {
		if err := json.Unmarshal(env.Payload, v); err != nil {
			return fmt.Errorf("codec: unmarshal %s payload: %w", env.Type, err)
		}
		return nil
	}

	switch env.Type {
	case MsgStartTest.String():
		var f StartTestFrame
		if err := unmarshal(&f); err != nil {
			return nil, err
		}
		return f, nil
	case MsgPing.String():
		var f PingFrame
		if err := unmarshal(&f); err != nil {
			return nil, err
		}
		return f, nil
	case MsgPong.String():
		var f PongFrame
		if err := unmarshal(&f); err != nil {
			return nil, err
		}
		return f, nil
	case MsgBeginUpload.String():
		var f BeginUploadFrame
		if err := unmarshal(&f); err != nil {
			return nil, err
		}
		return f, nil
	case MsgEndUpload.String():
		return EndUploadFrame{}, nil
	case MsgProgress.String():
		var f ProgressFrame
		if err := unmarshal(&f); err != nil {
			return nil, err
		}
		return f, nil
	case MsgResults.String():
		var f ResultsFrame
		if err := unmarshal(&f); err != nil {
			return nil, err
		}
		return f, nil
	case MsgError.String():
		var f ErrorFrame
		if err := unmarshal(&f); err != nil {
			return nil, err
		}
		return f, nil
	case MsgWarning.String():
		var f WarningFrame
		if err := unmarshal(&f); err != nil {
			return nil, err
		}
		return f, nil
	case MsgData.String():
		var f DataFrame
		if err := unmarshal(&f); err != nil {
			return nil, err
		}
		return f, nil
	default:
		return nil, fmt.Errorf("codec: unknown frame type %q", env.Type)
	}
}
