package codec

import (
	"encoding/json"

	"remote-call/invoke"
)

// JSONCodec uses Go's standard library encoding/json for serialization.
// This is the wire default on every transport: the variant of a record is
// structural (presence of "listener" vs "success"), so a single decode
// recovers either shape without negotiation.
type JSONCodec struct{}

func (c *JSONCodec) Encode(inv *invoke.Invoke) ([]byte, error) {
	return json.Marshal(inv)
}

func (c *JSONCodec) Decode(data []byte, inv *invoke.Invoke) error {
	return json.Unmarshal(data, inv)
}

func (c *JSONCodec) Type() CodecType {
	return CodecTypeJSON
}
