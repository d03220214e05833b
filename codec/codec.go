package codec

import "remote-call/invoke"

type CodecType byte

const (
	CodecTypeJSON   CodecType = 0
	CodecTypeBinary CodecType = 1
)

// Codec serializes Invoke records into a transport payload and back.
// JSON is the wire default; the binary codec is available for byte-stream
// transports where the payload bytes are opaque to the framing layer.
type Codec interface {
	Encode(inv *invoke.Invoke) ([]byte, error)
	Decode(data []byte, inv *invoke.Invoke) error
	Type() CodecType // 0=JSON, 1=Binary
}

func GetCodec(codecType CodecType) Codec {
	if codecType == CodecTypeJSON {
		return &JSONCodec{}
	}

	return &BinaryCodec{}
}
