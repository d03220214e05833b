// Byte-stream transports (the worker pipe family) have no message
// boundaries of their own. Frames solve that with a fixed 9-byte header
// followed by a variable-length payload; the receiver reads the header
// first to learn the payload length, then reads exactly that many bytes.
//
// Frame format:
//
//	0      3  4  5         9
//	┌──────┬──┬──┬─────────┬────────────────┐
//	│magic │v │k │ length  │  payload ...    │
//	│ rfc  │01│  │ uint32  │  length bytes   │
//	└──────┴──┴──┴─────────┴────────────────┘
//
// The kind byte separates control strings from records, so READY/CLOSE are
// recognized without attempting a record decode.
package transport

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Magic number bytes: "rfc" (remote function call).
// Rejects non-protocol peers on the same pipe early.
const (
	MagicNumber byte = 0x72 // 'r'
	MagicByte2  byte = 0x66 // 'f'
	MagicByte3  byte = 0x63 // 'c'
	Version     byte = 0x01
	HeaderSize  int  = 9 // 3 (magic) + 1 (version) + 1 (kind) + 4 (length)
)

// FrameKind distinguishes control and record frames.
type FrameKind byte

const (
	FrameControl FrameKind = 0 // Raw control string (READY, CLOSE)
	FrameRecord  FrameKind = 1 // Encoded Invoke record
)

// WriteFrame writes a complete frame (header + payload) to w.
// The caller must hold a write lock if multiple goroutines share the same
// writer, otherwise frames will interleave and corrupt the stream.
func WriteFrame(w io.Writer, kind FrameKind, payload []byte) error {
	buf := make([]byte, HeaderSize)
	copy(buf[0:3], []byte{MagicNumber, MagicByte2, MagicByte3})
	buf[3] = Version
	buf[4] = byte(kind)
	binary.BigEndian.PutUint32(buf[5:9], uint32(len(payload)))

	if _, err := w.Write(buf); err != nil {
		return err
	}
	if _, err := w.Write(payload); err != nil {
		return err
	}
	return nil
}

// ReadFrame reads a complete frame from r. It validates the magic number,
// version, and kind. io.ReadFull guarantees exactly N bytes per read, so a
// slow pipe never yields a partial frame.
func ReadFrame(r io.Reader) (FrameKind, []byte, error) {
	headerBuf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, headerBuf); err != nil {
		return 0, nil, err
	}

	if headerBuf[0] != MagicNumber || headerBuf[1] != MagicByte2 || headerBuf[2] != MagicByte3 {
		return 0, nil, fmt.Errorf("invalid magic number: %x", headerBuf[0:3])
	}
	if headerBuf[3] != Version {
		return 0, nil, fmt.Errorf("unsupported version: %d", headerBuf[3])
	}
	kind := FrameKind(headerBuf[4])
	if kind != FrameControl && kind != FrameRecord {
		return 0, nil, fmt.Errorf("unsupported frame kind: %d", headerBuf[4])
	}

	length := binary.BigEndian.Uint32(headerBuf[5:9])
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return 0, nil, err
	}
	return kind, payload, nil
}
